package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"pinganalyst/internal/analyzer"
	"pinganalyst/internal/frames"
	"pinganalyst/internal/logging"
	"pinganalyst/internal/retry"
	"pinganalyst/internal/services"
	"pinganalyst/internal/stats"
)

// Analyzer is the part of analyzer.Analyzer the uploader depends on.
type Analyzer interface {
	AnalyzeFrames(ctx context.Context, frames []string) (stats.Analysis, error)
}

// Progress is reported before each chunk, before each retry sleep and after
// each merge.
type Progress struct {
	ChunkIndex  int
	TotalChunks int
	Attempt     int
	Status      string
	// Analysis is the accumulated snapshot at the time of the report.
	Analysis stats.Analysis
	Merged   int
}

// ChunkResult describes one successfully analyzed chunk.
type ChunkResult struct {
	Index      int
	Start      float64
	End        float64
	FrameCount int
	Attempts   int
	Analysis   stats.Analysis
	Elapsed    time.Duration
}

// ChunkError reports the chunk that stopped a run.
type ChunkError struct {
	Index int
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("segment %d: %v", e.Index+1, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// RunOptions controls a single Run.
type RunOptions struct {
	// Accumulator to merge into. A fresh one sized to the chunk list is used
	// when nil.
	Accumulator *stats.Accumulator
	// Completed lists chunk indexes already merged into Accumulator.
	Completed map[int]bool
	// OnProgress receives status updates.
	OnProgress func(Progress)
	// OnChunk is called after each merge. A returned error stops the run.
	OnChunk func(ChunkResult) error
}

// Uploader runs chunks through an Analyzer.
type Uploader struct {
	analyzer Analyzer
	policy   retry.Policy
	logger   *slog.Logger
	now      func() time.Time
}

// Option customizes an Uploader.
type Option func(*Uploader)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(u *Uploader) {
		if logger != nil {
			u.logger = logger
		}
	}
}

// New builds an uploader around analyzer and policy.
func New(a Analyzer, policy retry.Policy, opts ...Option) *Uploader {
	u := &Uploader{
		analyzer: a,
		policy:   policy,
		logger:   logging.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	u.logger = logging.NewComponentLogger(u.logger, "pipeline")
	return u
}

// Run analyzes chunks in order and returns the accumulator. On failure the
// accumulator holds every chunk merged before the failing one.
func (u *Uploader) Run(ctx context.Context, chunks []frames.Chunk, opts RunOptions) (*stats.Accumulator, error) {
	acc := opts.Accumulator
	if acc == nil {
		acc = stats.NewAccumulator(len(chunks))
	}
	if u.analyzer == nil {
		return acc, errors.New("pipeline: analyzer is nil")
	}
	for _, chunk := range chunks {
		index := chunk.Index
		total := chunk.Total
		if total <= 0 {
			total = len(chunks)
		}
		if opts.Completed[index] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return acc, &ChunkError{Index: index, Err: err}
		}

		chunkCtx := services.WithChunk(ctx, index, total)
		result, err := u.runChunk(chunkCtx, chunk, index, total, acc, opts)
		if err != nil {
			logging.WarnWithContext(logging.WithContext(chunkCtx, u.logger), "segment analysis failed", "chunk_failed",
				logging.String(logging.FieldErrorHint, services.Hint(err)),
				logging.Error(err),
			)
			return acc, &ChunkError{Index: index, Err: err}
		}

		snapshot := acc.Add(result.Analysis)
		merged, _ := acc.Progress()
		u.logger.InfoContext(chunkCtx, "segment merged",
			logging.String(logging.FieldEventType, "chunk_merged"),
			logging.Int("attempts", result.Attempts),
			logging.Duration("elapsed", result.Elapsed),
			logging.Int("merged", merged),
		)
		u.report(opts, Progress{
			ChunkIndex:  index,
			TotalChunks: total,
			Attempt:     result.Attempts,
			Status:      fmt.Sprintf("Merged segment %d of %d", index+1, total),
			Analysis:    snapshot,
			Merged:      merged,
		})
		if opts.OnChunk != nil {
			if err := opts.OnChunk(result); err != nil {
				return acc, &ChunkError{Index: index, Err: fmt.Errorf("record result: %w", err)}
			}
		}
	}
	return acc, nil
}

func (u *Uploader) runChunk(ctx context.Context, chunk frames.Chunk, index, total int, acc *stats.Accumulator, opts RunOptions) (ChunkResult, error) {
	urls := chunk.DataURLs()
	started := u.now()

	policy := u.policy
	attempts := 0
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		merged, _ := acc.Progress()
		u.logger.InfoContext(ctx, "retrying segment",
			logging.String(logging.FieldEventType, "chunk_retry"),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
		)
		u.report(opts, Progress{
			ChunkIndex:  index,
			TotalChunks: total,
			Attempt:     attempt,
			Status:      RetryStatus(index, delay, err),
			Analysis:    acc.Snapshot(),
			Merged:      merged,
		})
		if u.policy.OnRetry != nil {
			u.policy.OnRetry(attempt, delay, err)
		}
	}

	var analysis stats.Analysis
	err := policy.Do(ctx, fmt.Sprintf("analyze segment %d", index+1), func(attemptCtx context.Context, attempt int) error {
		attempts = attempt
		merged, _ := acc.Progress()
		u.report(opts, Progress{
			ChunkIndex:  index,
			TotalChunks: total,
			Attempt:     attempt,
			Status:      AnalyzingStatus(index, total),
			Analysis:    acc.Snapshot(),
			Merged:      merged,
		})
		result, err := u.analyzer.AnalyzeFrames(attemptCtx, urls)
		if err != nil {
			return err
		}
		analysis = result
		return nil
	})
	if err != nil {
		return ChunkResult{}, err
	}
	return ChunkResult{
		Index:      index,
		Start:      chunk.Start,
		End:        chunk.End,
		FrameCount: len(chunk.Frames),
		Attempts:   attempts,
		Analysis:   analysis,
		Elapsed:    u.now().Sub(started),
	}, nil
}

func (u *Uploader) report(opts RunOptions, p Progress) {
	if opts.OnProgress != nil {
		opts.OnProgress(p)
	}
}

// AnalyzingStatus is the status line shown while a segment is in flight.
func AnalyzingStatus(index, total int) string {
	return fmt.Sprintf("Analyzing segment %d of %d", index+1, total)
}

// RetryStatus is the status line shown while waiting to retry a segment.
func RetryStatus(index int, delay time.Duration, err error) string {
	seconds := int(math.Ceil(delay.Seconds()))
	if errors.Is(err, analyzer.ErrRateLimited) {
		return fmt.Sprintf("Rate limited, retrying segment %d in %ds", index+1, seconds)
	}
	return fmt.Sprintf("Request failed, retrying segment %d in %ds", index+1, seconds)
}
