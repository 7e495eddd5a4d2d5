package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"pinganalyst/internal/frames"
	"pinganalyst/internal/logging"
	"pinganalyst/internal/metrics"
	"pinganalyst/internal/pipeline"
	"pinganalyst/internal/progress"
	"pinganalyst/internal/services"
	"pinganalyst/internal/stats"
	"pinganalyst/internal/store"
)

func (m *Manager) processMatch(ctx context.Context, match *store.Match) error {
	ctx = services.WithMatchID(ctx, match.ID)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, m.logger)
	started := time.Now()

	metrics.ActiveMatches.Inc()
	defer metrics.ActiveMatches.Dec()

	m.setProcessingState(match, store.StatusExtracting, "Extracting frames")
	if err := m.store.Update(ctx, match); err != nil {
		wrapped := fmt.Errorf("persist processing transition: %w", err)
		logger.Error("failed to mark match in flight", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}
	m.setLastMatch(match)
	m.publish(match, nil)
	logger.Info("match started",
		logging.String(logging.FieldEventType, "match_start"),
		logging.String("file_name", match.FileName),
		logging.String("source_path", match.SourcePath),
	)

	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, match.ID)

	final, err := m.analyzeMatch(ctx, logger, match)
	hbCancel()
	hbWG.Wait()

	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			logger.Info("match interrupted by shutdown",
				logging.String(logging.FieldEventType, "match_interrupted"),
				logging.Int("chunks_done", match.ChunksDone),
				logging.Int("chunks_total", match.ChunksTotal),
			)
			return err
		}
		m.handleMatchFailure(ctx, logger, match, final, err)
		m.setLastError(err)
		return err
	}

	m.handleMatchSuccess(ctx, logger, match, final, time.Since(started))
	return nil
}

// analyzeMatch samples the video and runs every chunk not already stored. The
// returned analysis holds whatever was merged, even on failure.
func (m *Manager) analyzeMatch(ctx context.Context, logger *slog.Logger, match *store.Match) (stats.Analysis, error) {
	if _, err := os.Stat(match.SourcePath); err != nil {
		return stats.Empty(), services.Wrap(services.ErrNotFound, "extract", "stat video", "staged video unavailable", err)
	}

	sampler := logging.NewStepSampler(10)
	opts := append([]frames.ExtractorOption(nil), m.extractorOps...)
	extractor := NewExtractor(m.cfg, logger, append(opts,
		frames.WithProgress(func(done, total int) {
			if !sampler.Allow(done, total) {
				return
			}
			m.publishEvent(progress.Event{
				MatchID:     match.ID,
				Status:      string(store.StatusExtracting),
				Message:     fmt.Sprintf("Extracting frames (%d of %d)", done, total),
				ChunksDone:  match.ChunksDone,
				ChunksTotal: match.ChunksTotal,
			})
		}),
	)...)

	info, err := extractor.Probe(ctx, match.SourcePath)
	if err != nil {
		return stats.Empty(), wrapExtractError("probe video", err)
	}
	plans, err := frames.Plan(info.Duration, extractor.Options())
	if err != nil {
		return stats.Empty(), services.Wrap(services.ErrValidation, "extract", "plan chunks", "video has no usable duration", err)
	}

	merged, completed, err := m.resumeState(ctx, logger, match.ID, plans)
	if err != nil {
		return stats.Empty(), err
	}

	remaining := make([]frames.ChunkPlan, 0, len(plans))
	for _, plan := range plans {
		if !completed[plan.Index] {
			remaining = append(remaining, plan)
		}
	}

	total := len(plans)
	match.DurationSeconds = info.Duration
	match.ChunksTotal = total
	match.ChunksDone = len(completed)
	match.ProgressMessage = fmt.Sprintf("Extracting frames from %d segments", len(remaining))
	if err := m.store.Update(ctx, match); err != nil {
		return merged, fmt.Errorf("persist extraction plan: %w", err)
	}
	m.publish(match, nil)

	chunks, err := extractor.ExtractPlans(ctx, match.SourcePath, info, remaining)
	if err != nil {
		return merged, wrapExtractError("capture frames", err)
	}
	metrics.FramesExtractedTotal.Add(float64(frames.FrameCount(remaining)))

	acc := stats.NewAccumulator(total)
	if len(completed) > 0 {
		acc = stats.ResumeAccumulator(merged, len(completed), total)
		logger.Info("resuming match",
			logging.String(logging.FieldEventType, "match_resume"),
			logging.Int("chunks_done", len(completed)),
			logging.Int("chunks_total", total),
		)
	}

	match.Status = store.StatusAnalyzing
	match.ProgressMessage = pipeline.AnalyzingStatus(len(completed), total)
	if err := m.store.Update(ctx, match); err != nil {
		return acc.Snapshot(), fmt.Errorf("persist analyzing transition: %w", err)
	}
	snapshot := acc.Snapshot()
	m.publish(match, &snapshot)

	policy := RetryPolicy(m.cfg)
	policy.OnRetry = func(attempt int, _ time.Duration, _ error) {
		metrics.RetryTotal.WithLabelValues(strconv.Itoa(attempt)).Inc()
	}
	uploader := pipeline.New(m.analyzer, policy, pipeline.WithLogger(logger))

	_, err = uploader.Run(ctx, chunks, pipeline.RunOptions{
		Accumulator: acc,
		Completed:   completed,
		OnProgress: func(p pipeline.Progress) {
			match.ProgressMessage = p.Status
			analysis := p.Analysis
			m.publish(match, &analysis)
		},
		OnChunk: func(r pipeline.ChunkResult) error {
			metrics.ChunksAnalyzedTotal.WithLabelValues("ok").Inc()
			metrics.ChunkAnalysisDuration.WithLabelValues(m.providerLabel()).Observe(r.Elapsed.Seconds())
			if err := m.store.SaveChunkResult(ctx, store.ChunkResult{
				MatchID:      match.ID,
				ChunkIndex:   r.Index,
				StartSeconds: r.Start,
				EndSeconds:   r.End,
				FrameCount:   r.FrameCount,
				Attempts:     r.Attempts,
				Analysis:     r.Analysis,
			}); err != nil {
				return err
			}
			done, _ := acc.Progress()
			match.ChunksDone = done
			if err := match.SetAnalysis(acc.Snapshot()); err != nil {
				return err
			}
			return m.store.Update(ctx, match)
		},
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			metrics.ChunksAnalyzedTotal.WithLabelValues("failed").Inc()
		}
		return acc.Snapshot(), err
	}
	return acc.Snapshot(), nil
}

// resumeState loads stored chunk results. Results that no longer line up with
// the current plan, for example after chunk_seconds changed, are discarded.
func (m *Manager) resumeState(ctx context.Context, logger *slog.Logger, matchID int64, plans []frames.ChunkPlan) (stats.Analysis, map[int]bool, error) {
	results, err := m.store.ChunkResults(ctx, matchID)
	if err != nil {
		return stats.Empty(), nil, fmt.Errorf("load chunk results: %w", err)
	}
	if len(results) == 0 {
		return stats.Empty(), map[int]bool{}, nil
	}
	for _, r := range results {
		if r.ChunkIndex >= len(plans) || math.Abs(plans[r.ChunkIndex].Start-r.StartSeconds) > 0.001 {
			logging.WarnWithContext(logger, "stored chunk results do not match the current plan; starting over",
				"chunk_results_discarded",
				logging.Int("stored", len(results)),
				logging.Int("planned", len(plans)),
				logging.String(logging.FieldErrorHint, "sampling settings changed since the match was first analyzed"),
				logging.String(logging.FieldImpact, "every segment is analyzed again"),
			)
			if err := m.store.ClearChunkResults(ctx, matchID); err != nil {
				return stats.Empty(), nil, fmt.Errorf("clear chunk results: %w", err)
			}
			return stats.Empty(), map[int]bool{}, nil
		}
	}
	merged, completed := store.MergeChunkResults(results)
	return merged, completed, nil
}

func (m *Manager) setProcessingState(match *store.Match, status store.Status, message string) {
	now := time.Now().UTC()
	match.Status = status
	match.ProgressMessage = message
	match.ErrorMessage = ""
	match.LastHeartbeat = &now
}

func (m *Manager) providerLabel() string {
	if m.cfg == nil || m.cfg.LLM.Provider == "" {
		return "gateway"
	}
	return m.cfg.LLM.Provider
}

func (m *Manager) publish(match *store.Match, analysis *stats.Analysis) {
	m.publishEvent(progress.Event{
		MatchID:     match.ID,
		Status:      string(match.Status),
		Message:     match.ProgressMessage,
		ChunksDone:  match.ChunksDone,
		ChunksTotal: match.ChunksTotal,
		Analysis:    analysis,
		Error:       match.ErrorMessage,
	})
}

func (m *Manager) publishEvent(ev progress.Event) {
	if m.hub == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	m.hub.Publish(ev)
}

func wrapExtractError(operation string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, frames.ErrNoVideoStream) || errors.Is(err, frames.ErrInvalidDuration) {
		return services.Wrap(services.ErrValidation, "extract", operation, "not a usable video", err)
	}
	return services.Wrap(services.ErrExternalTool, "extract", operation, "", err)
}
