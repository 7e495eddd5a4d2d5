package analyzer

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"pinganalyst/internal/logging"
	"pinganalyst/internal/services/llm"
	"pinganalyst/internal/stats"
)

// DefaultMaxFrames bounds how many images go into one request.
const DefaultMaxFrames = 8

// Backend sends one multimodal prompt to a model and returns its text reply.
type Backend interface {
	Name() string
	Model() string
	Generate(ctx context.Context, req llm.Request) (string, error)
	HealthCheck(ctx context.Context) error
}

// Analyzer turns a set of frames into a chunk Analysis.
type Analyzer struct {
	backend   Backend
	maxFrames int
	logger    *slog.Logger
}

// Option customizes an Analyzer.
type Option func(*Analyzer)

// WithMaxFrames caps the number of images per request.
func WithMaxFrames(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxFrames = n
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New wraps backend.
func New(backend Backend, opts ...Option) *Analyzer {
	a := &Analyzer{
		backend:   backend,
		maxFrames: DefaultMaxFrames,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logging.NewComponentLogger(a.logger, "analyzer")
	return a
}

// Backend returns the wrapped backend.
func (a *Analyzer) Backend() Backend {
	return a.backend
}

// AnalyzeFrames sends frames (data URLs) to the backend and normalizes the
// reply. Failures are returned as *Error where the provider gave a reason.
func (a *Analyzer) AnalyzeFrames(ctx context.Context, frames []string) (stats.Analysis, error) {
	if len(frames) == 0 {
		return stats.Analysis{}, ErrNoFrames
	}
	selected := SelectFrames(frames, a.maxFrames)
	started := time.Now()
	content, err := a.backend.Generate(ctx, llm.Request{
		System: SystemPrompt,
		User:   UserPrompt,
		Images: selected,
		JSON:   true,
	})
	if err != nil {
		classified := classify(err)
		a.logger.Debug("analysis request failed",
			logging.String("backend", a.backend.Name()),
			logging.Int("frames", len(selected)),
			logging.Duration("elapsed", time.Since(started)),
			logging.Error(err),
		)
		return stats.Analysis{}, classified
	}

	var report stats.Report
	if err := llm.DecodeLLMJSON(content, &report); err != nil {
		logging.WarnWithContext(a.logger, "analysis reply not decodable", "analysis_parse_failed",
			logging.String(logging.FieldErrorHint, "check model output format"),
			logging.String(logging.FieldImpact, "chunk counts as failed"),
			logging.Error(err),
		)
		return stats.Analysis{}, &Error{Kind: ErrSchemaMismatch, Message: "Failed to parse analysis results", Err: err}
	}
	if !report.Recognized() {
		return stats.Analysis{}, &Error{
			Kind:    ErrSchemaMismatch,
			Message: "Failed to parse analysis results",
			Err:     errors.New("reply has no analysis fields"),
		}
	}

	a.logger.Debug("analysis request completed",
		logging.String("backend", a.backend.Name()),
		logging.String("model", a.backend.Model()),
		logging.Int("frames", len(selected)),
		logging.Duration("elapsed", time.Since(started)),
	)
	return stats.FromReport(report), nil
}

// SelectFrames picks at most limit frames spread evenly across the input,
// always keeping the first and last.
func SelectFrames(frames []string, limit int) []string {
	if limit <= 0 || len(frames) <= limit {
		return frames
	}
	if limit == 1 {
		return []string{frames[len(frames)/2]}
	}
	out := make([]string, limit)
	step := float64(len(frames)-1) / float64(limit-1)
	for i := range out {
		out[i] = frames[int(math.Round(step*float64(i)))]
	}
	return out
}
