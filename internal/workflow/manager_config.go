package workflow

import (
	"context"
	"log/slog"

	"pinganalyst/internal/analyzer"
	"pinganalyst/internal/config"
	"pinganalyst/internal/deps"
	"pinganalyst/internal/frames"
	"pinganalyst/internal/retry"
)

// SamplingOptions converts the [sampling] section into extractor options.
func SamplingOptions(cfg *config.Config) frames.Options {
	return frames.Options{
		ChunkDuration:     cfg.ChunkDuration(),
		FramesPerSecond:   cfg.Sampling.FramesPerSecond,
		MinFramesPerChunk: cfg.Sampling.MinFramesPerChunk,
		MaxDimension:      cfg.Sampling.MaxDimension,
		JPEGQuality:       cfg.Sampling.JPEGQuality,
		Concurrency:       cfg.Sampling.Concurrency,
	}
}

// RetryPolicy converts the [retry] section into a retry policy.
func RetryPolicy(cfg *config.Config) retry.Policy {
	return retry.Policy{
		Delays:         cfg.RetryDelays(),
		MaxDelay:       cfg.RetryMaxDelay(),
		AttemptTimeout: cfg.AttemptTimeout(),
	}
}

// BackendConfig converts the [llm] section into backend settings.
func BackendConfig(cfg *config.Config) analyzer.BackendConfig {
	return analyzer.BackendConfig{
		Provider:       cfg.LLM.Provider,
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	}
}

// NewAnalyzer builds the configured backend and wraps it in an Analyzer.
func NewAnalyzer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*analyzer.Analyzer, error) {
	backend, err := analyzer.NewBackend(ctx, BackendConfig(cfg))
	if err != nil {
		return nil, err
	}
	return analyzer.New(backend,
		analyzer.WithMaxFrames(cfg.LLM.MaxFrames),
		analyzer.WithLogger(logger),
	), nil
}

// NewExtractor builds a frame extractor for cfg with the resolved ffmpeg and
// ffprobe binaries. Extra options are applied last.
func NewExtractor(cfg *config.Config, logger *slog.Logger, opts ...frames.ExtractorOption) *frames.Extractor {
	base := []frames.ExtractorOption{
		frames.WithBinaries(
			deps.ResolveFFmpegPath(cfg.FFmpegBinary()),
			deps.ResolveFFprobePath(cfg.FFprobeBinary()),
		),
		frames.WithLogger(logger),
	}
	return frames.NewExtractor(SamplingOptions(cfg), append(base, opts...)...)
}
