package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"pinganalyst/internal/config"
	"pinganalyst/internal/dashboard"
	"pinganalyst/internal/frames"
	"pinganalyst/internal/pipeline"
	"pinganalyst/internal/stats"
	"pinganalyst/internal/workflow"
)

// extractorOptions is appended to every extractor the CLI builds.
var extractorOptions []frames.ExtractorOption

type samplingFlags struct {
	chunkSeconds float64
	fps          float64
}

func (f *samplingFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.chunkSeconds, "chunk-seconds", 0, "Seconds of video per model call (default from config)")
	cmd.Flags().Float64Var(&f.fps, "fps", 0, "Frames sampled per second of video (default from config)")
}

// apply returns a copy of cfg with the sampling overrides applied.
func (f *samplingFlags) apply(cfg *config.Config) (*config.Config, error) {
	local := *cfg
	if f.chunkSeconds != 0 {
		local.Sampling.ChunkSeconds = f.chunkSeconds
	}
	if f.fps != 0 {
		local.Sampling.FramesPerSecond = f.fps
	}
	if err := local.Validate(); err != nil {
		return nil, err
	}
	return &local, nil
}

type analyzeResult struct {
	File          string         `json:"file" yaml:"file"`
	Chunks        int            `json:"chunks" yaml:"chunks"`
	ChunksMerged  int            `json:"chunksMerged" yaml:"chunks_merged"`
	ElapsedSecond float64        `json:"elapsedSeconds" yaml:"elapsed_seconds"`
	Error         string         `json:"error,omitempty" yaml:"error,omitempty"`
	Analysis      stats.Analysis `json:"analysis" yaml:"analysis"`
}

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var format string
	var sampling samplingFlags

	cmd := &cobra.Command{
		Use:   "analyze <video>",
		Short: "Analyze a match video locally and print the dashboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := parseFormat(format)
			if err != nil {
				return err
			}
			cfg, err := sampling.apply(ctx.configValue())
			if err != nil {
				return err
			}
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			return runAnalyze(cmd, ctx, cfg, path, outFormat)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "Output format: text, json, or yaml")
	sampling.register(cmd)
	return cmd
}

func runAnalyze(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, path, format string) error {
	runCtx := cmd.Context()
	if runCtx == nil {
		runCtx = context.Background()
	}
	logger := ctx.cliLogger("warn")
	live := newLiveStatus(cmd.ErrOrStderr())
	defer live.done()

	started := time.Now()
	live.update("Extracting frames...")
	opts := append([]frames.ExtractorOption{
		frames.WithProgress(func(done, total int) {
			live.update(fmt.Sprintf("Extracting frames %d/%d", done, total))
		}),
	}, extractorOptions...)
	chunks, err := workflow.NewExtractor(cfg, logger, opts...).Extract(runCtx, path)
	if err != nil {
		return fmt.Errorf("extract frames: %w", err)
	}

	matchAnalyzer, err := workflow.NewAnalyzer(runCtx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create analyzer: %w", err)
	}
	uploader := pipeline.New(matchAnalyzer, workflow.RetryPolicy(cfg), pipeline.WithLogger(logger))
	acc, runErr := uploader.Run(runCtx, chunks, pipeline.RunOptions{
		OnProgress: func(p pipeline.Progress) {
			live.update(p.Status)
		},
	})
	live.done()

	merged, _ := acc.Progress()
	result := analyzeResult{
		File:          filepath.Base(path),
		Chunks:        len(chunks),
		ChunksMerged:  merged,
		ElapsedSecond: time.Since(started).Round(time.Millisecond).Seconds(),
		Analysis:      acc.Snapshot(),
	}
	if runErr != nil {
		result.Error = runErr.Error()
		if merged == 0 {
			return fmt.Errorf("analyze %s: %w", result.File, runErr)
		}
	}

	if handled, err := writeStructured(cmd, format, result); handled || err != nil {
		if err != nil {
			return err
		}
		return analyzeError(result.File, runErr)
	}

	status := ""
	if runErr != nil {
		status = fmt.Sprintf("Partial result: %d of %d segments merged", merged, len(chunks))
	}
	if err := dashboard.RenderText(cmd.OutOrStdout(), result.Analysis, dashboard.TextOptions{
		Title:  result.File,
		Status: status,
		Color:  isTerminal(cmd.OutOrStdout()),
	}); err != nil {
		return err
	}
	return analyzeError(result.File, runErr)
}

func analyzeError(name string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("analyze %s: %w", name, err)
}

// liveStatus rewrites a single status line on interactive terminals and stays
// silent otherwise. Extraction progress arrives from several goroutines.
type liveStatus struct {
	mu      sync.Mutex
	w       io.Writer
	enabled bool
	width   int
}

func newLiveStatus(w io.Writer) *liveStatus {
	return &liveStatus{w: w, enabled: isTerminal(w)}
}

func (l *liveStatus) update(message string) {
	if !l.enabled || message == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	pad := l.width - len(message)
	if pad < 0 {
		pad = 0
	}
	fmt.Fprintf(l.w, "\r%s%*s", message, pad, "")
	l.width = len(message)
}

func (l *liveStatus) done() {
	if !l.enabled {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.width == 0 {
		return
	}
	fmt.Fprintf(l.w, "\r%*s\r", l.width, "")
	l.width = 0
}
