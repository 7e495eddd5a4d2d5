package frames

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"pinganalyst/internal/logging"
)

// Frame is a single JPEG still sampled at Timestamp seconds.
type Frame struct {
	Timestamp float64
	JPEG      []byte
}

// DataURL encodes the frame the way the analysis endpoint expects it.
func (f Frame) DataURL() string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(f.JPEG)
}

// Chunk is a fixed-duration segment of the source video and its samples.
type Chunk struct {
	Index  int
	Total  int
	Start  float64
	End    float64
	Frames []Frame
}

// DataURLs returns every frame of the chunk as a data URL, in time order.
func (c Chunk) DataURLs() []string {
	out := make([]string, len(c.Frames))
	for i, frame := range c.Frames {
		out[i] = frame.DataURL()
	}
	return out
}

// ErrEmptyFrame is returned when ffmpeg produced no image for a timestamp.
var ErrEmptyFrame = errors.New("ffmpeg produced an empty frame")

// Extractor samples videos with ffprobe and ffmpeg.
type Extractor struct {
	opts       Options
	runner     Runner
	ffmpeg     string
	ffprobe    string
	logger     *slog.Logger
	onProgress func(done, total int)
}

// ExtractorOption customizes an Extractor.
type ExtractorOption func(*Extractor)

// WithRunner overrides how external commands are executed.
func WithRunner(runner Runner) ExtractorOption {
	return func(e *Extractor) {
		if runner != nil {
			e.runner = runner
		}
	}
}

// WithBinaries overrides the ffmpeg and ffprobe executables.
func WithBinaries(ffmpeg, ffprobe string) ExtractorOption {
	return func(e *Extractor) {
		if ffmpeg != "" {
			e.ffmpeg = ffmpeg
		}
		if ffprobe != "" {
			e.ffprobe = ffprobe
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) ExtractorOption {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithProgress registers a callback invoked after every captured frame. It may
// be called from multiple goroutines.
func WithProgress(fn func(done, total int)) ExtractorOption {
	return func(e *Extractor) {
		e.onProgress = fn
	}
}

// NewExtractor builds an extractor with the supplied sampling options.
func NewExtractor(opts Options, options ...ExtractorOption) *Extractor {
	e := &Extractor{
		opts:    opts.withDefaults(),
		runner:  ExecRunner{},
		ffmpeg:  "ffmpeg",
		ffprobe: "ffprobe",
		logger:  logging.NewNop(),
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// Options returns the effective sampling options.
func (e *Extractor) Options() Options {
	return e.opts
}

// Probe inspects the video at path.
func (e *Extractor) Probe(ctx context.Context, path string) (VideoInfo, error) {
	return Probe(ctx, e.runner, e.ffprobe, path)
}

// Extract samples the whole video and returns its chunks in time order.
func (e *Extractor) Extract(ctx context.Context, path string) ([]Chunk, error) {
	info, err := e.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	plans, err := Plan(info.Duration, e.opts)
	if err != nil {
		return nil, err
	}
	return e.ExtractPlans(ctx, path, info, plans)
}

// ExtractPlans captures the samples named by plans.
func (e *Extractor) ExtractPlans(ctx context.Context, path string, info VideoInfo, plans []ChunkPlan) ([]Chunk, error) {
	width, height := ScaleDimensions(info.Width, info.Height, e.opts.MaxDimension)
	total := FrameCount(plans)

	e.logger.Info("sampling video",
		logging.String("path", path),
		logging.Float64("duration_seconds", info.Duration),
		logging.Int("chunks", len(plans)),
		logging.Int("frames", total),
		logging.Int("width", width),
		logging.Int("height", height),
	)

	chunks := make([]Chunk, len(plans))
	for i, plan := range plans {
		chunks[i] = Chunk{
			Index:  plan.Index,
			Total:  plan.Total,
			Start:  plan.Start,
			End:    plan.End,
			Frames: make([]Frame, len(plan.Times)),
		}
	}

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)
	for ci, plan := range plans {
		last := ci == len(plans)-1
		for fi, ts := range plan.Times {
			g.Go(func() error {
				var (
					data []byte
					at   float64
					err  error
				)
				if last {
					data, at, err = e.captureTail(gctx, path, ts, width, height)
				} else {
					at = ts
					data, err = e.Capture(gctx, path, ts, width, height)
				}
				if err != nil {
					return fmt.Errorf("chunk %d frame at %.2fs: %w", plan.Index, ts, err)
				}
				chunks[ci].Frames[fi] = Frame{Timestamp: at, JPEG: data}
				n := done.Add(1)
				if e.onProgress != nil {
					e.onProgress(int(n), total)
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return chunks, nil
}

const (
	tailStep  = 0.5
	tailReach = 2.0
)

// captureTail captures a sample of the final chunk. The reported duration can
// run a little past the last decodable frame, so an empty capture steps back
// in tailStep increments, up to tailReach seconds, before giving up. It
// returns the timestamp actually captured.
func (e *Extractor) captureTail(ctx context.Context, path string, ts float64, width, height int) ([]byte, float64, error) {
	data, err := e.Capture(ctx, path, ts, width, height)
	for back := tailStep; errors.Is(err, ErrEmptyFrame) && back <= tailReach && ts-back >= 0; back += tailStep {
		data, err = e.Capture(ctx, path, ts-back, width, height)
		if err == nil {
			e.logger.Debug("empty frame near end of video; used earlier timestamp",
				logging.Float64("requested_seconds", ts),
				logging.Float64("captured_seconds", ts-back),
			)
			return data, ts - back, nil
		}
	}
	return data, ts, err
}

// Capture grabs a single JPEG at the given timestamp. Width and height of zero
// keep the source dimensions.
func (e *Extractor) Capture(ctx context.Context, path string, timestamp float64, width, height int) ([]byte, error) {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-ss", strconv.FormatFloat(timestamp, 'f', 3, 64),
		"-i", path,
		"-frames:v", "1",
	}
	if width > 0 && height > 0 {
		args = append(args, "-vf", scaleFilter(width, height))
	}
	args = append(args,
		"-q:v", strconv.Itoa(qscale(e.opts.JPEGQuality)),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-",
	)
	out, err := e.runner.Output(ctx, e.ffmpeg, args...)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrEmptyFrame
	}
	if !bytes.HasPrefix(out, []byte{0xFF, 0xD8}) {
		return nil, fmt.Errorf("ffmpeg output is not a jpeg (%d bytes)", len(out))
	}
	return out, nil
}
