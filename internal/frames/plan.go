package frames

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	defaultChunkDuration     = 30 * time.Second
	defaultFramesPerSecond   = 1.0
	defaultMinFramesPerChunk = 3
	defaultMaxDimension      = 640
	defaultJPEGQuality       = 0.7
	defaultConcurrency       = 4
)

// Options controls how a video is sampled.
type Options struct {
	ChunkDuration     time.Duration
	FramesPerSecond   float64
	MinFramesPerChunk int
	MaxDimension      int
	JPEGQuality       float64
	Concurrency       int
}

// DefaultOptions returns the sampling defaults: 30 second chunks at one frame
// per second, at least three frames per chunk, 640px on the long edge.
func DefaultOptions() Options {
	return Options{
		ChunkDuration:     defaultChunkDuration,
		FramesPerSecond:   defaultFramesPerSecond,
		MinFramesPerChunk: defaultMinFramesPerChunk,
		MaxDimension:      defaultMaxDimension,
		JPEGQuality:       defaultJPEGQuality,
		Concurrency:       defaultConcurrency,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.ChunkDuration <= 0 {
		o.ChunkDuration = def.ChunkDuration
	}
	if o.FramesPerSecond <= 0 {
		o.FramesPerSecond = def.FramesPerSecond
	}
	if o.MinFramesPerChunk <= 0 {
		o.MinFramesPerChunk = def.MinFramesPerChunk
	}
	if o.MaxDimension <= 0 {
		o.MaxDimension = def.MaxDimension
	}
	if o.JPEGQuality <= 0 || o.JPEGQuality > 1 {
		o.JPEGQuality = def.JPEGQuality
	}
	if o.Concurrency <= 0 {
		o.Concurrency = def.Concurrency
	}
	return o
}

// ChunkPlan lists the sample timestamps (seconds) for one chunk.
type ChunkPlan struct {
	Index int
	Total int
	Start float64
	End   float64
	Times []float64
}

// ErrInvalidDuration is returned when a video reports no usable duration.
var ErrInvalidDuration = errors.New("video duration must be positive")

// Plan splits a video of the given duration (seconds) into chunks and picks the
// sample times inside each chunk. Samples are spread evenly and never land on
// a chunk boundary.
func Plan(duration float64, opts Options) ([]ChunkPlan, error) {
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0 {
		return nil, fmt.Errorf("%w (got %v)", ErrInvalidDuration, duration)
	}
	opts = opts.withDefaults()
	chunkSeconds := opts.ChunkDuration.Seconds()
	total := int(math.Ceil(duration / chunkSeconds))
	if total < 1 {
		total = 1
	}

	plans := make([]ChunkPlan, 0, total)
	for c := 0; c < total; c++ {
		start := float64(c) * chunkSeconds
		end := math.Min(float64(c+1)*chunkSeconds, duration)
		segment := end - start
		count := int(math.Ceil(segment * opts.FramesPerSecond))
		if count < opts.MinFramesPerChunk {
			count = opts.MinFramesPerChunk
		}
		times := make([]float64, count)
		step := segment / float64(count+1)
		for i := range times {
			times[i] = start + step*float64(i+1)
		}
		plans = append(plans, ChunkPlan{
			Index: c,
			Total: total,
			Start: start,
			End:   end,
			Times: times,
		})
	}
	return plans, nil
}

// FrameCount returns the number of samples across all plans.
func FrameCount(plans []ChunkPlan) int {
	n := 0
	for _, p := range plans {
		n += len(p.Times)
	}
	return n
}

// ScaleDimensions caps the long edge at maxDim while keeping the aspect ratio,
// rounding to whole pixels. Videos smaller than maxDim are never upscaled.
func ScaleDimensions(width, height, maxDim int) (int, int) {
	if width <= 0 || height <= 0 {
		return 0, 0
	}
	if maxDim <= 0 {
		maxDim = defaultMaxDimension
	}
	scale := math.Min(1, float64(maxDim)/float64(max(width, height)))
	w := int(math.Round(float64(width) * scale))
	h := int(math.Round(float64(height) * scale))
	return max(w, 1), max(h, 1)
}

// scaleFilter builds ffmpeg's scale filter. ffmpeg's scaler rejects odd sizes
// for some pixel formats, so each side drops to the even number below it.
func scaleFilter(width, height int) string {
	return fmt.Sprintf("scale=%d:%d", evenAtLeastTwo(width), evenAtLeastTwo(height))
}

func evenAtLeastTwo(v int) int {
	if v%2 != 0 {
		v--
	}
	return max(v, 2)
}
