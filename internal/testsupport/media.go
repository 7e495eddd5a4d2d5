package testsupport

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"pinganalyst/internal/frames"
)

// FakeMedia answers ffprobe and ffmpeg invocations without running either.
// Every capture returns a tiny JPEG-prefixed payload.
type FakeMedia struct {
	Duration float64
	Width    int
	Height   int

	mu       sync.Mutex
	captures []float64
}

// Runner returns a frames.Runner backed by f.
func (f *FakeMedia) Runner() frames.Runner {
	return frames.RunnerFunc(func(_ context.Context, name string, args ...string) ([]byte, error) {
		if slices.Contains(args, "-show_format") {
			return []byte(fmt.Sprintf(`{"format":{"duration":"%.3f"},"streams":[{"codec_type":"video","width":%d,"height":%d}]}`,
				f.Duration, f.Width, f.Height)), nil
		}
		idx := slices.Index(args, "-ss")
		if idx < 0 || idx+1 >= len(args) {
			return nil, fmt.Errorf("unexpected %s invocation: %v", name, args)
		}
		ts, err := strconv.ParseFloat(args[idx+1], 64)
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.captures = append(f.captures, ts)
		n := len(f.captures)
		f.mu.Unlock()
		return []byte{0xFF, 0xD8, 0xFF, 0xE0, byte(n)}, nil
	})
}

// Captures returns the timestamps captured so far.
func (f *FakeMedia) Captures() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]float64(nil), f.captures...)
}
