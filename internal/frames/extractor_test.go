package frames

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const probeJSON = `{
  "streams": [
    {"codec_type": "audio", "codec_name": "aac"},
    {"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "duration": "44.9"}
  ],
  "format": {"duration": "45.000000"}
}`

var fakeJPEG = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}

type fakeFFmpeg struct {
	mu       sync.Mutex
	captures []string
	failAt   string
}

func (f *fakeFFmpeg) runner() Runner {
	return RunnerFunc(func(_ context.Context, name string, args ...string) ([]byte, error) {
		switch name {
		case "ffprobe":
			return []byte(probeJSON), nil
		case "ffmpeg":
			ts := argAfter(args, "-ss")
			f.mu.Lock()
			f.captures = append(f.captures, strings.Join(args, " "))
			f.mu.Unlock()
			if f.failAt != "" && ts == f.failAt {
				return nil, errors.New("boom")
			}
			return fakeJPEG, nil
		}
		return nil, errors.New("unexpected command " + name)
	})
}

func argAfter(args []string, flag string) string {
	idx := slices.Index(args, flag)
	if idx < 0 || idx+1 >= len(args) {
		return ""
	}
	return args[idx+1]
}

func TestParseMediaInfo(t *testing.T) {
	info, err := parseProbe([]byte(probeJSON))
	if err != nil {
		t.Fatalf("parseProbe: %v", err)
	}
	if info.Duration != 44.9 || info.Width != 1920 || info.Height != 1080 || info.Codec != "h264" {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestParseMediaInfoUsesShorterDuration(t *testing.T) {
	tests := []struct {
		name      string
		stream    string
		container string
		want      float64
	}{
		{"audio outlasts video", "60.0", "61.0", 60},
		{"container shorter", "12.5", "12.0", 12},
		{"no stream duration", "", "30.5", 30.5},
		{"no container duration", "8.0", "N/A", 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := fmt.Sprintf(`{"streams":[{"codec_type":"video","width":640,"height":360,"duration":%q}],"format":{"duration":%q}}`,
				tt.stream, tt.container)
			info, err := parseProbe([]byte(data))
			if err != nil {
				t.Fatalf("parseProbe: %v", err)
			}
			if info.Duration != tt.want {
				t.Fatalf("duration = %v, want %v", info.Duration, tt.want)
			}
		})
	}
}

func TestParseMediaInfoErrors(t *testing.T) {
	if _, err := parseProbe([]byte(`{"streams":[{"codec_type":"audio"}],"format":{"duration":"3"}}`)); !errors.Is(err, ErrNoVideoStream) {
		t.Fatalf("expected ErrNoVideoStream, got %v", err)
	}
	if _, err := parseProbe([]byte(`{"streams":[{"codec_type":"video","width":2,"height":2}],"format":{"duration":"N/A"}}`)); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
	if _, err := parseProbe([]byte(`not json`)); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestExtractorExtract(t *testing.T) {
	fake := &fakeFFmpeg{}
	var progress atomic.Int64
	opts := DefaultOptions()
	opts.FramesPerSecond = 0.1
	ex := NewExtractor(opts,
		WithRunner(fake.runner()),
		WithProgress(func(done, total int) {
			progress.Store(int64(total))
		}),
	)

	chunks, err := ex.Extract(context.Background(), "/videos/match.mp4")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if len(chunks[0].Frames) != 3 || len(chunks[1].Frames) != 3 {
		t.Fatalf("expected 3 frames per chunk, got %d and %d", len(chunks[0].Frames), len(chunks[1].Frames))
	}
	for _, chunk := range chunks {
		for i := 1; i < len(chunk.Frames); i++ {
			if chunk.Frames[i].Timestamp <= chunk.Frames[i-1].Timestamp {
				t.Fatalf("frames out of order in chunk %d", chunk.Index)
			}
		}
	}
	if progress.Load() != 6 {
		t.Fatalf("progress total = %d, want 6", progress.Load())
	}
	if len(fake.captures) != 6 {
		t.Fatalf("expected 6 ffmpeg invocations, got %d", len(fake.captures))
	}
	for _, call := range fake.captures {
		if !strings.Contains(call, "scale=640:360") || !strings.Contains(call, "-q:v 11") {
			t.Fatalf("unexpected ffmpeg args: %s", call)
		}
	}

	urls := chunks[1].DataURLs()
	if len(urls) != 3 || !strings.HasPrefix(urls[0], "data:image/jpeg;base64,/9j/") {
		t.Fatalf("unexpected data urls %v", urls)
	}
}

func TestExtractorPropagatesCaptureFailure(t *testing.T) {
	fake := &fakeFFmpeg{failAt: "7.500"}
	opts := DefaultOptions()
	opts.FramesPerSecond = 0.1
	opts.ChunkDuration = 30 * time.Second
	ex := NewExtractor(opts, WithRunner(fake.runner()))

	_, err := ex.Extract(context.Background(), "/videos/match.mp4")
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected capture failure, got %v", err)
	}
}

func TestCaptureRejectsNonJPEG(t *testing.T) {
	ex := NewExtractor(DefaultOptions(), WithRunner(RunnerFunc(func(context.Context, string, ...string) ([]byte, error) {
		return []byte("GIF89a"), nil
	})))
	if _, err := ex.Capture(context.Background(), "x.mp4", 1, 0, 0); err == nil {
		t.Fatal("expected error for non-jpeg output")
	}

	empty := NewExtractor(DefaultOptions(), WithRunner(RunnerFunc(func(context.Context, string, ...string) ([]byte, error) {
		return nil, nil
	})))
	if _, err := empty.Capture(context.Background(), "x.mp4", 1, 0, 0); !errors.Is(err, ErrEmptyFrame) {
		t.Fatalf("expected ErrEmptyFrame, got %v", err)
	}
}

// emptyAfter returns a runner whose ffmpeg writes nothing for timestamps past
// end, like seeking beyond the last video frame.
func emptyAfter(end float64) Runner {
	return RunnerFunc(func(_ context.Context, name string, args ...string) ([]byte, error) {
		ts, err := strconv.ParseFloat(argAfter(args, "-ss"), 64)
		if err != nil {
			return nil, err
		}
		if ts > end {
			return nil, nil
		}
		return fakeJPEG, nil
	})
}

func TestExtractPlansFallsBackNearVideoEnd(t *testing.T) {
	opts := DefaultOptions()
	opts.FramesPerSecond = 0.1
	opts.ChunkDuration = 30 * time.Second
	plans, err := Plan(61, opts)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plans) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(plans))
	}

	ex := NewExtractor(opts, WithRunner(emptyAfter(60)))
	chunks, err := ex.ExtractPlans(context.Background(), "/videos/match.mp4", VideoInfo{Duration: 61, Width: 640, Height: 360}, plans)
	if err != nil {
		t.Fatalf("ExtractPlans: %v", err)
	}
	tail := chunks[2]
	if len(tail.Frames) != 3 {
		t.Fatalf("expected 3 tail frames, got %d", len(tail.Frames))
	}
	for _, frame := range tail.Frames {
		if len(frame.JPEG) == 0 || frame.Timestamp > 60 {
			t.Fatalf("tail frame not recovered: %+v", frame)
		}
	}
	if got := tail.Frames[0].Timestamp; got != 59.75 {
		t.Fatalf("first tail frame at %v, want 59.75", got)
	}
}

func TestExtractPlansEmptyFrameOutsideTailFails(t *testing.T) {
	opts := DefaultOptions()
	opts.FramesPerSecond = 0.1
	opts.ChunkDuration = 30 * time.Second
	plans, err := Plan(61, opts)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	ex := NewExtractor(opts, WithRunner(emptyAfter(10)))
	_, err = ex.ExtractPlans(context.Background(), "/videos/match.mp4", VideoInfo{Duration: 61, Width: 640, Height: 360}, plans)
	if !errors.Is(err, ErrEmptyFrame) {
		t.Fatalf("expected ErrEmptyFrame, got %v", err)
	}
}
