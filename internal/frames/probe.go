package frames

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// VideoInfo is the subset of ffprobe output the extractor needs.
type VideoInfo struct {
	Duration float64
	Width    int
	Height   int
	Codec    string
}

// ErrNoVideoStream is returned when the input carries no video track.
var ErrNoVideoStream = errors.New("no video stream found")

type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe inspects path with ffprobe.
func Probe(ctx context.Context, runner Runner, ffprobe, path string) (VideoInfo, error) {
	if runner == nil {
		runner = ExecRunner{}
	}
	if strings.TrimSpace(ffprobe) == "" {
		ffprobe = "ffprobe"
	}
	out, err := runner.Output(ctx, ffprobe,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return VideoInfo{}, fmt.Errorf("probe %s: %w", path, err)
	}
	return parseProbe(out)
}

func parseProbe(data []byte) (VideoInfo, error) {
	var parsed probeOutput
	if err := json.Unmarshal(data, &parsed); err != nil {
		return VideoInfo{}, fmt.Errorf("decode ffprobe output: %w", err)
	}
	var info VideoInfo
	found := false
	for _, stream := range parsed.Streams {
		if stream.CodecType != "video" {
			continue
		}
		info.Width = stream.Width
		info.Height = stream.Height
		info.Codec = stream.CodecName
		info.Duration = parseSeconds(stream.Duration)
		found = true
		break
	}
	if !found {
		return VideoInfo{}, ErrNoVideoStream
	}
	// Audio can outlast the video track; the container then overstates what
	// can be sampled.
	if container := parseSeconds(parsed.Format.Duration); container > 0 && (info.Duration <= 0 || container < info.Duration) {
		info.Duration = container
	}
	if info.Duration <= 0 {
		return VideoInfo{}, ErrInvalidDuration
	}
	return info, nil
}

func parseSeconds(value string) float64 {
	value = strings.TrimSpace(value)
	if value == "" || value == "N/A" {
		return 0
	}
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return seconds
}
