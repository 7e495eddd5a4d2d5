package deps

import (
	"os"
	"strings"
)

// ResolveFFmpegPath returns the ffmpeg binary to execute. PINGANALYST_FFMPEG
// overrides the configured name.
func ResolveFFmpegPath(configured string) string {
	return resolveBinary("PINGANALYST_FFMPEG", configured, "ffmpeg")
}

// ResolveFFprobePath returns the ffprobe binary to execute. PINGANALYST_FFPROBE
// overrides the configured name.
func ResolveFFprobePath(configured string) string {
	return resolveBinary("PINGANALYST_FFPROBE", configured, "ffprobe")
}

func resolveBinary(envName, configured, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(envName)); value != "" {
		return value
	}
	if value := strings.TrimSpace(configured); value != "" {
		return value
	}
	return fallback
}
