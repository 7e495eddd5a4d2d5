package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"pinganalyst/internal/api"
)

var titleCaser = cases.Title(language.English)

func titleCase(s string) string {
	return titleCaser.String(strings.ReplaceAll(s, "_", " "))
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	return d.String()
}

// relativeTime renders an API timestamp as "3 minutes ago".
func relativeTime(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	t, err := time.Parse(api.TimeLayout, value)
	if err != nil {
		return value
	}
	return humanize.Time(t)
}

func progressLabel(m api.Match) string {
	if m.Progress.ChunksTotal == 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d (%.0f%%)", m.Progress.ChunksDone, m.Progress.ChunksTotal, m.Progress.Percent)
}
