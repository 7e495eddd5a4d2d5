package logging

import (
	"cmp"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// LogSet is one directory of rotated log files.
type LogSet struct {
	Dir     string
	Pattern string // filepath.Match pattern; empty matches every file
	Active  string // file currently being written; never removed
}

// RetentionPolicy removes log files older than MaxAge, but always leaves the
// Keep newest files of each set in place.
type RetentionPolicy struct {
	MaxAge time.Duration
	Keep   int
}

// PruneLogs applies policy to each set and returns the number of files
// removed. A zero MaxAge disables pruning.
func PruneLogs(logger *slog.Logger, policy RetentionPolicy, sets ...LogSet) int {
	if policy.MaxAge <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-policy.MaxAge)
	removed := 0
	for _, set := range sets {
		for _, candidate := range expired(set, cutoff, policy.Keep) {
			if err := os.Remove(candidate); err != nil {
				WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
					String("path", candidate),
					Error(err),
					String(FieldErrorHint, "check file permissions and log_dir ownership"),
					String(FieldImpact, "old log file remains on disk"),
				)
				continue
			}
			removed++
			if logger != nil {
				logger.Debug("log pruned", String("path", candidate), String(FieldEventType, "log_pruned"))
			}
		}
	}
	return removed
}

type logFile struct {
	path string
	mod  time.Time
}

func expired(set LogSet, cutoff time.Time, keep int) []string {
	if set.Dir == "" {
		return nil
	}
	entries, err := os.ReadDir(set.Dir)
	if err != nil {
		return nil
	}
	active := ""
	if set.Active != "" {
		active, _ = filepath.Abs(set.Active)
	}

	var files []logFile
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if set.Pattern != "" {
			if ok, err := filepath.Match(set.Pattern, entry.Name()); err != nil || !ok {
				continue
			}
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path, _ := filepath.Abs(filepath.Join(set.Dir, entry.Name()))
		if path == active {
			continue
		}
		files = append(files, logFile{path: path, mod: info.ModTime()})
	}

	slices.SortFunc(files, func(a, b logFile) int { return b.mod.Compare(a.mod) })
	if active != "" {
		keep--
	}
	files = files[min(max(keep, 0), len(files)):]

	var out []string
	for _, f := range files {
		if f.mod.Before(cutoff) {
			out = append(out, f.path)
		}
	}
	slices.SortFunc(out, cmp.Compare[string])
	return out
}
