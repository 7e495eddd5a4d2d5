// Package staging reclaims space in the upload staging directory: partial
// uploads left behind by a crash and staged videos no match refers to.
package staging

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pinganalyst/internal/logging"
)

// PartialPrefix marks upload temp files that have not been renamed into place.
const PartialPrefix = ".upload-"

// Result contains the outcome of a cleanup pass.
type Result struct {
	Removed []string
	Freed   int64
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path string
	Err  error
}

// CleanPartialUploads removes partial upload files older than maxAge.
func CleanPartialUploads(ctx context.Context, stagingDir string, maxAge time.Duration, logger *slog.Logger) Result {
	cutoff := time.Now().Add(-maxAge)
	return sweep(ctx, stagingDir, logger, "partial", func(name string, info fs.FileInfo) bool {
		return strings.HasPrefix(name, PartialPrefix) && info.ModTime().Before(cutoff)
	})
}

// CleanOrphaned removes staged videos whose absolute path is not in
// referenced. Partial uploads are left to CleanPartialUploads.
func CleanOrphaned(ctx context.Context, stagingDir string, referenced map[string]struct{}, logger *slog.Logger) Result {
	root, err := filepath.Abs(strings.TrimSpace(stagingDir))
	if err != nil {
		return Result{Errors: []CleanupError{{Path: stagingDir, Err: err}}}
	}
	return sweep(ctx, root, logger, "orphaned", func(name string, _ fs.FileInfo) bool {
		if strings.HasPrefix(name, PartialPrefix) {
			return false
		}
		_, ok := referenced[filepath.Join(root, name)]
		return !ok
	})
}

func sweep(ctx context.Context, stagingDir string, logger *slog.Logger, kind string, remove func(string, fs.FileInfo) bool) Result {
	var result Result
	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return result
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			result.Errors = append(result.Errors, CleanupError{Path: stagingDir, Err: err})
		}
		return result
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(stagingDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Err: err})
			continue
		}
		if !remove(entry.Name(), info) {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			result.Errors = append(result.Errors, CleanupError{Path: path, Err: err})
			logger.Warn("failed to remove "+kind+" staging file",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "staging_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, path)
		result.Freed += info.Size()
		logger.Info("removed "+kind+" staging file",
			logging.String("path", path),
			logging.Int64("bytes", info.Size()),
			logging.String(logging.FieldEventType, "staging_cleanup"),
		)
	}
	return result
}

// Usage summarizes the staged files.
type Usage struct {
	Files int
	Bytes int64
}

// DirUsage counts the complete staged files in stagingDir. A missing
// directory is empty.
func DirUsage(stagingDir string) (Usage, error) {
	var usage Usage
	entries, err := os.ReadDir(strings.TrimSpace(stagingDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return usage, nil
		}
		return usage, err
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), PartialPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		usage.Files++
		usage.Bytes += info.Size()
	}
	return usage, nil
}
