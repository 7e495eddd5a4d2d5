package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CurrentName is the link in the log directory that points at the running
// daemon's log file.
const CurrentName = "pinganalyst.log"

const pollInterval = 250 * time.Millisecond

// CurrentPath returns the current-log link inside logDir.
func CurrentPath(logDir string) string {
	return filepath.Join(logDir, CurrentName)
}

// TailOptions selects which lines Tail returns.
type TailOptions struct {
	// Offset is the byte position to resume from. Negative means "the last
	// Limit lines".
	Offset int64
	Limit  int
	// Follow waits up to Wait for new lines when none are available.
	Follow bool
	Wait   time.Duration
}

// TailResult holds complete lines and the offset after the last one.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail reads lines from path. A missing file yields no lines and offset 0.
// An offset past the end of the file, as after the daemon restarts with a new
// log, starts over from the beginning.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return TailResult{}, nil
		}
		return TailResult{Offset: opts.Offset}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("log path %q is a directory", path)
	}

	if opts.Offset < 0 {
		keep := opts.Limit
		if keep < 0 {
			keep = 0
		}
		lines, offset, err := readLines(path, 0, keep)
		if err != nil {
			return TailResult{}, err
		}
		if len(lines) > 0 || !opts.Follow {
			return TailResult{Lines: lines, Offset: offset}, nil
		}
		opts.Offset = offset
	}

	offset := opts.Offset
	if offset > info.Size() {
		offset = 0
	}
	deadline := time.Now().Add(max(opts.Wait, 0))
	for {
		lines, next, err := readLines(path, offset, -1)
		if err != nil {
			return TailResult{Offset: offset}, err
		}
		if len(lines) > 0 || !opts.Follow || !time.Now().Before(deadline) {
			return TailResult{Lines: lines, Offset: next}, nil
		}
		select {
		case <-ctx.Done():
			return TailResult{Offset: next}, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// readLines returns the complete lines after offset. keep < 0 returns every
// line; otherwise only the last keep lines are retained.
func readLines(path string, offset int64, keep int) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReaderSize(file, 64*1024)
	pos := offset
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, offset, fmt.Errorf("read log file: %w", err)
		}
		pos += int64(len(line))
		if keep == 0 {
			continue
		}
		lines = append(lines, strings.TrimRight(line, "\r\n"))
		if keep > 0 && len(lines) > keep {
			lines = append(lines[:0], lines[1:]...)
		}
	}
	return lines, pos, nil
}
