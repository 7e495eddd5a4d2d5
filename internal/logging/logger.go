package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"pinganalyst/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string // "console" (default) or "json"
	// OutputPaths and ErrorOutputPaths accept "stdout", "stderr" or file
	// paths. Both lists feed the same writer; duplicates are opened once.
	OutputPaths      []string
	ErrorOutputPaths []string
	Development      bool
	// SessionID, when set, is stamped on every record.
	SessionID string
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	handler, err := NewHandler(opts)
	if err != nil {
		return nil, err
	}
	return slog.New(handler), nil
}

// NewHandler builds the handler behind New so callers can tee it.
func NewHandler(opts Options) (slog.Handler, error) {
	level := parseLevel(opts.Level)
	build, err := handlerFor(opts.Format)
	if err != nil {
		return nil, err
	}

	targets := opts.OutputPaths
	if len(targets) == 0 {
		targets = []string{"stdout"}
	}
	errTargets := opts.ErrorOutputPaths
	if len(errTargets) == 0 {
		errTargets = []string{"stderr"}
	}
	out, err := openSinks(slices.Concat(targets, errTargets))
	if err != nil {
		return nil, err
	}

	handler := build(out, level, opts.Development || level <= slog.LevelDebug)
	if id := strings.TrimSpace(opts.SessionID); id != "" {
		handler = withStamp(handler, slog.String(FieldSessionID, id))
	}
	return handler, nil
}

// NewFromConfig creates a stderr logger from the [logging] section. Nothing
// is written to disk; the daemon adds its own file sink.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	opts := Options{Level: "info", Format: "console"}
	if cfg != nil {
		opts = Options{
			Level:            cfg.Logging.Level,
			Format:           cfg.Logging.Format,
			OutputPaths:      []string{"stderr"},
			ErrorOutputPaths: []string{"stderr"},
		}
	}
	return New(opts)
}

type handlerBuilder func(w io.Writer, level slog.Leveler, addSource bool) slog.Handler

func handlerFor(format string) (handlerBuilder, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "console":
		return newConsoleHandler, nil
	case "json":
		return newJSONHandler, nil
	}
	return nil, fmt.Errorf("log format: unsupported value %q", format)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func openSinks(targets []string) (io.Writer, error) {
	var (
		writers []io.Writer
		opened  = map[string]bool{}
	)
	for _, target := range targets {
		target = strings.TrimSpace(target)
		if target == "" || opened[target] {
			continue
		}
		opened[target] = true
		switch target {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return nil, fmt.Errorf("create log dir for %s: %w", target, err)
			}
			file, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", target, err)
			}
			writers = append(writers, file)
		}
	}
	switch len(writers) {
	case 0:
		return os.Stdout, nil
	case 1:
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}
