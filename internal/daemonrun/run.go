// Package daemonrun assembles and runs the daemon process: logging, PID file,
// store, analyzer, workflow manager, and HTTP surface.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"pinganalyst/internal/config"
	"pinganalyst/internal/daemon"
	"pinganalyst/internal/deps"
	"pinganalyst/internal/logging"
	"pinganalyst/internal/logs"
	"pinganalyst/internal/notifications"
	"pinganalyst/internal/progress"
	"pinganalyst/internal/store"
	"pinganalyst/internal/workflow"
)

// keepLogs is the number of run logs kept regardless of age.
const keepLogs = 5

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// Diagnostic stamps a session id on every record and writes a debug-level
	// JSON log next to the main one.
	Diagnostic bool
}

// Run starts the pinganalyst daemon and blocks until cmdCtx is cancelled or
// the process receives SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("pinganalyst-%s.log", runID))

	var sessionID string
	if opts.Diagnostic {
		sessionID = uuid.NewString()
	}
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
		SessionID:        sessionID,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	debugLogPath := ""
	if opts.Diagnostic {
		debugLogPath = filepath.Join(cfg.Paths.LogDir, "debug", fmt.Sprintf("pinganalyst-%s.log", runID))
		debugHandler, debugErr := logging.NewHandler(logging.Options{
			Level:       "debug",
			Format:      "json",
			OutputPaths: []string{debugLogPath},
			SessionID:   sessionID,
		})
		if debugErr != nil {
			fmt.Fprintf(os.Stderr, "warn: unable to initialize debug logger: %v\n", debugErr)
		} else {
			logger = logging.TeeLogger(logger, debugHandler)
		}
		logger.Info("diagnostic mode enabled",
			logging.String(logging.FieldEventType, "diagnostic_mode_enabled"),
			logging.String(logging.FieldSessionID, sessionID),
			logging.String("debug_log_path", debugLogPath),
		)
	}

	logDependencySnapshot(logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s link: %v\n", logs.CurrentName, err)
	}
	logging.PruneLogs(logger,
		logging.RetentionPolicy{MaxAge: time.Duration(cfg.Logging.RetentionDays) * 24 * time.Hour, Keep: keepLogs},
		logging.LogSet{Dir: cfg.Paths.LogDir, Pattern: "pinganalyst-*.log", Active: logPath},
		logging.LogSet{Dir: filepath.Join(cfg.Paths.LogDir, "debug"), Pattern: "pinganalyst-*.log", Active: debugLogPath},
	)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open match store", logging.Error(err))
		return err
	}

	matchAnalyzer, err := workflow.NewAnalyzer(signalCtx, cfg, logger)
	if err != nil {
		_ = st.Close()
		logging.ErrorWithContext(logger, "model provider unavailable", "analyzer_init_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "set llm.api_key or the provider's API key environment variable"),
		)
		return fmt.Errorf("create analyzer: %w", err)
	}

	hub := progress.NewHub(0)
	defer hub.Close()
	managerOpts := []workflow.ManagerOption{
		workflow.WithLogger(logger),
		workflow.WithHub(hub),
		workflow.WithNotifier(notifications.NewService(cfg)),
	}
	workflowManager := workflow.NewManager(cfg, st, matchAnalyzer, managerOpts...)

	d, err := daemon.New(cfg, st, logger, workflowManager, matchAnalyzer)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration, lock file, and bind address"),
			logging.String(logging.FieldImpact, "matches will not be processed"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("pinganalyst daemon shutting down")
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := logs.CurrentPath(logDir)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	statuses := deps.CheckBinaries([]deps.Requirement{
		{Name: "FFmpeg", Command: deps.ResolveFFmpegPath(cfg.FFmpegBinary())},
		{Name: "FFprobe", Command: deps.ResolveFFprobePath(cfg.FFprobeBinary())},
	})
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("llm_provider", cfg.LLM.Provider),
		logging.String("llm_model", cfg.LLM.Model),
		logging.Bool("llm_key_present", strings.TrimSpace(cfg.LLM.APIKey) != ""),
		logging.Bool("metrics_enabled", cfg.Metrics.Enabled),
	}
	for _, status := range statuses {
		key := strings.ToLower(status.Name)
		attrs = append(attrs,
			logging.Bool(key+"_available", status.Available),
			logging.String(key+"_binary", status.Command),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
