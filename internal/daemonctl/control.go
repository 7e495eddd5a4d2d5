// Package daemonctl launches, stops, and inspects the daemon process on
// behalf of the CLI.
package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"pinganalyst/internal/api"
	"pinganalyst/internal/config"
	"pinganalyst/internal/ipc"
	"pinganalyst/internal/preflight"
	"pinganalyst/internal/store"
)

// ErrDaemonNotRunning indicates no daemon answers and no live PID is recorded.
var ErrDaemonNotRunning = errors.New("daemon not running")

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	Diagnostic bool
}

// StartState describes the outcome of EnsureStarted.
type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State StartState
	PID   int
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// Launch starts a detached `pinganalyst serve` process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}
	args := []string{"serve"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if opts.Diagnostic {
		args = append(args, "--diagnostic")
	}
	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForClient polls the daemon until it answers or timeout passes.
func WaitForClient(ctx context.Context, cfg *config.Config, timeout time.Duration) (*ipc.Client, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(ctx, cfg)
		if err == nil {
			return client, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted launches the daemon unless one already answers.
func EnsureStarted(ctx context.Context, cfg *config.Config, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	if client, err := ipc.Dial(ctx, cfg); err == nil {
		status, _ := client.Status(ctx)
		result := StartResult{State: StartStateAlreadyRunning}
		if status != nil {
			result.PID = status.PID
		}
		return result, nil
	}
	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	client, err := WaitForClient(ctx, cfg, waitTimeout)
	if err != nil {
		return StartResult{}, err
	}
	result := StartResult{State: StartStateStarted}
	if status, err := client.Status(ctx); err == nil {
		result.PID = status.PID
	}
	return result, nil
}

// ReadPID returns the PID recorded by a running daemon, or 0.
func ReadPID(pidPath string) (int, error) {
	data, err := os.ReadFile(pidPath)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read daemon pid file %q: %w", pidPath, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, nil
	}
	return pid, nil
}

// ProcessAlive reports whether pid names a live process.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// StopAndTerminate sends SIGTERM to the daemon recorded in the PID file and
// escalates to SIGKILL if it is still alive after gracePeriod.
func StopAndTerminate(cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	pidPath := cfg.PIDPath()
	pid, err := ReadPID(pidPath)
	if err != nil {
		return StopResult{}, err
	}
	if !ProcessAlive(pid) {
		_ = os.Remove(pidPath)
		return StopResult{}, ErrDaemonNotRunning
	}
	if pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return StopResult{}, fmt.Errorf("signal daemon %d: %w", pid, err)
	}

	result := StopResult{PID: pid}
	deadline := time.Now().Add(gracePeriod)
	for time.Now().Before(deadline) {
		if !ProcessAlive(pid) {
			return result, nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return result, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	_ = os.Remove(pidPath)
	_ = os.Remove(cfg.LockPath())
	result.ForcedKill = true
	return result, nil
}

// RestartResult captures restart orchestration outcome.
type RestartResult struct {
	WasRunning bool
	Stop       StopResult
	Start      StartResult
}

// Restart stops any running daemon and starts a fresh one.
func Restart(ctx context.Context, cfg *config.Config, executablePath string, opts LaunchOptions, stopGrace, startTimeout time.Duration) (RestartResult, error) {
	var result RestartResult
	stop, err := StopAndTerminate(cfg, stopGrace)
	switch {
	case err == nil:
		result.WasRunning = true
		result.Stop = stop
	case !errors.Is(err, ErrDaemonNotRunning):
		return result, err
	}
	start, err := EnsureStarted(ctx, cfg, executablePath, opts, startTimeout)
	if err != nil {
		return result, err
	}
	result.Start = start
	return result, nil
}

// StatusSnapshot is what `pinganalyst status` prints.
type StatusSnapshot struct {
	DaemonRunning bool                   `json:"daemon_running"`
	Daemon        *api.DaemonStatus      `json:"daemon,omitempty"`
	MatchStats    map[string]int         `json:"match_stats"`
	Dependencies  []api.DependencyStatus `json:"dependencies"`
	Checks        []preflight.Result     `json:"checks"`
}

// BuildStatusSnapshot collects daemon status, falling back to the local store
// and dependency checks when the daemon is offline.
func BuildStatusSnapshot(ctx context.Context, cfg *config.Config) (*StatusSnapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	snapshot := &StatusSnapshot{Checks: preflight.RunLocal(cfg)}

	if client, err := ipc.Dial(ctx, cfg); err == nil {
		if status, statusErr := client.Status(ctx); statusErr == nil {
			snapshot.DaemonRunning = status.Running
			snapshot.Daemon = status
			snapshot.MatchStats = status.Workflow.MatchStats
			snapshot.Dependencies = status.Dependencies
		}
	}

	if snapshot.MatchStats == nil {
		queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if st, openErr := store.Open(cfg); openErr == nil {
			counts, statsErr := st.Stats(queryCtx)
			_ = st.Close()
			if statsErr == nil {
				snapshot.MatchStats = api.MergeMatchStats(counts)
			}
		}
	}
	if len(snapshot.Dependencies) == 0 {
		snapshot.Dependencies = api.FromDependencies(preflight.CheckSystemDeps(cfg))
	}
	return snapshot, nil
}
