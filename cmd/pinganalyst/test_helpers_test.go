package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"pinganalyst/internal/config"
	"pinganalyst/internal/daemon"
	"pinganalyst/internal/logging"
	"pinganalyst/internal/preflight"
	"pinganalyst/internal/stats"
	"pinganalyst/internal/testsupport"
	"pinganalyst/internal/workflow"
)

// writeConfig persists cfg so commands load it through --config.
func writeConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if configPath != "" {
		args = append([]string{"--config", configPath}, args...)
	}
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

type idleAnalyzer struct{}

func (idleAnalyzer) AnalyzeFrames(context.Context, []string) (stats.Analysis, error) {
	return stats.Empty(), nil
}

func holdPending(*config.Config) []preflight.Result {
	return []preflight.Result{{Name: "Model endpoint", Passed: false, Detail: "held for test"}}
}

// startDaemon runs an in-process daemon whose matches stay pending and
// returns the path of a config pointing at it.
func startDaemon(t *testing.T) (*config.Config, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	wf := workflow.NewManager(cfg, st, idleAnalyzer{}, workflow.WithPreflight(holdPending))
	d, err := daemon.New(cfg, st, logging.NewNop(), wf, idleAnalyzer{})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		d.Stop()
	})
	cfg.API.Bind = d.Address()
	return cfg, writeConfig(t, cfg)
}
