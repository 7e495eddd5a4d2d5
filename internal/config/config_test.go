package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pelletier/go-toml/v2"

	"pinganalyst/internal/config"
)

func clearKeyEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"PINGANALYST_API_KEY", "LOVABLE_API_KEY", "OPENROUTER_API_KEY",
		"GEMINI_API_KEY", "GOOGLE_API_KEY", "OPENAI_API_KEY", "PINGANALYST_API_TOKEN",
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	clearKeyEnv(t)
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantStaging := filepath.Join(tempHome, ".local", "share", "pinganalyst", "staging")
	if cfg.Paths.StagingDir != wantStaging {
		t.Fatalf("unexpected staging dir: got %q want %q", cfg.Paths.StagingDir, wantStaging)
	}
	if cfg.DatabasePath() != filepath.Join(tempHome, ".local", "share", "pinganalyst", "pinganalyst.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.API.Bind != "127.0.0.1:7490" {
		t.Fatalf("unexpected api bind: %q", cfg.API.Bind)
	}
	if cfg.LLM.Provider != "gateway" || cfg.LLM.Model != "google/gemini-2.5-flash" {
		t.Fatalf("unexpected llm defaults: %+v", cfg.LLM)
	}
	if cfg.LLM.APIKey != "" {
		t.Fatalf("expected empty api key, got %q", cfg.LLM.APIKey)
	}
	if diff := cmp.Diff([]time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}, cfg.RetryDelays()); diff != "" {
		t.Fatalf("retry delays mismatch (-want +got):\n%s", diff)
	}
	if cfg.ChunkDuration() != 30*time.Second {
		t.Fatalf("unexpected chunk duration: %s", cfg.ChunkDuration())
	}
	if cfg.MaxUploadBytes() != 250<<20 {
		t.Fatalf("unexpected upload limit: %d", cfg.MaxUploadBytes())
	}
}

func TestLoadUsesProviderKeyEnv(t *testing.T) {
	clearKeyEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	t.Setenv("LOVABLE_API_KEY", " gateway-key ")
	t.Setenv("GEMINI_API_KEY", "gemini-key")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LLM.APIKey != "gateway-key" {
		t.Fatalf("expected gateway key from env, got %q", cfg.LLM.APIKey)
	}

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[llm]\nprovider = \"gemini\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected explicit config to exist")
	}
	if cfg.LLM.APIKey != "gemini-key" {
		t.Fatalf("expected gemini key from env, got %q", cfg.LLM.APIKey)
	}
	if cfg.LLM.BaseURL != "" {
		t.Fatalf("expected gateway base url to be cleared for gemini, got %q", cfg.LLM.BaseURL)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	clearKeyEnv(t)
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("PINGANALYST_API_KEY=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LLM.APIKey != "from-dotenv" {
		t.Fatalf("expected key from .env, got %q", cfg.LLM.APIKey)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	clearKeyEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	cases := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"provider", "[llm]\nprovider = \"claude\"\n", "llm.provider"},
		{"quality", "[sampling]\njpeg_quality = 1.5\n", "sampling.jpeg_quality"},
		{"bind", "[api]\nbind = \"nope\"\n", "api.bind"},
		{"heartbeat", "[workflow]\nheartbeat_interval = 30\nheartbeat_timeout = 10\n", "heartbeat_timeout"},
		{"negative delay", "[retry]\ndelays_seconds = [5, -1]\n", "retry.delays_seconds[1]"},
		{"ntfy", "[notifications]\nntfy_topic = \"my-topic\"\n", "ntfy_topic"},
		{"level", "[logging]\nlevel = \"chatty\"\n", "logging.level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tc.body), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			_, _, _, err := config.Load(path)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestEmptyRetryScheduleDisablesRetries(t *testing.T) {
	clearKeyEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[retry]\ndelays_seconds = []\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(cfg.RetryDelays()) != 0 {
		t.Fatalf("expected no retry delays, got %v", cfg.RetryDelays())
	}
}

func TestSampleConfigParses(t *testing.T) {
	var cfg config.Config
	if err := toml.Unmarshal([]byte(config.SampleConfig()), &cfg); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	want := config.Default()
	if diff := cmp.Diff(want.Sampling, cfg.Sampling); diff != "" {
		t.Fatalf("sample sampling section drifted from defaults (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.Retry, cfg.Retry); diff != "" {
		t.Fatalf("sample retry section drifted from defaults (-want +got):\n%s", diff)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[sampling]") {
		t.Fatal("expected sample to contain sampling section")
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StagingDir, cfg.Paths.StateDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}
