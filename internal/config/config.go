package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir" json:"staging_dir" yaml:"staging_dir"`
	StateDir   string `toml:"state_dir" json:"state_dir" yaml:"state_dir"`
	LogDir     string `toml:"log_dir" json:"log_dir" yaml:"log_dir"`
}

// API contains the daemon HTTP surface settings.
type API struct {
	Bind        string `toml:"bind" json:"bind" yaml:"bind"`
	Token       string `toml:"token" json:"-" yaml:"-"`
	MaxUploadMB int    `toml:"max_upload_mb" json:"max_upload_mb" yaml:"max_upload_mb"`
	CORSOrigin  string `toml:"cors_origin" json:"cors_origin" yaml:"cors_origin"`
}

// LLM contains the model provider connection settings.
type LLM struct {
	Provider       string `toml:"provider" json:"provider" yaml:"provider"`
	APIKey         string `toml:"api_key" json:"-" yaml:"-"`
	BaseURL        string `toml:"base_url" json:"base_url" yaml:"base_url"`
	Model          string `toml:"model" json:"model" yaml:"model"`
	Referer        string `toml:"referer" json:"referer" yaml:"referer"`
	Title          string `toml:"title" json:"title" yaml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds" json:"timeout_seconds" yaml:"timeout_seconds"`
	MaxFrames      int    `toml:"max_frames" json:"max_frames" yaml:"max_frames"`
}

// Sampling controls how videos are cut into chunks and frames.
type Sampling struct {
	ChunkSeconds      float64 `toml:"chunk_seconds" json:"chunk_seconds" yaml:"chunk_seconds"`
	FramesPerSecond   float64 `toml:"frames_per_second" json:"frames_per_second" yaml:"frames_per_second"`
	MinFramesPerChunk int     `toml:"min_frames_per_chunk" json:"min_frames_per_chunk" yaml:"min_frames_per_chunk"`
	MaxDimension      int     `toml:"max_dimension" json:"max_dimension" yaml:"max_dimension"`
	JPEGQuality       float64 `toml:"jpeg_quality" json:"jpeg_quality" yaml:"jpeg_quality"`
	Concurrency       int     `toml:"concurrency" json:"concurrency" yaml:"concurrency"`
}

// Retry is the backoff schedule for model calls.
type Retry struct {
	DelaysSeconds         []int `toml:"delays_seconds" json:"delays_seconds" yaml:"delays_seconds"`
	MaxDelaySeconds       int   `toml:"max_delay_seconds" json:"max_delay_seconds" yaml:"max_delay_seconds"`
	AttemptTimeoutSeconds int   `toml:"attempt_timeout_seconds" json:"attempt_timeout_seconds" yaml:"attempt_timeout_seconds"`
}

// Workflow contains configuration for daemon timing and intervals.
type Workflow struct {
	PollInterval      int `toml:"poll_interval" json:"poll_interval" yaml:"poll_interval"`
	HeartbeatInterval int `toml:"heartbeat_interval" json:"heartbeat_interval" yaml:"heartbeat_interval"`
	HeartbeatTimeout  int `toml:"heartbeat_timeout" json:"heartbeat_timeout" yaml:"heartbeat_timeout"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic" json:"ntfy_topic" yaml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout" json:"request_timeout" yaml:"request_timeout"`
	Completed      bool   `toml:"completed" json:"completed" yaml:"completed"`
	Failed         bool   `toml:"failed" json:"failed" yaml:"failed"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format" json:"format" yaml:"format"`
	Level         string `toml:"level" json:"level" yaml:"level"`
	RetentionDays int    `toml:"retention_days" json:"retention_days" yaml:"retention_days"`
}

// Metrics toggles the Prometheus endpoint.
type Metrics struct {
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`
}

// Config encapsulates all configuration values for PingAnalyst.
//
// Configuration sections by subsystem:
//   - Paths: staging, state, and log directories
//   - API: daemon bind address, bearer token, upload limit
//   - LLM: model provider connection settings
//   - Sampling: chunk length and frame extraction
//   - Retry: backoff schedule for model calls
//   - Workflow: daemon polling and heartbeat intervals
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
//   - Metrics: Prometheus endpoint toggle
type Config struct {
	Paths         Paths         `toml:"paths" json:"paths" yaml:"paths"`
	API           API           `toml:"api" json:"api" yaml:"api"`
	LLM           LLM           `toml:"llm" json:"llm" yaml:"llm"`
	Sampling      Sampling      `toml:"sampling" json:"sampling" yaml:"sampling"`
	Retry         Retry         `toml:"retry" json:"retry" yaml:"retry"`
	Workflow      Workflow      `toml:"workflow" json:"workflow" yaml:"workflow"`
	Notifications Notifications `toml:"notifications" json:"notifications" yaml:"notifications"`
	Logging       Logging       `toml:"logging" json:"logging" yaml:"logging"`
	Metrics       Metrics       `toml:"metrics" json:"metrics" yaml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/pinganalyst/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	if err := loadDotEnv(".env"); err != nil {
		return nil, "", false, err
	}

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotEnv reads KEY=value pairs without overriding variables that are
// already set.
func loadDotEnv(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("pinganalyst.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath is the SQLite job store location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "pinganalyst.db")
}

// LockPath is the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "pinganalyst.lock")
}

// PIDPath is where the running daemon records its pid.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "pinganalyst.pid")
}

// FFmpegBinary returns the ffmpeg executable name used for frame capture.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media probing.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// ChunkDuration returns the sampling chunk length.
func (c *Config) ChunkDuration() time.Duration {
	return time.Duration(c.Sampling.ChunkSeconds * float64(time.Second))
}

// RetryDelays returns the backoff schedule.
func (c *Config) RetryDelays() []time.Duration {
	delays := make([]time.Duration, 0, len(c.Retry.DelaysSeconds))
	for _, s := range c.Retry.DelaysSeconds {
		delays = append(delays, time.Duration(s)*time.Second)
	}
	return delays
}

// RetryMaxDelay caps server supplied Retry-After hints.
func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.Retry.MaxDelaySeconds) * time.Second
}

// AttemptTimeout bounds a single model call. Zero disables the bound.
func (c *Config) AttemptTimeout() time.Duration {
	return time.Duration(c.Retry.AttemptTimeoutSeconds) * time.Second
}

// PollInterval is how often the daemon checks for pending matches.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Workflow.PollInterval) * time.Second
}

// HeartbeatInterval is how often an in-flight match is touched.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Workflow.HeartbeatInterval) * time.Second
}

// HeartbeatTimeout is how long a match may go without a heartbeat before it
// is reclaimed.
func (c *Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.Workflow.HeartbeatTimeout) * time.Second
}

// MaxUploadBytes returns the upload size limit.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.API.MaxUploadMB) << 20
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
