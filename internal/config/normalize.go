package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeLLM()
	c.normalizeSampling()
	c.normalizeRetry()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.Token == "" {
		if value, ok := os.LookupEnv("PINGANALYST_API_TOKEN"); ok {
			c.API.Token = strings.TrimSpace(value)
		}
	}
	if c.API.MaxUploadMB <= 0 {
		c.API.MaxUploadMB = defaultMaxUploadMB
	}
	c.API.CORSOrigin = strings.TrimSpace(c.API.CORSOrigin)
	if c.API.CORSOrigin == "" {
		c.API.CORSOrigin = defaultCORSOrigin
	}
}

// apiKeyEnv lists the environment variables consulted for each provider, in
// order.
var apiKeyEnv = map[string][]string{
	"gateway": {"PINGANALYST_API_KEY", "LOVABLE_API_KEY", "OPENROUTER_API_KEY"},
	"gemini":  {"PINGANALYST_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"openai":  {"PINGANALYST_API_KEY", "OPENAI_API_KEY"},
}

func (c *Config) normalizeLLM() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Provider == "" {
		c.LLM.Provider = defaultLLMProvider
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		for _, name := range apiKeyEnv[c.LLM.Provider] {
			if value, ok := os.LookupEnv(name); ok && strings.TrimSpace(value) != "" {
				c.LLM.APIKey = strings.TrimSpace(value)
				break
			}
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Provider != defaultLLMProvider {
		// Gateway defaults do not apply to the native SDK providers.
		if c.LLM.BaseURL == defaultLLMBaseURL {
			c.LLM.BaseURL = ""
		}
		if c.LLM.Model == defaultLLMModel && c.LLM.Provider == "openai" {
			c.LLM.Model = ""
		}
	} else {
		if c.LLM.BaseURL == "" {
			c.LLM.BaseURL = defaultLLMBaseURL
		}
		if c.LLM.Model == "" {
			c.LLM.Model = defaultLLMModel
		}
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeout
	}
	if c.LLM.MaxFrames <= 0 {
		c.LLM.MaxFrames = defaultMaxFrames
	}
}

func (c *Config) normalizeSampling() {
	if c.Sampling.ChunkSeconds <= 0 {
		c.Sampling.ChunkSeconds = defaultChunkSeconds
	}
	if c.Sampling.FramesPerSecond <= 0 {
		c.Sampling.FramesPerSecond = defaultFramesPerSecond
	}
	if c.Sampling.MinFramesPerChunk <= 0 {
		c.Sampling.MinFramesPerChunk = defaultMinFramesPerChunk
	}
	if c.Sampling.MaxDimension <= 0 {
		c.Sampling.MaxDimension = defaultMaxDimension
	}
	if c.Sampling.Concurrency <= 0 {
		c.Sampling.Concurrency = defaultConcurrency
	}
}

func (c *Config) normalizeRetry() {
	if c.Retry.DelaysSeconds == nil {
		c.Retry.DelaysSeconds = append([]int(nil), defaultRetryDelays...)
	}
	if c.Retry.MaxDelaySeconds <= 0 {
		c.Retry.MaxDelaySeconds = defaultRetryMaxDelay
	}
	if c.Retry.AttemptTimeoutSeconds < 0 {
		c.Retry.AttemptTimeoutSeconds = 0
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
