package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate ensures the configuration is usable. A missing API key is not an
// error here: the CLI can still inspect configuration and extract frames, and
// the analyzer reports the missing key when a model call is attempted.
func (c *Config) Validate() error {
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateSampling(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateAPI() error {
	if _, _, err := net.SplitHostPort(c.API.Bind); err != nil {
		return fmt.Errorf("api.bind %q: %w", c.API.Bind, err)
	}
	if c.API.MaxUploadMB <= 0 {
		return errors.New("api.max_upload_mb must be positive")
	}
	return nil
}

func (c *Config) validateLLM() error {
	switch c.LLM.Provider {
	case "gateway", "gemini", "openai":
	default:
		return fmt.Errorf("llm.provider %q must be one of gateway, gemini, openai", c.LLM.Provider)
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return errors.New("llm.timeout_seconds must be positive")
	}
	if c.LLM.MaxFrames <= 0 {
		return errors.New("llm.max_frames must be positive")
	}
	return nil
}

func (c *Config) validateSampling() error {
	if c.Sampling.ChunkSeconds <= 0 {
		return errors.New("sampling.chunk_seconds must be positive")
	}
	if c.Sampling.FramesPerSecond <= 0 {
		return errors.New("sampling.frames_per_second must be positive")
	}
	if c.Sampling.MinFramesPerChunk <= 0 {
		return errors.New("sampling.min_frames_per_chunk must be positive")
	}
	if c.Sampling.MaxDimension < 16 {
		return errors.New("sampling.max_dimension must be at least 16")
	}
	if c.Sampling.JPEGQuality <= 0 || c.Sampling.JPEGQuality > 1 {
		return errors.New("sampling.jpeg_quality must be in (0, 1]")
	}
	if c.Sampling.Concurrency <= 0 {
		return errors.New("sampling.concurrency must be positive")
	}
	return nil
}

func (c *Config) validateRetry() error {
	for i, delay := range c.Retry.DelaysSeconds {
		if delay < 0 {
			return fmt.Errorf("retry.delays_seconds[%d] must not be negative", i)
		}
	}
	if c.Retry.MaxDelaySeconds <= 0 {
		return errors.New("retry.max_delay_seconds must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.PollInterval <= 0 {
		return errors.New("workflow.poll_interval must be positive")
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must exceed workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	if topic := c.Notifications.NtfyTopic; topic != "" && !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic %q must be a full http(s) URL", topic)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn, or error", c.Logging.Level)
	}
}
