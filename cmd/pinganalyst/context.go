package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"pinganalyst/internal/config"
	"pinganalyst/internal/ipc"
	"pinganalyst/internal/logging"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, _, err := config.Load(c.configFlagValue())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) configFlagValue() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) logLevel() string {
	if c.logLevelFlag != nil {
		if level := strings.TrimSpace(*c.logLevelFlag); level != "" {
			return level
		}
	}
	if cfg := c.configValue(); cfg != nil {
		return cfg.Logging.Level
	}
	return "info"
}

// cliLogger writes to stderr so stdout stays clean for rendered output.
func (c *commandContext) cliLogger(defaultLevel string) *slog.Logger {
	level := defaultLevel
	if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
		level = strings.TrimSpace(*c.logLevelFlag)
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      "console",
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

func (c *commandContext) withClient(cmdCtx context.Context, fn func(*ipc.Client) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	client, err := ipc.Dial(cmdCtx, cfg)
	if err != nil {
		return wrapDialError(err, cfg)
	}
	return fn(client)
}

func wrapDialError(err error, cfg *config.Config) error {
	if errors.Is(err, ipc.ErrDaemonUnavailable) {
		return fmt.Errorf("connect to daemon at %s: not running; start it with `pinganalyst start`", ipc.BaseURL(cfg.API.Bind))
	}
	var apiErr *ipc.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == 401 {
		return fmt.Errorf("connect to daemon: unauthorized; check api.token in the configuration")
	}
	return fmt.Errorf("connect to daemon: %w", err)
}

// noConfig marks commands that must run before a valid config exists.
var noConfig = map[string]string{"skipConfigLoad": "true"}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
