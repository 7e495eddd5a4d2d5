package config

const (
	defaultStagingDir        = "~/.local/share/pinganalyst/staging"
	defaultStateDir          = "~/.local/share/pinganalyst"
	defaultLogDir            = "~/.local/share/pinganalyst/logs"
	defaultLogRetentionDays  = 30
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultAPIBind           = "127.0.0.1:7490"
	defaultMaxUploadMB       = 250
	defaultCORSOrigin        = "*"
	defaultLLMProvider       = "gateway"
	defaultLLMBaseURL        = "https://ai.gateway.lovable.dev/v1/chat/completions"
	defaultLLMModel          = "google/gemini-2.5-flash"
	defaultLLMReferer        = "https://github.com/pinganalyst/pinganalyst"
	defaultLLMTitle          = "PingAnalyst"
	defaultLLMTimeout        = 90
	defaultMaxFrames         = 8
	defaultChunkSeconds      = 30
	defaultFramesPerSecond   = 1.0
	defaultMinFramesPerChunk = 3
	defaultMaxDimension      = 640
	defaultJPEGQuality       = 0.7
	defaultConcurrency       = 4
	defaultRetryMaxDelay     = 60
	defaultAttemptTimeout    = 120
	defaultPollInterval      = 5
	defaultHeartbeatInterval = 15
	defaultHeartbeatTimeout  = 180
	defaultNotifyTimeout     = 10
)

var defaultRetryDelays = []int{5, 10, 20}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
		},
		API: API{
			Bind:        defaultAPIBind,
			MaxUploadMB: defaultMaxUploadMB,
			CORSOrigin:  defaultCORSOrigin,
		},
		LLM: LLM{
			Provider:       defaultLLMProvider,
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeout,
			MaxFrames:      defaultMaxFrames,
		},
		Sampling: Sampling{
			ChunkSeconds:      defaultChunkSeconds,
			FramesPerSecond:   defaultFramesPerSecond,
			MinFramesPerChunk: defaultMinFramesPerChunk,
			MaxDimension:      defaultMaxDimension,
			JPEGQuality:       defaultJPEGQuality,
			Concurrency:       defaultConcurrency,
		},
		Retry: Retry{
			DelaysSeconds:         append([]int(nil), defaultRetryDelays...),
			MaxDelaySeconds:       defaultRetryMaxDelay,
			AttemptTimeoutSeconds: defaultAttemptTimeout,
		},
		Workflow: Workflow{
			PollInterval:      defaultPollInterval,
			HeartbeatInterval: defaultHeartbeatInterval,
			HeartbeatTimeout:  defaultHeartbeatTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Completed:      true,
			Failed:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Metrics: Metrics{
			Enabled: true,
		},
	}
}
