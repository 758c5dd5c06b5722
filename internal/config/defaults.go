package config

const (
	defaultStateDir             = "~/.local/share/rpanode"
	defaultLogDir               = "~/.local/share/rpanode/logs"
	defaultScreenshotDir        = "~/.local/share/rpanode/screenshots"
	defaultCatalogPath          = "~/.config/rpanode/catalog.yaml"
	defaultAPIBind              = "127.0.0.1:7489"
	defaultDriverBinary         = "rpa-screen"
	defaultDriverTimeout        = 30
	defaultPollIntervalMS       = 500
	defaultWatcherIntervalMS    = 1000
	defaultWatcherCooldown      = 3
	defaultRescueAttempts       = 3
	defaultRescueAttemptTimeout = 10
	defaultRescueRetries        = 1
	defaultRescueSettle         = 15
	defaultRescueWakeSettleMS   = 500
	defaultExtractionInterval   = 3600
	defaultHospitalPause        = 5
	defaultEmptyConfigRetry     = 60
	defaultTaskTimeout          = 7200
	defaultVisionEndpoint       = "https://vision.googleapis.com/v1/images:annotate"
	defaultOCRTimeout           = 60
	defaultLLMBaseURL           = "https://generativelanguage.googleapis.com/v1beta/openai/"
	defaultLLMModel             = "gemini-2.5-flash"
	defaultLLMTimeout           = 120
	defaultSignedURLExpiry      = 7 * 24 * 3600
	defaultUploadTimeout        = 30
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 30
)

var defaultRescueKeys = []string{"alt", "f4"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Backend: Backend{
			RegisterTimeout:  15,
			ConfigTimeout:    15,
			HeartbeatTimeout: 5,
			IngestTimeout:    30,
			ErrorTimeout:     15,
		},
		Paths: Paths{
			StateDir:      defaultStateDir,
			LogDir:        defaultLogDir,
			ScreenshotDir: defaultScreenshotDir,
			Catalog:       defaultCatalogPath,
			APIBind:       defaultAPIBind,
		},
		Screen: Screen{
			DriverBinary:   defaultDriverBinary,
			CommandTimeout: defaultDriverTimeout,
			PollIntervalMS: defaultPollIntervalMS,
		},
		Watcher: Watcher{
			Enabled:         true,
			IntervalMS:      defaultWatcherIntervalMS,
			CooldownSeconds: defaultWatcherCooldown,
		},
		Rescue: Rescue{
			Attempts:       defaultRescueAttempts,
			AttemptTimeout: defaultRescueAttemptTimeout,
			Retries:        defaultRescueRetries,
			SettleSeconds:  defaultRescueSettle,
			WakeSettleMS:   defaultRescueWakeSettleMS,
			Keys:           append([]string(nil), defaultRescueKeys...),
		},
		Workflow: Workflow{
			ExtractionInterval: defaultExtractionInterval,
			HospitalPause:      defaultHospitalPause,
			EmptyConfigRetry:   defaultEmptyConfigRetry,
			TaskTimeout:        defaultTaskTimeout,
			KeepAwake:          true,
		},
		OCR: OCR{
			Endpoint:       defaultVisionEndpoint,
			LanguageHints:  []string{"en", "es"},
			TimeoutSeconds: defaultOCRTimeout,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			TimeoutSeconds: defaultLLMTimeout,
		},
		Artifacts: Artifacts{
			SignedURLExpiry:   defaultSignedURLExpiry,
			KeepLocalCopy:     true,
			UploadTimeoutSecs: defaultUploadTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
