package config

const (
	defaultConfigPath            = "~/.config/magpie/config.toml"
	defaultDataDir               = "~/.local/share/magpie"
	defaultLogDir                = "~/.local/share/magpie/logs"
	defaultAPIBind               = "127.0.0.1:7842"
	defaultPollIntervalSeconds   = 2
	defaultMaxPollTicks          = 150
	defaultMaxPollErrors         = 10
	defaultRequestTimeoutSeconds = 30
	defaultUploadTimeoutSeconds  = 120
	defaultHealthTimeoutSeconds  = 5
	defaultGeminiAnalysisModel   = "gemini-flash-latest"
	defaultGeminiImageModelV1    = "gemini-2.5-flash-image"
	defaultGeminiImageModelV2    = "gemini-3-pro-image-preview"
	defaultGeminiTimeoutSeconds  = 120
	defaultHistoryBackend        = "sqlite"
	defaultHistoryLimit          = 50
	defaultHistoryRedisKey       = "magpie:history"
	defaultNotifyRequestTimeout  = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	historyBackendSQLite         = "sqlite"
	historyBackendRedis          = "redis"
)

func defaultSeedKeys() []string {
	return []string{"seed", "noise_seed", "seed_int"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Generation: Generation{
			PollIntervalSeconds:   defaultPollIntervalSeconds,
			MaxPollTicks:          defaultMaxPollTicks,
			MaxPollErrors:         defaultMaxPollErrors,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
			UploadTimeoutSeconds:  defaultUploadTimeoutSeconds,
			HealthTimeoutSeconds:  defaultHealthTimeoutSeconds,
			SeedKeys:              defaultSeedKeys(),
		},
		Gemini: Gemini{
			AnalysisModel:  defaultGeminiAnalysisModel,
			ImageModelV1:   defaultGeminiImageModelV1,
			ImageModelV2:   defaultGeminiImageModelV2,
			TimeoutSeconds: defaultGeminiTimeoutSeconds,
		},
		History: History{
			Backend:  defaultHistoryBackend,
			Limit:    defaultHistoryLimit,
			RedisKey: defaultHistoryRedisKey,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Generation:     true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
