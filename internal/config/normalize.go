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
	c.normalizeGeneration()
	c.normalizeGemini()
	c.normalizeHistory()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.WorkflowImportDir = strings.TrimSpace(c.Paths.WorkflowImportDir)
	if c.Paths.WorkflowImportDir, err = expandPath(c.Paths.WorkflowImportDir); err != nil {
		return fmt.Errorf("paths.workflow_import_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("MAGPIE_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeGeneration() {
	if c.Generation.HealthTimeoutSeconds <= 0 {
		c.Generation.HealthTimeoutSeconds = defaultHealthTimeoutSeconds
	}
	keys := make([]string, 0, len(c.Generation.SeedKeys))
	seen := make(map[string]struct{}, len(c.Generation.SeedKeys))
	for _, key := range c.Generation.SeedKeys {
		trimmed := strings.TrimSpace(key)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		keys = append(keys, trimmed)
	}
	if len(keys) == 0 {
		keys = defaultSeedKeys()
	}
	c.Generation.SeedKeys = keys
	c.Generation.StudioOrigin = strings.TrimRight(strings.TrimSpace(c.Generation.StudioOrigin), "/")
}

func (c *Config) normalizeGemini() {
	c.Gemini.APIKey = strings.TrimSpace(c.Gemini.APIKey)
	if c.Gemini.APIKey == "" {
		if value, ok := os.LookupEnv("GEMINI_API_KEY"); ok {
			c.Gemini.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("API_KEY"); ok {
			c.Gemini.APIKey = strings.TrimSpace(value)
		}
	}
	c.Gemini.BaseURL = strings.TrimSpace(c.Gemini.BaseURL)
	c.Gemini.AnalysisModel = strings.TrimSpace(c.Gemini.AnalysisModel)
	if c.Gemini.AnalysisModel == "" {
		c.Gemini.AnalysisModel = defaultGeminiAnalysisModel
	}
	c.Gemini.ImageModelV1 = strings.TrimSpace(c.Gemini.ImageModelV1)
	if c.Gemini.ImageModelV1 == "" {
		c.Gemini.ImageModelV1 = defaultGeminiImageModelV1
	}
	c.Gemini.ImageModelV2 = strings.TrimSpace(c.Gemini.ImageModelV2)
	if c.Gemini.ImageModelV2 == "" {
		c.Gemini.ImageModelV2 = defaultGeminiImageModelV2
	}
	if c.Gemini.TimeoutSeconds <= 0 {
		c.Gemini.TimeoutSeconds = defaultGeminiTimeoutSeconds
	}
}

func (c *Config) normalizeHistory() {
	c.History.Backend = strings.ToLower(strings.TrimSpace(c.History.Backend))
	if c.History.Backend == "" {
		c.History.Backend = defaultHistoryBackend
	}
	c.History.RedisURL = strings.TrimSpace(c.History.RedisURL)
	if c.History.RedisURL == "" {
		if value, ok := os.LookupEnv("REDIS_URL"); ok {
			c.History.RedisURL = strings.TrimSpace(value)
		}
	}
	c.History.RedisKey = strings.TrimSpace(c.History.RedisKey)
	if c.History.RedisKey == "" {
		c.History.RedisKey = defaultHistoryRedisKey
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
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
}
