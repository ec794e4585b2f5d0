package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateGeneration(); err != nil {
		return err
	}
	if err := c.validateHistory(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateGemini(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateGeneration() error {
	if err := ensurePositiveMap(map[string]int{
		"generation.poll_interval_seconds":   c.Generation.PollIntervalSeconds,
		"generation.max_poll_ticks":          c.Generation.MaxPollTicks,
		"generation.request_timeout_seconds": c.Generation.RequestTimeoutSeconds,
		"generation.upload_timeout_seconds":  c.Generation.UploadTimeoutSeconds,
		"generation.health_timeout_seconds":  c.Generation.HealthTimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Generation.MaxPollErrors < 0 {
		return errors.New("generation.max_poll_errors must be >= 0")
	}
	if origin := c.Generation.StudioOrigin; origin != "" {
		parsed, err := url.Parse(origin)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("generation.studio_origin must be an absolute URL, got %q", origin)
		}
	}
	return nil
}

func (c *Config) validateHistory() error {
	switch c.History.Backend {
	case historyBackendSQLite:
	case historyBackendRedis:
		if c.History.RedisURL == "" {
			return errors.New("history.redis_url must be set when history.backend is redis (or set REDIS_URL)")
		}
	default:
		return fmt.Errorf("history.backend must be %q or %q, got %q", historyBackendSQLite, historyBackendRedis, c.History.Backend)
	}
	if c.History.Limit <= 0 {
		return errors.New("history.limit must be positive")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateGemini() error {
	if c.Gemini.BaseURL == "" {
		return nil
	}
	parsed, err := url.Parse(c.Gemini.BaseURL)
	if err != nil || !strings.HasPrefix(parsed.Scheme, "http") {
		return fmt.Errorf("gemini.base_url must be an http(s) URL, got %q", c.Gemini.BaseURL)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
