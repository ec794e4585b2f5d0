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

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir           string `toml:"data_dir"`
	LogDir            string `toml:"log_dir"`
	WorkflowImportDir string `toml:"workflow_import_dir"`
	APIBind           string `toml:"api_bind"`
	APIToken          string `toml:"api_token"`
}

// Generation contains settings for submitting and polling backend jobs.
type Generation struct {
	PollIntervalSeconds   int      `toml:"poll_interval_seconds"`
	MaxPollTicks          int      `toml:"max_poll_ticks"`
	MaxPollErrors         int      `toml:"max_poll_errors"`
	RequestTimeoutSeconds int      `toml:"request_timeout_seconds"`
	UploadTimeoutSeconds  int      `toml:"upload_timeout_seconds"`
	HealthTimeoutSeconds  int      `toml:"health_timeout_seconds"`
	SeedKeys              []string `toml:"seed_keys"`
	StrictMappings        bool     `toml:"strict_mappings"`
	// StudioOrigin is sent as Origin on health probes; empty skips the CORS check.
	StudioOrigin string `toml:"studio_origin"`
}

// Gemini contains configuration for the hosted multimodal model API.
type Gemini struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	AnalysisModel  string `toml:"analysis_model"`
	ImageModelV1   string `toml:"image_model_v1"`
	ImageModelV2   string `toml:"image_model_v2"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// History contains configuration for the generation history log.
type History struct {
	Backend  string `toml:"backend"`
	Limit    int    `toml:"limit"`
	RedisURL string `toml:"redis_url"`
	RedisKey string `toml:"redis_key"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Generation     bool   `toml:"generation"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Magpie.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories, workflow import folder and API bind address
//   - Generation: backend polling budget, HTTP timeouts and seed handling
//   - Gemini: hosted model credentials and model names
//   - History: history backend selection and cap
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Generation    Generation    `toml:"generation"`
	Gemini        Gemini        `toml:"gemini"`
	History       History       `toml:"history"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	loadDotEnv(resolvedPath)

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

// loadDotEnv reads .env files from the working directory and next to the
// config file. Variables already present in the environment win.
func loadDotEnv(configPath string) {
	candidates := []string{".env"}
	if configPath != "" {
		candidates = append(candidates, filepath.Join(filepath.Dir(configPath), ".env"))
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err != nil || info.IsDir() {
			continue
		}
		_ = godotenv.Load(candidate)
	}
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

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("magpie.toml")
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
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir}
	if c.Paths.WorkflowImportDir != "" {
		dirs = append(dirs, c.Paths.WorkflowImportDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the catalog database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "magpie.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "magpied.lock")
}

// PIDPath returns the file the running daemon writes its process id to.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "magpied.pid")
}

// PollInterval returns the delay between history polls.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Generation.PollIntervalSeconds) * time.Second
}

// RequestTimeout returns the HTTP timeout for submission and history calls.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Generation.RequestTimeoutSeconds) * time.Second
}

// UploadTimeout returns the HTTP timeout for image uploads.
func (c *Config) UploadTimeout() time.Duration {
	return time.Duration(c.Generation.UploadTimeoutSeconds) * time.Second
}

// HealthTimeout returns the HTTP timeout for backend health probes.
func (c *Config) HealthTimeout() time.Duration {
	return time.Duration(c.Generation.HealthTimeoutSeconds) * time.Second
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
