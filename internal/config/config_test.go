package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"magpie/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"GEMINI_API_KEY", "API_KEY", "MAGPIE_API_TOKEN", "REDIS_URL"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	clearEnv(t)
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved != filepath.Join(tempHome, ".config", "magpie", "config.toml") {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "magpie")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "magpie.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.Generation.PollIntervalSeconds != 2 || cfg.Generation.MaxPollTicks != 150 || cfg.Generation.MaxPollErrors != 10 {
		t.Fatalf("unexpected polling defaults: %+v", cfg.Generation)
	}
	if got := strings.Join(cfg.Generation.SeedKeys, ","); got != "seed,noise_seed,seed_int" {
		t.Fatalf("unexpected seed keys: %q", got)
	}
	if cfg.History.Backend != "sqlite" || cfg.History.Limit != 50 {
		t.Fatalf("unexpected history defaults: %+v", cfg.History)
	}
	if cfg.Gemini.AnalysisModel != "gemini-flash-latest" {
		t.Fatalf("unexpected analysis model: %q", cfg.Gemini.AnalysisModel)
	}
	if cfg.Paths.WorkflowImportDir != "" {
		t.Fatalf("expected import dir disabled by default, got %q", cfg.Paths.WorkflowImportDir)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	clearEnv(t)
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "magpie.toml")

	type payload struct {
		Paths struct {
			DataDir string `toml:"data_dir"`
		} `toml:"paths"`
		Generation struct {
			MaxPollTicks   int      `toml:"max_poll_ticks"`
			SeedKeys       []string `toml:"seed_keys"`
			StrictMappings bool     `toml:"strict_mappings"`
		} `toml:"generation"`
		Logging struct {
			Format string `toml:"format"`
		} `toml:"logging"`
	}
	custom := payload{}
	custom.Paths.DataDir = filepath.Join(tempDir, "data")
	custom.Generation.MaxPollTicks = 30
	custom.Generation.SeedKeys = []string{" seed ", "seed", "rng"}
	custom.Generation.StrictMappings = true
	custom.Logging.Format = "JSON"

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected config %q to be loaded, got %q exists=%v", configPath, resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempDir, "data") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.Generation.MaxPollTicks != 30 {
		t.Fatalf("unexpected max ticks: %d", cfg.Generation.MaxPollTicks)
	}
	if got := strings.Join(cfg.Generation.SeedKeys, ","); got != "seed,rng" {
		t.Fatalf("expected deduplicated seed keys, got %q", got)
	}
	if !cfg.Generation.StrictMappings {
		t.Fatal("expected strict mappings")
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected json log format, got %q", cfg.Logging.Format)
	}
	if cfg.Generation.PollIntervalSeconds != 2 {
		t.Fatalf("expected untouched defaults to survive, got %d", cfg.Generation.PollIntervalSeconds)
	}
}

func TestLoadReadsDotEnvBesideConfig(t *testing.T) {
	clearEnv(t)
	tempDir := t.TempDir()
	t.Chdir(t.TempDir())
	configPath := filepath.Join(tempDir, "magpie.toml")
	if err := os.WriteFile(configPath, []byte("[history]\nbackend = \"redis\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	env := "GEMINI_API_KEY=from-dotenv\nREDIS_URL=redis://localhost:6379/2\n"
	if err := os.WriteFile(filepath.Join(tempDir, ".env"), []byte(env), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() {
		os.Unsetenv("GEMINI_API_KEY")
		os.Unsetenv("REDIS_URL")
	})

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Gemini.APIKey != "from-dotenv" {
		t.Fatalf("expected gemini key from .env, got %q", cfg.Gemini.APIKey)
	}
	if cfg.History.RedisURL != "redis://localhost:6379/2" {
		t.Fatalf("expected redis url from .env, got %q", cfg.History.RedisURL)
	}
}

func TestEnvironmentFallbacks(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_KEY", "legacy-key")
	t.Setenv("MAGPIE_API_TOKEN", " secret ")
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Gemini.APIKey != "legacy-key" {
		t.Fatalf("expected API_KEY fallback, got %q", cfg.Gemini.APIKey)
	}
	if cfg.Paths.APIToken != "secret" {
		t.Fatalf("expected trimmed api token, got %q", cfg.Paths.APIToken)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"poll interval", func(c *config.Config) { c.Generation.PollIntervalSeconds = 0 }, "generation.poll_interval_seconds"},
		{"max ticks", func(c *config.Config) { c.Generation.MaxPollTicks = -1 }, "generation.max_poll_ticks"},
		{"poll errors", func(c *config.Config) { c.Generation.MaxPollErrors = -1 }, "generation.max_poll_errors"},
		{"history backend", func(c *config.Config) { c.History.Backend = "memcached" }, "history.backend"},
		{"redis url", func(c *config.Config) { c.History.Backend = "redis" }, "history.redis_url"},
		{"history limit", func(c *config.Config) { c.History.Limit = 0 }, "history.limit"},
		{"studio origin", func(c *config.Config) { c.Generation.StudioOrigin = "localhost" }, "generation.studio_origin"},
		{"gemini base url", func(c *config.Config) { c.Gemini.BaseURL = "ftp://example" }, "gemini.base_url"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error to mention %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.History.Limit != 50 {
		t.Fatalf("unexpected sample history limit: %d", cfg.History.Limit)
	}
}
