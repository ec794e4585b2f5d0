package testsupport

import (
	"path/filepath"
	"testing"

	"magpie/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.WorkflowImportDir = filepath.Join(base, "import")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Generation.PollIntervalSeconds = 1
	cfgVal.Gemini.APIKey = "test"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithAPIToken sets the bearer token required by the daemon API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithHistoryLimit overrides the history cap.
func WithHistoryLimit(limit int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.History.Limit = limit
	}
}

// WithGeminiBaseURL points the hosted model client at a test server.
func WithGeminiBaseURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Gemini.BaseURL = url
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
