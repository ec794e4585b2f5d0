package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"magpie/internal/config"
	"magpie/internal/logging"
	"magpie/internal/services"
)

func TestNewFromConfigWritesJSONFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("generation submitted", logging.String("backend", "http://comfy:8188"))

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "magpie.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(content))), &entry); err != nil {
		t.Fatalf("expected json log line, got %q: %v", content, err)
	}
	if entry["msg"] != "generation submitted" || entry["backend"] != "http://comfy:8188" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["level"] != "info" {
		t.Fatalf("expected lower-case level, got %v", entry["level"])
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")

	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message without caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")

	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("message with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "logger_test.go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestConsoleLoggerRendersComponentAndSubject(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")

	base, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithPageID(context.Background(), "t2i")
	ctx = services.WithPromptID(ctx, "p-42")
	logger := logging.WithContext(ctx, logging.NewComponentLogger(base, "generation"))
	logger.Info("job queued", logging.Int("ticks", 3))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	for _, want := range []string{"INFO [generation]", "Page t2i (prompt p-42)", "job queued", "- ticks: 3"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
	if strings.Contains(line, "component:") {
		t.Fatalf("component should be rendered in header only, got %q", line)
	}
}

func TestConsoleLoggerHidesExtraInfoFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	attrs := make([]logging.Attr, 0, 10)
	for i := 0; i < 10; i++ {
		attrs = append(attrs, logging.Int("field_"+string(rune('a'+i)), i))
	}
	logger.Info("many fields", logging.Args(attrs...)...)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "+ 2 more fields hidden") {
		t.Fatalf("expected hidden field summary, got %q", content)
	}
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := services.WithRequestID(context.Background(), "req-1")
	ctx = services.WithStage(ctx, "poll")
	fields := logging.ContextFields(ctx)
	got := map[string]string{}
	for _, f := range fields {
		got[f.Key] = f.Value.String()
	}
	if got[logging.FieldCorrelationID] != "req-1" || got[logging.FieldStage] != "poll" {
		t.Fatalf("unexpected context fields: %v", got)
	}
}

func TestWarnWithContextFillsDefaults(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "backend unreachable", "backend_check_failed", logging.String(logging.FieldImpact, "generation disabled"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(content, &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry[logging.FieldEventType] != "backend_check_failed" {
		t.Fatalf("unexpected event type: %v", entry)
	}
	if entry[logging.FieldErrorHint] == nil {
		t.Fatalf("expected default error hint: %v", entry)
	}
	if entry[logging.FieldImpact] != "generation disabled" {
		t.Fatalf("expected caller-provided impact to win: %v", entry)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestLogsScrubSecretsAndImagePayloads(t *testing.T) {
	dir := t.TempDir()
	consolePath := filepath.Join(dir, "console.log")
	jsonPath := filepath.Join(dir, "magpie.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{consolePath}, JSONFile: jsonPath})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("analysis requested",
		logging.String("gemini_api_key", "AIza-secret"),
		logging.String("api_token", "tok-123"),
		logging.String("image", "data:image/png;base64,"+strings.Repeat("A", 4000)),
		logging.String("prompt", strings.Repeat("x", 600)),
	)

	console, err := os.ReadFile(consolePath)
	if err != nil {
		t.Fatalf("read console log: %v", err)
	}
	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatalf("read json log: %v", err)
	}
	for name, content := range map[string]string{"console": string(console), "json": string(raw)} {
		if strings.Contains(content, "AIza-secret") || strings.Contains(content, "tok-123") {
			t.Fatalf("%s log leaked a secret: %q", name, content)
		}
		if !strings.Contains(content, "[redacted]") || !strings.Contains(content, "<4000 bytes>") {
			t.Fatalf("%s log missing scrubbed values: %q", name, content)
		}
	}

	var entry map[string]any
	if err := json.Unmarshal(raw, &entry); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if entry["image"] != "data:image/png;base64,<4000 bytes>" {
		t.Fatalf("unexpected image value %v", entry["image"])
	}
	if prompt, _ := entry["prompt"].(string); !strings.HasSuffix(prompt, "(600 bytes)") || len(prompt) > 600 {
		t.Fatalf("expected clipped prompt, got %q", prompt)
	}
}

func TestTeeHandlerSkipsNilSinks(t *testing.T) {
	if _, ok := logging.TeeHandler(nil, nil).(logging.NoopHandler); !ok {
		t.Fatal("expected no-op handler when every sink is nil")
	}
}
