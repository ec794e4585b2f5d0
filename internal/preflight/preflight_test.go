package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"magpie/internal/catalog"
	"magpie/internal/config"
	"magpie/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckGemini(t *testing.T) {
	cfg := config.Default()
	cfg.Gemini.APIKey = ""
	if CheckGemini(&cfg).Passed {
		t.Fatal("expected failure without api key")
	}
	cfg.Gemini.APIKey = "k"
	if !CheckGemini(&cfg).Passed {
		t.Fatal("expected pass with api key")
	}
}

func TestCheckBackend_Reachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/system_stats" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"system":{"os":"posix"},"devices":[]}`))
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t)
	result := CheckBackend(context.Background(), cfg, catalog.Backend{ID: "srv_1", Name: "gpu", URL: srv.URL + "/", Enabled: true})
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if result.Name != "Backend gpu" {
		t.Fatalf("name = %q", result.Name)
	}
}

func TestCheckBackend_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t)
	result := CheckBackend(context.Background(), cfg, catalog.Backend{ID: "srv_1", URL: srv.URL, Enabled: true})
	if result.Passed {
		t.Fatal("expected failure for 403")
	}
	if !strings.Contains(result.Detail, "rejected") {
		t.Fatalf("detail = %q, want rejected status", result.Detail)
	}
}

func TestCheckBackend_SkipsDisabledAndFlagsMissingURL(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if r := CheckBackend(context.Background(), cfg, catalog.Backend{ID: "a", URL: "http://127.0.0.1:1"}); !r.Passed || r.Detail != "Disabled" {
		t.Fatalf("disabled backend = %+v", r)
	}
	if r := CheckBackend(context.Background(), cfg, catalog.Backend{ID: "b", Enabled: true}); r.Passed {
		t.Fatalf("backend without url passed: %+v", r)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil, nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := RunAll(context.Background(), cfg, []catalog.Backend{{ID: "srv_1", Name: "off"}})
	// data, log, import dirs + gemini + one backend
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("check %q failed: %s", r.Name, r.Detail)
		}
	}
	if Failed(results) {
		t.Fatal("Failed reported true for passing results")
	}
	if !Failed(append(results, Result{Name: "x"})) {
		t.Fatal("Failed missed a failing result")
	}
}
