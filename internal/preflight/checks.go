package preflight

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"magpie/internal/catalog"
	"magpie/internal/comfy"
	"magpie/internal/config"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckGemini reports whether a hosted model API key is configured. The key
// itself is not validated, so no quota is spent.
func CheckGemini(cfg *config.Config) Result {
	const name = "Gemini API"
	if strings.TrimSpace(cfg.Gemini.APIKey) == "" {
		return Result{Name: name, Detail: "API key missing (set gemini.api_key or GEMINI_API_KEY)"}
	}
	return Result{Name: name, Passed: true, Detail: "API key configured"}
}

// CheckBackend probes one generation backend.
func CheckBackend(ctx context.Context, cfg *config.Config, b catalog.Backend) Result {
	name := "Backend " + b.Name
	if b.Name == "" {
		name = "Backend " + b.ID
	}
	switch {
	case !b.Enabled:
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	case strings.TrimSpace(b.URL) == "":
		return Result{Name: name, Detail: "Missing URL (configure it under admin → servers)"}
	}

	report := comfy.NewClient(comfy.ConfigFrom(cfg, b.URL)).CheckConnection(ctx)
	if report.OK() {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (reachable, %s)", report.URL, report.Latency.Round(time.Millisecond))}
	}
	return Result{Name: name, Detail: fmt.Sprintf("%s (%s: %s)", report.URL, report.Status, report.Detail)}
}
