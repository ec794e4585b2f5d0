package preflight

import (
	"context"

	"golang.org/x/sync/errgroup"

	"magpie/internal/catalog"
	"magpie/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes the directory, Gemini and backend checks. Backends are
// probed concurrently; disabled ones and ones without a URL are reported but
// not contacted.
func RunAll(ctx context.Context, cfg *config.Config, backends []catalog.Backend) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if cfg.Paths.WorkflowImportDir != "" {
		results = append(results, CheckDirectoryAccess("Workflow import directory", cfg.Paths.WorkflowImportDir))
	}
	results = append(results, CheckGemini(cfg))

	backendResults := make([]Result, len(backends))
	var g errgroup.Group
	g.SetLimit(4)
	for i, b := range backends {
		g.Go(func() error {
			backendResults[i] = CheckBackend(ctx, cfg, b)
			return nil
		})
	}
	_ = g.Wait()

	return append(results, backendResults...)
}

// Failed reports whether any result did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}
