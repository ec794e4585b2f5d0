package generation

import (
	"context"
	"io"
	"math/rand/v2"
	"net/http"

	"magpie/internal/catalog"
	"magpie/internal/comfy"
	"magpie/internal/workflow"
)

// Backend is the part of comfy.Client the orchestrator drives.
type Backend interface {
	BaseURL() string
	UploadImage(ctx context.Context, filename string, image io.Reader) (string, error)
	QueuePrompt(ctx context.Context, clientID string, graph workflow.Graph) (comfy.QueueResponse, error)
	HistorySource
}

// HistorySource answers job status queries.
type HistorySource interface {
	BaseURL() string
	History(ctx context.Context, promptID string) (comfy.HistoryEntry, bool, error)
}

// BackendFactory builds a client for a backend base URL.
type BackendFactory func(baseURL string) Backend

// ComfyFactory returns a factory producing comfy clients with the given
// timeouts. A nil httpClient uses the default transport.
func ComfyFactory(cfg comfy.Config, httpClient *http.Client) BackendFactory {
	return func(baseURL string) Backend {
		c := cfg
		c.BaseURL = baseURL
		var opts []comfy.Option
		if httpClient != nil {
			opts = append(opts, comfy.WithHTTPClient(httpClient))
		}
		return comfy.NewClient(c, opts...)
	}
}

// Eligible filters backends to those enabled, with a URL, and serving department.
func Eligible(backends []catalog.Backend, department string) []catalog.Backend {
	out := make([]catalog.Backend, 0, len(backends))
	for _, b := range backends {
		if b.Usable() && b.Serves(department) {
			out = append(out, b)
		}
	}
	return out
}

// SelectBackend picks uniformly at random among eligible backends and returns
// its normalized URL.
func SelectBackend(backends []catalog.Backend, department string, intn func(int) int) (catalog.Backend, error) {
	eligible := Eligible(backends, department)
	if len(eligible) == 0 {
		return catalog.Backend{}, ErrNoBackend
	}
	if intn == nil {
		intn = rand.IntN
	}
	chosen := eligible[intn(len(eligible))]
	chosen.URL = comfy.NormalizeBaseURL(chosen.URL)
	return chosen, nil
}
