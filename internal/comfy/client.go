package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"magpie/internal/config"
	"magpie/internal/workflow"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultUploadTimeout  = 120 * time.Second
	defaultHealthTimeout  = 5 * time.Second
	maxResponseBytes      = 32 << 20
)

// Config captures the settings for one backend instance.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	UploadTimeout  time.Duration
	HealthTimeout  time.Duration
	// Origin is sent on health probes to verify cross-origin access.
	Origin string
}

// ConfigFrom builds a client config for baseURL from the [generation] section.
func ConfigFrom(cfg *config.Config, baseURL string) Config {
	return Config{
		BaseURL:        baseURL,
		RequestTimeout: cfg.RequestTimeout(),
		UploadTimeout:  cfg.UploadTimeout(),
		HealthTimeout:  cfg.HealthTimeout(),
		Origin:         cfg.Generation.StudioOrigin,
	}
}

// Client talks to a single node-graph backend.
type Client struct {
	baseURL    string
	origin     string
	httpClient *http.Client

	requestTimeout time.Duration
	uploadTimeout  time.Duration
	healthTimeout  time.Duration
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client. Per-call timeouts are
// still applied through the request context.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a backend client. A trailing slash on the base URL is dropped.
func NewClient(cfg Config, opts ...Option) *Client {
	client := &Client{
		baseURL:        NormalizeBaseURL(cfg.BaseURL),
		origin:         strings.TrimRight(strings.TrimSpace(cfg.Origin), "/"),
		httpClient:     &http.Client{},
		requestTimeout: positiveOr(cfg.RequestTimeout, defaultRequestTimeout),
		uploadTimeout:  positiveOr(cfg.UploadTimeout, defaultUploadTimeout),
		healthTimeout:  positiveOr(cfg.HealthTimeout, defaultHealthTimeout),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// NormalizeBaseURL trims whitespace and one trailing slash.
func NormalizeBaseURL(raw string) string {
	return strings.TrimSuffix(strings.TrimSpace(raw), "/")
}

// BaseURL returns the normalized backend address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// QueueResponse is the backend's answer to a prompt submission.
type QueueResponse struct {
	PromptID   string         `json:"prompt_id"`
	Number     int            `json:"number"`
	NodeErrors map[string]any `json:"node_errors,omitempty"`
}

type queueRequest struct {
	ClientID string         `json:"client_id"`
	Prompt   workflow.Graph `json:"prompt"`
}

type uploadResponse struct {
	Name      string `json:"name"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// UploadImage stores an image on the backend and returns the stored filename.
func (c *Client) UploadImage(ctx context.Context, filename string, image io.Reader) (string, error) {
	if image == nil {
		return "", errors.New("comfy upload: image required")
	}
	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." || filename == "/" {
		filename = "upload.png"
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return "", fmt.Errorf("comfy upload: create form file: %w", err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return "", fmt.Errorf("comfy upload: copy image: %w", err)
	}
	if err := writer.WriteField("overwrite", "true"); err != nil {
		return "", fmt.Errorf("comfy upload: write field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("comfy upload: close form: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload/image", &body)
	if err != nil {
		return "", fmt.Errorf("comfy upload: new request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	respBody, err := c.do(req, "upload")
	if err != nil {
		return "", err
	}
	var parsed uploadResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("comfy upload: decode response: %w", err)
	}
	if strings.TrimSpace(parsed.Name) == "" {
		return "", errors.New("comfy upload: response missing name")
	}
	return parsed.Name, nil
}

// QueuePrompt submits a populated graph under the given client correlation id.
func (c *Client) QueuePrompt(ctx context.Context, clientID string, graph workflow.Graph) (QueueResponse, error) {
	var empty QueueResponse
	if len(graph) == 0 {
		return empty, errors.New("comfy prompt: graph required")
	}
	encoded, err := json.Marshal(queueRequest{ClientID: clientID, Prompt: graph})
	if err != nil {
		return empty, fmt.Errorf("comfy prompt: encode body: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(encoded))
	if err != nil {
		return empty, fmt.Errorf("comfy prompt: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	respBody, err := c.do(req, "prompt")
	if err != nil {
		return empty, err
	}
	var parsed QueueResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return empty, fmt.Errorf("comfy prompt: decode response: %w", err)
	}
	if strings.TrimSpace(parsed.PromptID) == "" {
		return empty, errors.New("comfy prompt: response missing prompt_id")
	}
	return parsed, nil
}

// History fetches the history entry for promptID. found is false while the
// job is still queued or running.
func (c *Client) History(ctx context.Context, promptID string) (entry HistoryEntry, found bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	endpoint := c.baseURL + "/history/" + url.PathEscape(promptID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return entry, false, fmt.Errorf("comfy history: new request: %w", err)
	}

	respBody, err := c.do(req, "history")
	if err != nil {
		return entry, false, err
	}
	var payload map[string]HistoryEntry
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return entry, false, fmt.Errorf("comfy history: decode response: %w", err)
	}
	entry, found = payload[promptID]
	return entry, found, nil
}

func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, fmt.Errorf("comfy %s: %w", op, ctxErr)
		}
		return nil, &NetworkError{Op: op, URL: c.baseURL, Remediation: Remediation, Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("comfy %s: read body: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newStatusError(op, resp.StatusCode, body)
	}
	return body, nil
}

func positiveOr(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}
