package comfy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ConnectionStatus classifies a health probe.
type ConnectionStatus string

const (
	// StatusReachable means the backend answered 2xx and allows the studio origin.
	StatusReachable ConnectionStatus = "reachable"
	// StatusRejected means the backend answered but refused the request or the origin.
	StatusRejected ConnectionStatus = "rejected"
	// StatusUnreachable means no response arrived.
	StatusUnreachable ConnectionStatus = "unreachable"
)

// SystemStats is the subset of /system_stats shown to operators.
type SystemStats struct {
	System struct {
		OS             string `json:"os"`
		ComfyVersion   string `json:"comfyui_version"`
		PythonVersion  string `json:"python_version"`
		EmbeddedPython bool   `json:"embedded_python"`
	} `json:"system"`
	Devices []struct {
		Name      string `json:"name"`
		Type      string `json:"type"`
		VRAMTotal int64  `json:"vram_total"`
		VRAMFree  int64  `json:"vram_free"`
	} `json:"devices"`
}

// ConnectionReport is the outcome of CheckConnection.
type ConnectionReport struct {
	URL        string           `json:"url"`
	Status     ConnectionStatus `json:"status"`
	StatusCode int              `json:"status_code,omitempty"`
	Detail     string           `json:"detail,omitempty"`
	Latency    time.Duration    `json:"latency"`
	Stats      *SystemStats     `json:"stats,omitempty"`
}

// OK reports whether the backend is usable from the studio.
func (r ConnectionReport) OK() bool {
	return r.Status == StatusReachable
}

// CheckConnection probes /system_stats. When an origin is configured the
// backend must echo it (or "*") in Access-Control-Allow-Origin, otherwise the
// browser studio could not read its responses and the probe reports Rejected.
func (c *Client) CheckConnection(ctx context.Context) ConnectionReport {
	report := ConnectionReport{URL: c.baseURL}
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/system_stats", nil)
	if err != nil {
		report.Status = StatusUnreachable
		report.Detail = fmt.Sprintf("invalid backend url: %v", err)
		return report
	}
	if c.origin != "" {
		req.Header.Set("Origin", c.origin)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	report.Latency = time.Since(started)
	if err != nil {
		report.Status = StatusUnreachable
		report.Detail = Remediation
		return report
	}
	defer resp.Body.Close()
	report.StatusCode = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		report.Status = StatusRejected
		report.Detail = fmt.Sprintf("backend answered http %d", resp.StatusCode)
		return report
	}
	if c.origin != "" && !originAllowed(resp.Header.Get("Access-Control-Allow-Origin"), c.origin) {
		report.Status = StatusRejected
		report.Detail = "backend is online but does not allow cross-origin requests from " + c.origin +
			"; start it with --enable-cors-header '*'"
		return report
	}

	report.Status = StatusReachable
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err == nil {
		var stats SystemStats
		if json.Unmarshal(body, &stats) == nil {
			report.Stats = &stats
		}
	}
	return report
}

func originAllowed(header, origin string) bool {
	header = strings.TrimSpace(header)
	return header == "*" || strings.EqualFold(strings.TrimRight(header, "/"), origin)
}
