package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"magpie/internal/catalog"
	"magpie/internal/history"
)

// Client queries a running daemon over its HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a client for the daemon bound at addr (host:port or URL).
func NewClient(addr, token string) *Client {
	base := strings.TrimRight(strings.TrimSpace(addr), "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: base,
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// RemoteError is a non-2xx daemon response.
type RemoteError struct {
	StatusCode int
	Response   ErrorResponse
}

func (e *RemoteError) Error() string {
	if e.Response.Error == "" {
		return fmt.Sprintf("daemon returned http %d", e.StatusCode)
	}
	return fmt.Sprintf("daemon returned http %d: %s", e.StatusCode, e.Response.Error)
}

// Status fetches the daemon status.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var status DaemonStatus
	err := c.get(ctx, "/api/status", &status)
	return status, err
}

// History fetches the generation history, newest first.
func (c *Client) History(ctx context.Context) ([]history.Record, error) {
	var records []history.Record
	err := c.get(ctx, "/api/history", &records)
	return records, err
}

// TestNotification asks the daemon to send a test push notification.
func (c *Client) TestNotification(ctx context.Context) (NotificationResponse, error) {
	var resp NotificationResponse
	err := c.do(ctx, http.MethodPost, "/api/notifications/test", &resp)
	return resp, err
}

// ClearHistory empties the daemon's generation history.
func (c *Client) ClearHistory(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/history", nil)
}

// Users lists the studio accounts.
func (c *Client) Users(ctx context.Context) ([]catalog.User, error) {
	var users []catalog.User
	err := c.get(ctx, "/api/users", &users)
	return users, err
}

// UpdateProfile edits the account registered under phone.
func (c *Client) UpdateProfile(ctx context.Context, phone string, req ProfileRequest) (catalog.User, error) {
	var user catalog.User
	err := c.send(ctx, http.MethodPatch, "/api/users/"+url.PathEscape(phone), req, &user)
	return user, err
}

// SetRole changes the role of the account registered under phone.
func (c *Client) SetRole(ctx context.Context, phone string, req RoleRequest) (catalog.User, error) {
	var user catalog.User
	err := c.send(ctx, http.MethodPut, "/api/users/"+url.PathEscape(phone)+"/role", req, &user)
	return user, err
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, out)
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	return c.send(ctx, method, path, nil, out)
}

func (c *Client) send(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		remote := &RemoteError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(payload, &remote.Response)
		return remote
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// IsUnauthorized reports whether err is a 401 from the daemon.
func IsUnauthorized(err error) bool {
	var remote *RemoteError
	return errors.As(err, &remote) && remote.StatusCode == http.StatusUnauthorized
}
