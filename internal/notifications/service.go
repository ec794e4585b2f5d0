package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"magpie/internal/config"
)

const userAgent = "Magpie-Go/0.1.0"

// Event identifies a notification template.
type Event string

const (
	EventGenerationCompleted Event = "generation_completed"
	EventGenerationFailed    Event = "generation_failed"
	EventWorkflowImported    Event = "workflow_imported"
	EventImportFailed        Event = "import_failed"
	EventTest                Event = "test"
)

// Payload carries the template fields of one event.
type Payload map[string]any

// Service publishes events to the configured transport.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		generation: cfg.Notifications.Generation,
		errors:     cfg.Notifications.Errors,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	generation bool
	errors     bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.render(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) render(event Event, payload Payload) (message, bool) {
	switch event {
	case EventGenerationCompleted:
		if !n.generation {
			return message{}, false
		}
		page := payloadString(payload, "page")
		body := fmt.Sprintf("🎨 Generation finished on %s", page)
		if prompt := payloadString(payload, "prompt"); prompt != "" {
			body = fmt.Sprintf("%s: %s", body, prompt)
		}
		if url := payloadString(payload, "imageUrl"); url != "" {
			body = fmt.Sprintf("%s\n%s", body, url)
		}
		return message{
			title: "Magpie - Generation Complete",
			body:  body,
			tags:  []string{"magpie", "generation", "completed"},
		}, true
	case EventGenerationFailed:
		if !n.errors {
			return message{}, false
		}
		return message{
			title:    "Magpie - Generation Failed",
			body:     fmt.Sprintf("❌ Generation failed on %s: %s", payloadString(payload, "page"), payloadString(payload, "error")),
			tags:     []string{"magpie", "generation", "error"},
			priority: "high",
		}, true
	case EventWorkflowImported:
		return message{
			title: "Magpie - Workflow Imported",
			body:  fmt.Sprintf("📥 Imported workflow %s (%s nodes)", payloadString(payload, "name"), payloadString(payload, "nodes")),
			tags:  []string{"magpie", "workflow", "imported"},
		}, true
	case EventImportFailed:
		if !n.errors {
			return message{}, false
		}
		return message{
			title:    "Magpie - Import Failed",
			body:     fmt.Sprintf("❌ Could not import %s: %s", payloadString(payload, "file"), payloadString(payload, "error")),
			tags:     []string{"magpie", "workflow", "error"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Magpie - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"magpie", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func payloadString(payload Payload, key string) string {
	value, ok := payload[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Noop returns a service that discards every event.
func Noop() Service { return noopService{} }

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
