package history

import (
	"context"
	"errors"
	"strings"
	"time"
)

// DefaultLimit caps the log when no limit is configured.
const DefaultLimit = 50

// DefaultPrompt labels records whose submission had no prompt text.
const DefaultPrompt = "Art Task"

// Record is one finished generation.
type Record struct {
	ID         string    `json:"id"`
	ImageURL   string    `json:"imageUrl,omitempty"`
	TextOutput string    `json:"textOutput,omitempty"`
	Prompt     string    `json:"prompt"`
	Timestamp  time.Time `json:"timestamp"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	MenuID     string    `json:"menuId"`
}

// Recorder is a bounded, newest-first generation log.
type Recorder interface {
	// Record prepends r and drops entries beyond the limit.
	Record(ctx context.Context, r Record) error
	// List returns records newest first.
	List(ctx context.Context) ([]Record, error)
	Clear(ctx context.Context) error
}

// ErrInvalidRecord reports a record without an id.
var ErrInvalidRecord = errors.New("history record requires an id")

func normalize(r Record) (Record, error) {
	r.ID = strings.TrimSpace(r.ID)
	if r.ID == "" {
		return r, ErrInvalidRecord
	}
	if strings.TrimSpace(r.Prompt) == "" {
		r.Prompt = DefaultPrompt
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	r.Timestamp = r.Timestamp.UTC()
	return r, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
