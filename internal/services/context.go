package services

import "context"

type contextKey string

const (
	pageIDKey    contextKey = "page_id"
	stageKey     contextKey = "stage"
	promptIDKey  contextKey = "prompt_id"
	requestIDKey contextKey = "request_id"
)

// WithPageID annotates context with the studio page (menu) identifier.
func WithPageID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, pageIDKey, id)
}

// PageIDFromContext extracts the page identifier if present.
func PageIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(pageIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the generation stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithPromptID annotates context with the backend job identifier.
func WithPromptID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, promptIDKey, id)
}

// PromptIDFromContext returns the backend job identifier if present.
func PromptIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(promptIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
