// Package notifications delivers studio events via ntfy.
//
// NewService returns a no-op when no topic is configured. Generation results
// and failures are gated by the notifications.generation and
// notifications.errors switches; workflow imports and test pings always go
// out.
package notifications
