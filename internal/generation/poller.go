package generation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"magpie/internal/comfy"
	"magpie/internal/logging"
)

// State is the poller's lifecycle position.
type State string

const (
	StatePolling   State = "polling"
	StateSucceeded State = "succeeded"
	StateTimedOut  State = "timed_out"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// PollerConfig bounds a polling session.
type PollerConfig struct {
	Interval  time.Duration
	MaxTicks  int
	MaxErrors int
}

// Outcome describes how a polling session ended.
type Outcome struct {
	State   State
	Outputs comfy.Outputs
	Ticks   int
	// LastError is the most recent failed status query, if any.
	LastError error
}

// Poller waits for a submitted job to produce outputs.
type Poller struct {
	cfg    PollerConfig
	logger *slog.Logger
}

// NewPoller constructs a poller. A non-positive interval or tick budget falls
// back to 2s and 150 ticks; a negative MaxErrors falls back to 10.
func NewPoller(cfg PollerConfig, logger *slog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.MaxTicks <= 0 {
		cfg.MaxTicks = 150
	}
	if cfg.MaxErrors < 0 {
		cfg.MaxErrors = 10
	}
	return &Poller{cfg: cfg, logger: logging.NewComponentLogger(logger, "poller")}
}

// Poll queries the backend once per interval until the job yields an image or
// text output. A failed query bumps the consecutive failure count, which any
// successful query resets; exceeding MaxErrors fails the session. Running out
// of ticks returns ErrPollingExhausted. Cancelling ctx stops immediately.
func (p *Poller) Poll(ctx context.Context, src HistorySource, promptID, imageNodeID, textNodeID string) (Outcome, error) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, p.logger).With(logging.String(logging.FieldPromptID, promptID))
	outcome := Outcome{State: StatePolling}
	failures := 0

	for outcome.Ticks < p.cfg.MaxTicks {
		select {
		case <-ctx.Done():
			outcome.State = StateCancelled
			return outcome, fmt.Errorf("generation cancelled: %w", ctx.Err())
		case <-ticker.C:
		}
		outcome.Ticks++

		entry, found, err := src.History(ctx, promptID)
		if err != nil {
			if ctx.Err() != nil {
				outcome.State = StateCancelled
				return outcome, fmt.Errorf("generation cancelled: %w", ctx.Err())
			}
			failures++
			outcome.LastError = err
			logger.Debug("status query failed",
				logging.Int("tick", outcome.Ticks),
				logging.Int("consecutive_failures", failures),
				logging.Error(err),
			)
			if failures > p.cfg.MaxErrors {
				outcome.State = StateFailed
				return outcome, fmt.Errorf("%w after %d consecutive failures: %w", ErrRepeatedPollFailure, failures, err)
			}
			continue
		}
		failures = 0
		if !found {
			continue
		}

		outputs := comfy.ExtractOutputs(src.BaseURL(), entry, imageNodeID, textNodeID)
		if outputs.Empty() {
			continue
		}
		outcome.State = StateSucceeded
		outcome.Outputs = outputs
		logger.Debug("job produced outputs",
			logging.Int("tick", outcome.Ticks),
			logging.Int("images", len(outputs.ImageURLs)),
			logging.Bool("text", outputs.HasText),
		)
		return outcome, nil
	}

	outcome.State = StateTimedOut
	return outcome, fmt.Errorf("%w (%d polls)", ErrPollingExhausted, outcome.Ticks)
}
