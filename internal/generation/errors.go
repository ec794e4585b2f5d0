package generation

import (
	"context"
	"errors"
	"fmt"

	"magpie/internal/comfy"
	"magpie/internal/services"
)

var (
	// ErrNoBackend means no enabled backend with a URL serves the caller.
	ErrNoBackend = fmt.Errorf("no backend available; configure a backend under admin → servers: %w", services.ErrConfiguration)
	// ErrPageNotReady means the page is disabled or has no usable workflow.
	ErrPageNotReady = fmt.Errorf("page is not ready for generation: %w", services.ErrConfiguration)
	// ErrUpload wraps a failed reference image upload.
	ErrUpload = fmt.Errorf("image upload failed: %w", services.ErrExternalService)
	// ErrSubmissionRejected wraps a *comfy.StatusError returned on submit.
	ErrSubmissionRejected = fmt.Errorf("backend rejected the job: %w", services.ErrExternalService)
	// ErrNetwork wraps a *comfy.NetworkError; the backend never answered.
	ErrNetwork = fmt.Errorf("backend unreachable: %w", services.ErrTransient)
	// ErrPollingExhausted means the job produced nothing within the tick budget.
	ErrPollingExhausted = fmt.Errorf("generation timed out; check whether the backend queue is stuck or reporting errors: %w", services.ErrTimeout)
	// ErrRepeatedPollFailure means too many consecutive status queries failed.
	ErrRepeatedPollFailure = fmt.Errorf("lost contact with the backend while polling: %w", services.ErrExternalService)
)

func classifySubmitError(err error) error {
	var (
		netErr    *comfy.NetworkError
		statusErr *comfy.StatusError
	)
	switch {
	case errors.As(err, &netErr):
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	case errors.As(err, &statusErr):
		return fmt.Errorf("%w: %w", ErrSubmissionRejected, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrSubmissionRejected, err)
	}
}
