package llm

import (
	"context"
	"errors"
	"fmt"
)

// TransportError indicates the backend could not be reached or returned a
// non-2xx status other than rate limiting.
type TransportError struct {
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("llm transport: status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("llm transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RateLimitError indicates the backend rejected the call with HTTP 429.
type RateLimitError struct {
	Err error
}

func (e *RateLimitError) Error() string { return fmt.Sprintf("llm rate limited: %v", e.Err) }

func (e *RateLimitError) Unwrap() error { return e.Err }

// EmptyResponseError indicates the backend answered successfully but
// produced no content.
type EmptyResponseError struct {
	Model string
}

func (e *EmptyResponseError) Error() string {
	return fmt.Sprintf("llm: empty response from model %q", e.Model)
}

// IsRetryable reports whether a failed call may succeed on retry.
// Context cancellation is never retryable: the caller gave up.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var te *TransportError
	if errors.As(err, &te) {
		// Client errors other than 429 indicate a bad request, not a
		// transient condition.
		return te.Status == 0 || te.Status >= 500
	}
	var er *EmptyResponseError
	return errors.As(err, &er)
}
