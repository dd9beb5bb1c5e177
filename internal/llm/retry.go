package llm

import (
	"context"
	"log/slog"
	"time"
)

// RetryClient wraps a Client with bounded retries on retryable failures.
// This is the single retry boundary in the repository: callers above it
// (the round scheduler, the intervention handlers) never retry themselves.
type RetryClient struct {
	inner    Client
	attempts int
	delay    time.Duration
	logger   *slog.Logger
}

// NewRetryClient wraps inner with up to attempts tries, waiting delay
// between them. attempts <= 1 disables retries.
func NewRetryClient(inner Client, attempts int, delay time.Duration, logger *slog.Logger) *RetryClient {
	if attempts < 1 {
		attempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryClient{inner: inner, attempts: attempts, delay: delay, logger: logger}
}

// Chat calls the wrapped client, retrying retryable failures.
func (c *RetryClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		resp, err := c.inner.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt == c.attempts {
			break
		}
		c.logger.Warn("model call failed, retrying",
			"model", req.Model, "attempt", attempt, "of", c.attempts, "error", err)

		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}
