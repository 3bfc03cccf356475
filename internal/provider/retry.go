package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"
)

// transientError marks a failure as eligible for retry: connection refused,
// timeout, rate limiting, or a 5xx from the backend. Anything else (bad
// request, model not loaded) is terminal and surfaced immediately.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func markTransient(err error) error {
	return &transientError{err: err}
}

// IsTransient reports whether err represents a transient backend failure.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// classifyStatus wraps an HTTP error status into a transient or terminal error.
func classifyStatus(status int, body string) error {
	err := fmt.Errorf("unexpected status %d: %s", status, body)
	if status == http.StatusTooManyRequests || status >= 500 {
		return markTransient(err)
	}
	return err
}

// withRetry runs call with bounded retry and exponential backoff. Terminal
// errors abort immediately; transient errors retry up to cfg.MaxRetries
// attempts. Context cancellation interrupts both the call and the backoff
// wait.
func withRetry(ctx context.Context, cfg Config, call func(ctx context.Context) (string, error)) (string, error) {
	var lastErr error
	for attempt := range cfg.MaxRetries {
		out, err := call(ctx)
		if err == nil {
			return out, nil
		}
		if !IsTransient(err) {
			return "", err
		}

		lastErr = err
		if attempt < cfg.MaxRetries-1 {
			backoff := time.Duration(float64(cfg.InitialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return "", markTransient(ctx.Err())
			case <-time.After(backoff):
			}
		}
	}
	return "", fmt.Errorf("backend unavailable after %d attempts: %w", cfg.MaxRetries, lastErr)
}
