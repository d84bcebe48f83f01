// Package backoff implements the bounded exponential retry policy shared
// by the embedding and generation service clients.
package backoff

import (
	"context"
	"errors"
	"time"
)

// Policy bounds a retry loop: up to MaxRetries retries after the first
// attempt, sleeping Base<<attempt between attempts, capped at Cap.
type Policy struct {
	MaxRetries int
	Base       time.Duration
	Cap        time.Duration
}

// Default matches the service-call policy used across the pipeline.
func Default() Policy {
	return Policy{MaxRetries: 3, Base: 200 * time.Millisecond, Cap: 5 * time.Second}
}

// Delay returns the sleep before retry number attempt (0-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.Base << attempt
	if d > p.Cap || d <= 0 {
		d = p.Cap
	}
	return d
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as retryable. Retry stops immediately on errors
// not carrying this mark.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked retryable.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// Retry runs op until it succeeds, returns a non-transient error, or the
// retry budget is exhausted. The returned error is unwrapped from its
// transient marker. Sleeps are cancelable through ctx.
func Retry(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		var te *transientError
		if !errors.As(err, &te) {
			return err
		}
		lastErr = te.err
		if attempt >= p.MaxRetries {
			return lastErr
		}
		select {
		case <-time.After(p.Delay(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
