// Package retry holds the single backoff policy shared by every external
// call site: indexing writes, retrieval, embedding, and generation.
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy bounds retries around a potentially flaky external call.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Retryable classifies an error; nil means DefaultRetryable.
	Retryable func(error) bool
}

// DefaultPolicy matches the collaborators' transient failure profile.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks an error as non-retryable, e.g. a malformed request.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// DefaultRetryable retries everything except permanent errors and the
// caller's own cancellation.
func DefaultRetryable(err error) bool {
	if IsPermanent(err) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// Do runs op with exponential backoff until it succeeds, the attempts are
// exhausted, the error is classified non-retryable, or ctx is done.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = DefaultRetryable
	}
	delay := p.BaseDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if attempt == attempts || !retryable(err) {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return err
}
