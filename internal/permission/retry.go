// Package permission implements the push permission flow state machine:
// prompt sequencing with device-class delays, token acquisition with a
// bounded retry policy, and durable per-client flow state.
package permission

import (
	"context"
	"time"

	stderrors "errors"
)

// Error codes reported by the platform messaging layer. Only transient
// token failures are retried; everything else fails the flow immediately.
const (
	CodeTokenRequestFailed = "messaging/token-request-failed"
	CodeNetworkError       = "messaging/network-error"
	CodePermissionBlocked  = "messaging/permission-blocked"
)

// CodedError carries a platform error code alongside the cause.
type CodedError struct {
	Code string
	Err  error
}

func (e *CodedError) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return e.Code + ": " + e.Err.Error()
}

func (e *CodedError) Unwrap() error { return e.Err }

// ErrorCode extracts the platform error code, or "" when none is set.
func ErrorCode(err error) string {
	var coded *CodedError
	if stderrors.As(err, &coded) {
		return coded.Code
	}
	return ""
}

// RetryPolicy bounds and gates retries of one operation.
type RetryPolicy struct {
	MaxAttempts int
	ShouldRetry func(err error) bool
	Backoff     func(attempt int) time.Duration
}

// DefaultShouldRetry retries only transient token errors.
func DefaultShouldRetry(err error) bool {
	switch ErrorCode(err) {
	case CodeTokenRequestFailed, CodeNetworkError:
		return true
	}
	return false
}

// LinearBackoff returns a backoff function growing linearly with the
// attempt number: base, 2*base, 3*base.
func LinearBackoff(base time.Duration) func(attempt int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * base
	}
}

// withRetry runs fn up to policy.MaxAttempts times. onAttempt, when set,
// observes the outcome of each attempt before the retry decision. The
// attempt count of the final try is returned along with its result.
func withRetry[T any](
	ctx context.Context,
	policy RetryPolicy,
	fn func(ctx context.Context, attempt int) (T, error),
	onAttempt func(attempt int, err error),
) (T, int, error) {
	var zero T
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := fn(ctx, attempt)
		if onAttempt != nil {
			onAttempt(attempt, err)
		}
		if err == nil {
			return result, attempt, nil
		}
		lastErr = err
		if policy.ShouldRetry != nil && !policy.ShouldRetry(err) {
			return zero, attempt, err
		}
		if attempt == maxAttempts {
			break
		}
		if policy.Backoff != nil {
			if err := sleepCtx(ctx, policy.Backoff(attempt)); err != nil {
				return zero, attempt, err
			}
		}
	}
	return zero, maxAttempts, lastErr
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
