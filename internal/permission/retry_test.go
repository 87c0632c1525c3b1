package permission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultShouldRetry(t *testing.T) {
	t.Parallel()

	assert.True(t, DefaultShouldRetry(&CodedError{Code: CodeTokenRequestFailed}))
	assert.True(t, DefaultShouldRetry(&CodedError{Code: CodeNetworkError}))
	assert.False(t, DefaultShouldRetry(&CodedError{Code: CodePermissionBlocked}))
	assert.False(t, DefaultShouldRetry(assert.AnError))
}

func TestErrorCodeUnwraps(t *testing.T) {
	t.Parallel()

	inner := &CodedError{Code: CodeNetworkError, Err: assert.AnError}
	assert.Equal(t, CodeNetworkError, ErrorCode(inner))
	assert.Equal(t, "", ErrorCode(assert.AnError))
	assert.Contains(t, inner.Error(), CodeNetworkError)
}

func TestWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	policy := RetryPolicy{MaxAttempts: 3, ShouldRetry: DefaultShouldRetry}
	result, attempts, err := withRetry(context.Background(), policy,
		func(ctx context.Context, attempt int) (string, error) {
			calls++
			if calls < 3 {
				return "", &CodedError{Code: CodeNetworkError}
			}
			return "ok", nil
		}, nil)

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	t.Parallel()

	calls := 0
	policy := RetryPolicy{MaxAttempts: 5, ShouldRetry: DefaultShouldRetry}
	_, attempts, err := withRetry(context.Background(), policy,
		func(ctx context.Context, attempt int) (string, error) {
			calls++
			return "", &CodedError{Code: CodePermissionBlocked}
		}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempts)
}

func TestWithRetryObservesEveryAttempt(t *testing.T) {
	t.Parallel()

	var observed []int
	policy := RetryPolicy{MaxAttempts: 2, ShouldRetry: DefaultShouldRetry}
	_, _, err := withRetry(context.Background(), policy,
		func(ctx context.Context, attempt int) (string, error) {
			return "", &CodedError{Code: CodeTokenRequestFailed}
		},
		func(attempt int, err error) {
			observed = append(observed, attempt)
			assert.Error(t, err)
		})

	require.Error(t, err)
	assert.Equal(t, []int{1, 2}, observed)
}

func TestWithRetryHonorsContextDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{
		MaxAttempts: 3,
		ShouldRetry: DefaultShouldRetry,
		Backoff: func(int) time.Duration {
			cancel()
			return time.Minute
		},
	}
	_, _, err := withRetry(ctx, policy,
		func(ctx context.Context, attempt int) (string, error) {
			return "", &CodedError{Code: CodeNetworkError}
		}, nil)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestLinearBackoff(t *testing.T) {
	t.Parallel()

	backoff := LinearBackoff(100 * time.Millisecond)
	assert.Equal(t, 100*time.Millisecond, backoff(1))
	assert.Equal(t, 300*time.Millisecond, backoff(3))
}
