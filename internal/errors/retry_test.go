package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(n int) RetryConfig {
	return RetryConfig{
		MaxRetries:   n,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetryWithResult_SucceedsAfterTransientError(t *testing.T) {
	// Given: a function that times out twice then succeeds
	attempts := 0
	fn := func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", New(ErrCodeNetworkTimeout, "timeout", nil)
		}
		return "ok", nil
	}

	// When: retrying
	got, err := RetryWithResult(context.Background(), fastRetry(3), fn)

	// Then: succeeds on the third attempt
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithResult_ZeroRetriesIsSingleAttempt(t *testing.T) {
	attempts := 0
	cause := New(ErrCodeNetworkTimeout, "timeout", nil)

	_, err := RetryWithResult(context.Background(), fastRetry(0), func() (int, error) {
		attempts++
		return 0, cause
	})

	assert.Equal(t, 1, attempts)
	assert.Same(t, cause, err)
}

func TestRetry_DoesNotRetryNonRetryable(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastRetry(5), func() error {
		attempts++
		return StatusError("u", 500)
	})

	assert.Equal(t, 1, attempts)
	assert.Equal(t, ErrCodeHTTPStatus, GetCode(err))
}

func TestRetry_FailsAfterMaxRetries(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastRetry(2), func() error {
		attempts++
		return New(ErrCodeNetworkUnavailable, "refused", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "failed after 2 retries")
	assert.Equal(t, ErrCodeNetworkUnavailable, GetCode(err))
}

func TestRetry_CustomPredicate(t *testing.T) {
	cfg := fastRetry(1)
	cfg.ShouldRetry = func(error) bool { return true }
	attempts := 0

	_ = Retry(context.Background(), cfg, func() error {
		attempts++
		return errors.New("anything")
	})

	assert.Equal(t, 2, attempts)
}

func TestRetry_ContextCancelledBeforeFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, fastRetry(3), func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
