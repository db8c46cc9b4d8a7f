package graph

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
		Retryable:   IsTransient,
	}
}

func TestRetryPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		wantErr bool
	}{
		{"default", DefaultRetryPolicy(), false},
		{"zero attempts", RetryPolicy{MaxAttempts: 0}, true},
		{"max below base", RetryPolicy{MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: time.Millisecond}, true},
		{"no cap", RetryPolicy{MaxAttempts: 2, BaseDelay: time.Second}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRetryPolicy)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestComputeBackoff(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := 10 * time.Millisecond
	maxDelay := 50 * time.Millisecond

	for attempt, wantMin := range []time.Duration{10, 20, 40, 50, 50} {
		d := computeBackoff(attempt, base, maxDelay, rng)
		assert.GreaterOrEqual(t, d, wantMin*time.Millisecond)
		assert.Less(t, d, wantMin*time.Millisecond+base)
	}
	assert.Zero(t, computeBackoff(3, 0, time.Second, rng))
}

func TestRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		var retried []int
		policy := fastPolicy(3)
		policy.OnRetry = func(attempt int, err error, delay time.Duration) {
			retried = append(retried, attempt)
		}
		err := Retry(ctx, policy, func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return Transient(errors.New("503"))
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, []int{1, 2}, retried)
	})

	t.Run("permanent error is not retried", func(t *testing.T) {
		calls := 0
		permanent := errors.New("400")
		err := Retry(ctx, fastPolicy(5), func(ctx context.Context) error {
			calls++
			return permanent
		})
		assert.Same(t, permanent, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("exhaustion wraps last error", func(t *testing.T) {
		last := errors.New("still down")
		calls := 0
		err := Retry(ctx, fastPolicy(3), func(ctx context.Context) error {
			calls++
			return Transient(last)
		})
		assert.Equal(t, 3, calls)
		assert.ErrorIs(t, err, ErrMaxAttemptsExceeded)
		assert.ErrorIs(t, err, last)
	})

	t.Run("cancelled context stops retries", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		calls := 0
		err := Retry(cctx, fastPolicy(10), func(ctx context.Context) error {
			calls++
			cancel()
			return Transient(errors.New("flaky"))
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})

	t.Run("invalid policy", func(t *testing.T) {
		err := Retry(ctx, RetryPolicy{}, func(ctx context.Context) error { return nil })
		assert.ErrorIs(t, err, ErrInvalidRetryPolicy)
	})

	t.Run("value variant", func(t *testing.T) {
		calls := 0
		v, err := RetryValue(ctx, fastPolicy(2), func(ctx context.Context) (string, error) {
			calls++
			if calls == 1 {
				return "", Transient(errors.New("timeout"))
			}
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", v)
	})
}

func TestTransient(t *testing.T) {
	assert.Nil(t, Transient(nil))
	base := errors.New("x")
	assert.ErrorIs(t, Transient(base), base)
	assert.True(t, IsTransient(Transient(base)))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(base))
}
