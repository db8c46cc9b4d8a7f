package graph

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// RetryPolicy bounds retries of transient collaborator failures.
//
// The engine never retries stages. Stages wrap their calls to external
// collaborators (content generation, judgment, retrieval) with Retry so a
// flaky dependency is retried with exponential backoff, and exhaustion
// surfaces as an ordinary stage error.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts including the first.
	// Must be >= 1. A value of 1 means no retries.
	MaxAttempts int

	// BaseDelay is the base delay for exponential backoff.
	// The delay is min(BaseDelay * 2^attempt, MaxDelay) + jitter(0, BaseDelay).
	BaseDelay time.Duration

	// MaxDelay caps the exponential component. Zero means no cap.
	MaxDelay time.Duration

	// Retryable decides whether err is worth another attempt.
	// If nil, no error is retried.
	Retryable func(error) bool

	// OnRetry, if set, is called before each backoff sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryPolicy retries transient errors three times in total.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
		Retryable:   IsTransient,
	}
}

// Validate checks the policy constraints.
func (rp *RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return ErrInvalidRetryPolicy
	}
	return nil
}

// Retry calls fn until it succeeds, returns a non-retryable error, the
// policy is exhausted, or ctx is done.
//
// On exhaustion the returned error wraps both ErrMaxAttemptsExceeded and the
// last error from fn.
//
// Example:
//
//	var out model.ChatOut
//	err := graph.Retry(ctx, policy, func(ctx context.Context) error {
//	    var err error
//	    out, err = chat.Chat(ctx, msgs, nil)
//	    return err
//	})
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	if err := policy.Validate(); err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if policy.Retryable == nil || !policy.Retryable(lastErr) {
			return lastErr
		}
		if attempt == policy.MaxAttempts-1 {
			break
		}

		delay := computeBackoff(attempt, policy.BaseDelay, policy.MaxDelay, nil)
		if policy.OnRetry != nil {
			policy.OnRetry(attempt+1, lastErr, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrMaxAttemptsExceeded, policy.MaxAttempts, lastErr)
}

// RetryValue is Retry for functions that produce a value.
func RetryValue[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Retry(ctx, policy, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// computeBackoff calculates the delay before retry attempt (0-based) using
// exponential backoff with jitter:
//
//	delay = min(base * 2^attempt, maxDelay) + jitter(0, base)
//
// With base=1s, maxDelay=30s: attempt 0 waits 1-2s, attempt 1 waits 2-3s,
// attempt 10 waits 30-31s.
func computeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		return 0
	}

	exponentialDelay := base * (1 << attempt)
	if maxDelay > 0 && (exponentialDelay > maxDelay || exponentialDelay <= 0) {
		exponentialDelay = maxDelay
	}

	var jitter time.Duration
	if rng != nil {
		jitter = time.Duration(rng.Int63n(int64(base)))
	} else {
		jitter = time.Duration(rand.Int63n(int64(base))) // #nosec G404 -- jitter for retry timing, not security
	}

	return exponentialDelay + jitter
}

// transientError marks an error as safe to retry.
type transientError struct {
	err error
}

func (t *transientError) Error() string { return t.err.Error() }
func (t *transientError) Unwrap() error { return t.err }

// Transient marks err as retryable by DefaultRetryPolicy.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked with Transient or is a
// deadline exceeded on a single attempt.
func IsTransient(err error) bool {
	var t *transientError
	if errors.As(err, &t) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
