// Package graph provides the resumable stage-graph execution engine.
package graph

import "errors"

var (
	// ErrThreadCompleted is returned when Run or Resume targets a thread
	// that already reached a terminal edge.
	ErrThreadCompleted = errors.New("thread already completed")

	// ErrNotInterrupted is returned when Resume targets a thread without an
	// outstanding interrupt.
	ErrNotInterrupted = errors.New("thread is not interrupted")

	// ErrMaxStepsExceeded indicates a Run/Resume call hit the step limit.
	ErrMaxStepsExceeded = errors.New("execution exceeded maximum steps limit")

	// ErrMaxAttemptsExceeded indicates a retried operation exhausted its
	// policy.
	ErrMaxAttemptsExceeded = errors.New("maximum retry attempts exceeded")

	// ErrInvalidRetryPolicy indicates a RetryPolicy failed validation.
	ErrInvalidRetryPolicy = errors.New("invalid retry policy")
)

// EngineError reports engine misuse or an infrastructure fault. Stage
// errors are never wrapped in an EngineError.
type EngineError struct {
	Message string
	Code    string
	Cause   error
}

func (e *EngineError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if e.Code != "" {
		return e.Code + ": " + msg
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Is maps error codes onto the package sentinels.
func (e *EngineError) Is(target error) bool {
	switch e.Code {
	case "MAX_STEPS_EXCEEDED":
		return target == ErrMaxStepsExceeded
	case "THREAD_COMPLETED":
		return target == ErrThreadCompleted
	case "NOT_INTERRUPTED":
		return target == ErrNotInterrupted
	}
	return false
}
