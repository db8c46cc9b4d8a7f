package graph

import (
	"context"
	"errors"
	"fmt"
)

// Command carries an external decision back into a suspended thread.
type Command struct {
	// Resume is returned from the suspended stage's Interrupt call.
	// It is opaque to the engine.
	Resume any
}

// InterruptError signals that a stage suspended its thread.
//
// Stages never construct it directly; they return the error produced by
// Interrupt so the engine can persist the suspension point.
type InterruptError struct {
	Stage   string
	Payload any
}

func (e *InterruptError) Error() string {
	return fmt.Sprintf("stage %s interrupted", e.Stage)
}

// IsInterrupt reports whether err is (or wraps) an *InterruptError.
func IsInterrupt(err error) bool {
	var ie *InterruptError
	return errors.As(err, &ie)
}

type resumeKey struct{}

type resumeValue struct {
	value any
}

// Interrupt suspends the calling stage until the thread is resumed.
//
// On the first pass it returns (nil, *InterruptError): the stage must return
// that error in its NodeResult, and the engine checkpoints the thread with
// payload handed back to the caller. On resume the engine re-enters the
// same stage from the top; this time Interrupt returns the resume value and
// a nil error.
//
// Anything the stage does before calling Interrupt runs again on every
// re-entry, including a plain Run on an already-suspended thread. Such side
// effects must therefore be idempotent (for example an upsert keyed by
// thread ID).
//
// Example:
//
//	func approval(ctx context.Context, s State) graph.NodeResult[State] {
//	    if err := records.UpsertPending(ctx, s.ThreadID, s.Draft); err != nil {
//	        return graph.NodeResult[State]{Err: err}
//	    }
//	    decision, err := graph.Interrupt(ctx, map[string]any{"title": s.Draft.Title})
//	    if err != nil {
//	        return graph.NodeResult[State]{Err: err}
//	    }
//	    // decision is the Command.Resume value
//	}
func Interrupt(ctx context.Context, payload any) (any, error) {
	if rv, ok := ctx.Value(resumeKey{}).(resumeValue); ok {
		return rv.value, nil
	}
	return nil, &InterruptError{Stage: StageName(ctx), Payload: payload}
}

func withResume(ctx context.Context, value any) context.Context {
	return context.WithValue(ctx, resumeKey{}, resumeValue{value: value})
}
