package graph

import "context"

// Node is a named stage of the pipeline graph.
//
// A stage receives the committed state of its thread and returns a partial
// state (Delta) to be merged by the engine's reducer. Stages may:
//   - Call external collaborators (content generation, judgment, records)
//   - Suspend the thread with Interrupt and continue on Resume
//   - Fail by setting Err, which terminates the current Run/Resume call
//
// Routing is never decided by the stage itself; the engine evaluates the
// edges declared for the stage against the merged state.
//
// Type parameter S is the state type shared across the pipeline.
type Node[S any] interface {
	Run(ctx context.Context, state S) NodeResult[S]
}

// NodeResult is the output of one stage invocation.
type NodeResult[S any] struct {
	// Delta is the partial state update produced by the stage.
	Delta S

	// Err halts the thread. It is returned to the caller unchanged.
	// An *InterruptError (from Interrupt) suspends the thread instead.
	Err error
}

// NodeFunc adapts a plain function to the Node interface.
//
// Example:
//
//	publish := graph.NodeFunc[State](func(ctx context.Context, s State) graph.NodeResult[State] {
//	    return graph.NodeResult[State]{Delta: State{Status: StatusPublished}}
//	})
type NodeFunc[S any] func(ctx context.Context, state S) NodeResult[S]

// Run implements Node.
func (f NodeFunc[S]) Run(ctx context.Context, state S) NodeResult[S] {
	return f(ctx, state)
}

// Middleware wraps a stage. The engine applies middleware to every stage
// invocation, outermost first, in the order given to Use.
type Middleware[S any] func(stage string, next Node[S]) Node[S]

// NodeError is a structured stage failure.
type NodeError struct {
	// Message is the human-readable error description.
	Message string

	// Code is a machine-readable error code.
	Code string

	// NodeID identifies which stage produced this error.
	NodeID string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if e.NodeID != "" {
		return "stage " + e.NodeID + ": " + msg
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *NodeError) Unwrap() error {
	return e.Cause
}
