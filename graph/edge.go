package graph

// End is the terminal marker. Routing to End completes the thread.
const End = "__end__"

// Edge is an unconditional transition between two stages.
type Edge struct {
	From string
	To   string
}

// RouteFunc picks the next stage from the merged state.
//
// Route functions must be pure: the same state always yields the same
// target. The result must be one of the targets declared with Branch
// (or End if declared).
type RouteFunc[S any] func(state S) string

// branch is a conditional edge with a pre-declared allowed set.
type branch[S any] struct {
	route   RouteFunc[S]
	allowed map[string]bool
	order   []string
}
