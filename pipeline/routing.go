package pipeline

import "github.com/dshills/contentflow/graph"

// MaxRevisions is the number of failed evaluations after which a thread
// escalates to failed.
const MaxRevisions = 3

// Admin decisions carried by a resume value.
const (
	DecisionApproved          = "approved"
	DecisionRejected          = "rejected"
	DecisionRevisionRequested = "revision_requested"
)

// RouteAfterReview sends a passing draft to approval, a failing draft back
// to editorial, and ends the thread once MaxRevisions is reached.
func RouteAfterReview(s State) string {
	if s.ReviewResult != nil && s.ReviewResult.Passed {
		return StageAdminGate
	}
	if s.RevisionCount >= MaxRevisions {
		return graph.End
	}
	return StageEditorial
}

// RouteAfterAdmin follows the approval decision. Rejected and unknown
// decisions end the thread.
func RouteAfterAdmin(s State) string {
	switch s.AdminDecision {
	case DecisionApproved:
		return StagePublish
	case DecisionRevisionRequested:
		return StageEditorial
	default:
		return graph.End
	}
}

// proceed routes to next unless the thread reached a terminal status.
func proceed(next string) graph.RouteFunc[State] {
	return func(s State) string {
		if s.Status.Terminal() {
			return graph.End
		}
		return next
	}
}
