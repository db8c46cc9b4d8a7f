package runlog

import (
	"context"
	"time"
)

// Overall thread statuses reported by a Summary.
const (
	SummaryRunning   = "running"
	SummarySuspended = "suspended"
	SummaryFailed    = "failed"
	SummaryCompleted = "completed"
)

// Summary aggregates a thread's run logs. It is always computed from the
// logs on demand and never stored.
type Summary struct {
	ThreadID              string     `json:"thread_id"`
	NodeCount             int        `json:"node_count"`
	TotalDurationMS       float64    `json:"total_duration_ms"`
	TotalPromptTokens     int        `json:"total_prompt_tokens"`
	TotalCompletionTokens int        `json:"total_completion_tokens"`
	TotalTokens           int        `json:"total_tokens"`
	EstimatedCostUSD      float64    `json:"estimated_cost_usd"`
	Status                string     `json:"status"`
	StartedAt             *time.Time `json:"started_at,omitempty"`
	EndedAt               *time.Time `json:"ended_at,omitempty"`
}

// Summarize folds logs into a Summary.
//
// Status is "running" with no logs, "failed" if any entry failed,
// "suspended" if the latest entry is an interrupt, and "completed"
// otherwise.
func Summarize(threadID string, logs []NodeRunLog, pricing Pricing) Summary {
	s := Summary{ThreadID: threadID, NodeCount: len(logs), Status: SummaryRunning}
	if len(logs) == 0 {
		return s
	}

	failed := false
	for i := range logs {
		l := logs[i]
		s.TotalDurationMS += l.DurationMS
		s.TotalPromptTokens += l.TotalPromptTokens
		s.TotalCompletionTokens += l.TotalCompletionTokens
		s.TotalTokens += l.TotalTokens
		for _, u := range l.TokenUsage {
			s.EstimatedCostUSD += pricing.Cost(u)
		}
		if l.Status == StatusError {
			failed = true
		}
		if s.StartedAt == nil || l.StartedAt.Before(*s.StartedAt) {
			started := l.StartedAt
			s.StartedAt = &started
		}
		if s.EndedAt == nil || l.EndedAt.After(*s.EndedAt) {
			ended := l.EndedAt
			s.EndedAt = &ended
		}
	}

	switch {
	case failed:
		s.Status = SummaryFailed
	case logs[len(logs)-1].Status == StatusInterrupted:
		s.Status = SummarySuspended
	default:
		s.Status = SummaryCompleted
	}
	return s
}

// SummarizeStore loads the thread's logs from st and summarizes them.
func SummarizeStore(ctx context.Context, st Store, threadID string, pricing Pricing) (Summary, error) {
	logs, err := st.List(ctx, threadID, Filter{})
	if err != nil {
		return Summary{}, err
	}
	return Summarize(threadID, logs, pricing), nil
}
