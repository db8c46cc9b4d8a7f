// Package runlog records one structured log entry per stage invocation and
// computes thread summaries on demand.
package runlog

import (
	"context"
	"encoding/json"
	"time"
)

// Status is the outcome of one stage invocation.
type Status string

const (
	StatusSuccess     Status = "success"
	StatusError       Status = "error"
	StatusInterrupted Status = "interrupted"
)

// Usage is one resource-usage event (typically an LLM call) emitted while a
// stage runs.
type Usage struct {
	Operation        string `json:"operation,omitempty"`
	Provider         string `json:"provider,omitempty"`
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	CachedTokens     int    `json:"cached_tokens,omitempty"`
}

// NodeRunLog is the record written for every stage invocation.
type NodeRunLog struct {
	ThreadID   string    `json:"thread_id"`
	NodeName   string    `json:"node_name"`
	Status     Status    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	DurationMS float64   `json:"duration_ms"`

	TokenUsage            []Usage `json:"token_usage"`
	TotalPromptTokens     int     `json:"total_prompt_tokens"`
	TotalCompletionTokens int     `json:"total_completion_tokens"`
	TotalTokens           int     `json:"total_tokens"`

	InputState  json.RawMessage `json:"input_state,omitempty"`
	OutputState json.RawMessage `json:"output_state,omitempty"`

	ErrorType      string `json:"error_type,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
	ErrorTraceback string `json:"error_traceback,omitempty"`
}

// Filter selects log entries. Empty fields match everything.
type Filter struct {
	Stage  string
	Status Status
}

func (f Filter) matches(l NodeRunLog) bool {
	if f.Stage != "" && l.NodeName != f.Stage {
		return false
	}
	if f.Status != "" && l.Status != f.Status {
		return false
	}
	return true
}

// Store is an append-only, per-thread sequence of NodeRunLog records.
//
// Implementations must support concurrent appends for distinct threads.
type Store interface {
	// Append adds entry to the end of its thread's log.
	Append(ctx context.Context, entry NodeRunLog) error

	// List returns the thread's entries matching filter, oldest first.
	// An unknown thread yields an empty slice.
	List(ctx context.Context, threadID string, filter Filter) ([]NodeRunLog, error)
}

func applyFilter(logs []NodeRunLog, filter Filter) []NodeRunLog {
	out := make([]NodeRunLog, 0, len(logs))
	for _, l := range logs {
		if filter.matches(l) {
			out = append(out, l)
		}
	}
	return out
}

func sumUsage(entry *NodeRunLog) {
	entry.TotalPromptTokens, entry.TotalCompletionTokens, entry.TotalTokens = 0, 0, 0
	for _, u := range entry.TokenUsage {
		entry.TotalPromptTokens += u.PromptTokens
		entry.TotalCompletionTokens += u.CompletionTokens
		total := u.TotalTokens
		if total == 0 {
			total = u.PromptTokens + u.CompletionTokens
		}
		entry.TotalTokens += total
	}
}
