// Package tool defines external tools invoked by pipeline stages and the
// record kept of each invocation.
package tool

import (
	"context"
	"time"
)

// Tool is an external capability a stage can call with JSON-like input.
type Tool interface {
	// Name identifies the tool in call records.
	Name() string

	// Call executes the tool.
	Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}

// Call is the record of one tool invocation. Stages append these to their
// state's tool-call log.
type Call struct {
	Tool       string                 `json:"tool"`
	Input      map[string]interface{} `json:"input,omitempty"`
	Output     map[string]interface{} `json:"output,omitempty"`
	Error      string                 `json:"error,omitempty"`
	DurationMS float64                `json:"duration_ms"`
}

// Invoke calls t and returns its output together with the call record.
// The record is populated on failure as well.
func Invoke(ctx context.Context, t Tool, input map[string]interface{}) (map[string]interface{}, Call, error) {
	started := time.Now()
	out, err := t.Call(ctx, input)
	rec := Call{
		Tool:       t.Name(),
		Input:      input,
		Output:     out,
		DurationMS: float64(time.Since(started).Microseconds()) / 1000,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	return out, rec, err
}
