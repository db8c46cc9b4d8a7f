package tool

import (
	"context"
	"sync"
)

// MockTool is a scripted Tool for tests. Responses are returned in order
// and the last one repeats; Err, if set, is returned instead.
type MockTool struct {
	ToolName  string
	Responses []map[string]interface{}
	Err       error

	// Calls records every input in order.
	Calls []map[string]interface{}

	mu        sync.Mutex
	callIndex int
}

// Name implements Tool.
func (m *MockTool) Name() string {
	return m.ToolName
}

// Call implements Tool.
func (m *MockTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, input)
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Responses) == 0 {
		return map[string]interface{}{}, nil
	}

	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}
	return m.Responses[idx], nil
}

// CallCount returns the number of calls.
func (m *MockTool) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
