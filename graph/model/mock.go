package model

import (
	"context"
	"sync"
)

// MockChatModel is a scripted ChatModel for tests.
//
// Each call returns the next entry of Responses; once they are exhausted
// the last one repeats. Errs, when non-empty, is consumed the same way and
// takes precedence over Responses while it lasts (a nil entry falls through
// to the next response).
//
// Example:
//
//	mock := &MockChatModel{
//	    Errs:      []error{graph.Transient(errors.New("503"))},
//	    Responses: []ChatOut{{Text: `{"title":"Linen"}`}},
//	}
type MockChatModel struct {
	Responses []ChatOut
	Errs      []error

	// Calls records every request in order.
	Calls []Request

	mu      sync.Mutex
	respIdx int
	errIdx  int
}

// Chat implements ChatModel.
func (m *MockChatModel) Chat(ctx context.Context, req Request) (ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return ChatOut{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, req)

	if m.errIdx < len(m.Errs) {
		err := m.Errs[m.errIdx]
		m.errIdx++
		if err != nil {
			return ChatOut{}, err
		}
	}

	if len(m.Responses) == 0 {
		return ChatOut{}, nil
	}
	idx := m.respIdx
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.respIdx++
	}
	return m.Responses[idx], nil
}

// CallCount returns the number of Chat calls.
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastRequest returns the most recent request, if any.
func (m *MockChatModel) LastRequest() (Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return Request{}, false
	}
	return m.Calls[len(m.Calls)-1], true
}

// Reset clears call history and rewinds the scripts.
func (m *MockChatModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.respIdx = 0
	m.errIdx = 0
}
