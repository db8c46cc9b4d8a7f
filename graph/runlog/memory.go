package runlog

import (
	"context"
	"sync"
)

// MemoryStore keeps run logs in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	logs map[string][]NodeRunLog
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logs: make(map[string][]NodeRunLog)}
}

// Append implements Store.
func (m *MemoryStore) Append(_ context.Context, entry NodeRunLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[entry.ThreadID] = append(m.logs[entry.ThreadID], entry)
	return nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context, threadID string, filter Filter) ([]NodeRunLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return applyFilter(m.logs[threadID], filter), nil
}
