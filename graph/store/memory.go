package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemStore is an in-memory implementation of Store[S].
//
// Checkpoints are stored as encoded JSON so callers can never alias state
// slices held by the store. MemStore is thread-safe.
//
// Data is lost when the process terminates; use SQLStore or RedisStore when
// threads must survive restarts.
type MemStore[S any] struct {
	mu      sync.RWMutex
	threads map[string]map[int][]byte // threadID -> step -> encoded checkpoint
}

// NewMemStore creates a new in-memory store.
//
// Example:
//
//	st := store.NewMemStore[pipeline.State]()
//	engine := graph.New(pipeline.Reduce, st)
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{
		threads: make(map[string]map[int][]byte),
	}
}

// Put implements Store.
func (m *MemStore[S]) Put(_ context.Context, cp Checkpoint[S]) error {
	if err := validate(cp); err != nil {
		return err
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	steps, ok := m.threads[cp.ThreadID]
	if !ok {
		steps = make(map[int][]byte)
		m.threads[cp.ThreadID] = steps
	}
	steps[cp.Step] = data
	return nil
}

// Latest implements Store.
func (m *MemStore[S]) Latest(_ context.Context, threadID string) (Checkpoint[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var zero Checkpoint[S]
	steps := m.threads[threadID]
	if len(steps) == 0 {
		return zero, ErrNotFound
	}

	latest := 0
	for step := range steps {
		if step > latest {
			latest = step
		}
	}
	return decodeCheckpoint[S](steps[latest])
}

// History implements Store.
func (m *MemStore[S]) History(_ context.Context, threadID string) ([]Checkpoint[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	steps := m.threads[threadID]
	order := make([]int, 0, len(steps))
	for step := range steps {
		order = append(order, step)
	}
	sort.Ints(order)

	out := make([]Checkpoint[S], 0, len(order))
	for _, step := range order {
		cp, err := decodeCheckpoint[S](steps[step])
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// Threads returns the IDs of every thread with at least one checkpoint.
func (m *MemStore[S]) Threads() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.threads))
	for id := range m.threads {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func decodeCheckpoint[S any](data []byte) (Checkpoint[S], error) {
	var cp Checkpoint[S]
	if err := json.Unmarshal(data, &cp); err != nil {
		return cp, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return cp, nil
}
