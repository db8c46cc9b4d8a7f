package graph

import (
	"context"
	"sync"
)

// threadLocks hands out one lock per thread ID. Entries are dropped once
// no caller holds or waits on them, so the map stays bounded by the number
// of threads in flight.
type threadLocks struct {
	mu    sync.Mutex
	locks map[string]*threadLock
}

type threadLock struct {
	ch   chan struct{}
	refs int
}

// acquire blocks until threadID is free or ctx is done. The returned
// function releases the lock.
func (t *threadLocks) acquire(ctx context.Context, threadID string) (func(), error) {
	t.mu.Lock()
	if t.locks == nil {
		t.locks = make(map[string]*threadLock)
	}
	l, ok := t.locks[threadID]
	if !ok {
		l = &threadLock{ch: make(chan struct{}, 1)}
		t.locks[threadID] = l
	}
	l.refs++
	t.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			t.drop(threadID, l)
		}, nil
	case <-ctx.Done():
		t.drop(threadID, l)
		return nil, ctx.Err()
	}
}

func (t *threadLocks) drop(threadID string, l *threadLock) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(t.locks, threadID)
	}
}

func (t *threadLocks) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
