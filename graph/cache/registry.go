package cache

import (
	"context"
	"sync"
	"time"
)

// Registry remembers which handle belongs to which key.
type Registry interface {
	Get(ctx context.Context, key string) (name string, ok bool, err error)
	Set(ctx context.Context, key, name string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// MemoryRegistry is a process-local Registry.
type MemoryRegistry struct {
	mu      sync.Mutex
	entries map[string]Entry
	now     func() time.Time
}

// Entry is one registry record.
type Entry struct {
	Key       string        `json:"key"`
	Name      string        `json:"name"`
	CreatedAt time.Time     `json:"created_at"`
	TTL       time.Duration `json:"ttl"`
}

func (e Entry) expired(now time.Time) bool {
	return e.TTL > 0 && !now.Before(e.CreatedAt.Add(e.TTL))
}

// NewMemoryRegistry creates an empty MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{entries: make(map[string]Entry), now: time.Now}
}

// Get implements Registry. Expired entries are dropped on read.
func (r *MemoryRegistry) Get(_ context.Context, key string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return "", false, nil
	}
	if e.expired(r.now()) {
		delete(r.entries, key)
		return "", false, nil
	}
	return e.Name, true, nil
}

// Set implements Registry.
func (r *MemoryRegistry) Set(_ context.Context, key, name string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = Entry{Key: key, Name: name, CreatedAt: r.now(), TTL: ttl}
	return nil
}

// Delete implements Registry.
func (r *MemoryRegistry) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
	return nil
}

// Clear implements Registry.
func (r *MemoryRegistry) Clear(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]Entry)
	return nil
}

// Len reports the number of live entries.
func (r *MemoryRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
