package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrExpired is returned by Probe for handles the provider no longer holds.
var ErrExpired = errors.New("cache: handle expired")

// CreateRequest is what a Provider needs to create a cached context.
type CreateRequest struct {
	DisplayName       string
	Model             string
	Text              string
	SystemInstruction string
	TTL               time.Duration
}

// Provider creates and probes provider-side cached contexts.
type Provider interface {
	// Create uploads the context and returns its handle name.
	Create(ctx context.Context, req CreateRequest) (string, error)

	// Probe returns nil if the handle is still usable.
	Probe(ctx context.Context, name string) error
}

// MemoryProvider is an in-process Provider for tests and local runs.
type MemoryProvider struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
	created int
	failing error
}

type memoryEntry struct {
	req     CreateRequest
	expires time.Time
}

// NewMemoryProvider creates an empty MemoryProvider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{entries: make(map[string]memoryEntry), now: time.Now}
}

// Create implements Provider.
func (p *MemoryProvider) Create(_ context.Context, req CreateRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failing != nil {
		return "", p.failing
	}
	name := "cachedContents/" + uuid.NewString()
	p.entries[name] = memoryEntry{req: req, expires: p.now().Add(req.TTL)}
	p.created++
	return name, nil
}

// Probe implements Provider.
func (p *MemoryProvider) Probe(_ context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[name]
	if !ok || (!e.expires.IsZero() && !p.now().Before(e.expires)) {
		return ErrExpired
	}
	return nil
}

// Expire drops a handle as if its TTL had elapsed.
func (p *MemoryProvider) Expire(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, name)
}

// FailWith makes subsequent Create calls return err. Pass nil to recover.
func (p *MemoryProvider) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failing = err
}

// Created reports how many handles have been created.
func (p *MemoryProvider) Created() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created
}

// Lookup returns the request a live handle was created from.
func (p *MemoryProvider) Lookup(name string) (CreateRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[name]
	return e.req, ok
}
