// Package cache manages reusable provider-side context caches.
//
// Large, slowly changing prompt context (trend research, source material) is
// uploaded once per thread and purpose and referenced by handle on later
// calls. The Manager never fails its caller: every fault is logged and
// reported as "no handle", and the caller proceeds uncached.
package cache

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Defaults for the size threshold and handle lifetime.
const (
	DefaultMinTokens     = 2048
	DefaultCharsPerToken = 4
	DefaultTTL           = time.Hour
)

// Outcomes reported to Metrics.
const (
	OutcomeSkipped = "below_threshold"
	OutcomeHit     = "hit"
	OutcomeCreated = "created"
	OutcomeError   = "error"
)

// Request describes the context to cache.
type Request struct {
	// Model the cached context is bound to.
	Model string

	// Text is the context to cache. Its length decides whether caching is
	// worthwhile.
	Text string

	// SystemInstruction is cached alongside Text when set.
	SystemInstruction string

	// TTL overrides the manager's default lifetime when positive.
	TTL time.Duration
}

// Key returns the registry key of a (thread, purpose) pair. Keys do not
// include a content revision: a thread reuses its handle across retries.
func Key(threadID, purpose string) string {
	return purpose + "-" + threadID
}

// Manager hands out cache handles keyed by thread and purpose.
//
// Handles are reused while the provider confirms they are alive and
// recreated otherwise. Concurrent requests for the same key share one
// creation; distinct keys never contend.
type Manager struct {
	provider      Provider
	registry      Registry
	logger        *zap.Logger
	metrics       *Metrics
	minTokens     int
	charsPerToken int
	ttl           time.Duration
	group         singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics records request outcomes.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithThreshold sets the minimum worthwhile size.
func WithThreshold(minTokens, charsPerToken int) Option {
	return func(m *Manager) {
		if minTokens > 0 {
			m.minTokens = minTokens
		}
		if charsPerToken > 0 {
			m.charsPerToken = charsPerToken
		}
	}
}

// WithTTL sets the default handle lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// NewManager creates a Manager. A nil registry uses a MemoryRegistry.
func NewManager(provider Provider, registry Registry, opts ...Option) *Manager {
	if registry == nil {
		registry = NewMemoryRegistry()
	}
	m := &Manager{
		provider:      provider,
		registry:      registry,
		logger:        zap.NewNop(),
		minTokens:     DefaultMinTokens,
		charsPerToken: DefaultCharsPerToken,
		ttl:           DefaultTTL,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("component", "cache"))
	return m
}

// MinChars is the smallest Request.Text length that gets cached.
func (m *Manager) MinChars() int {
	return m.minTokens * m.charsPerToken
}

// GetOrCreate returns a handle for the thread's cached context of the
// given purpose. It returns ok=false, without contacting the provider,
// when req.Text is below the size threshold, and ok=false after logging
// any provider or registry failure. It never panics.
func (m *Manager) GetOrCreate(ctx context.Context, threadID, purpose string, req Request) (handle string, ok bool) {
	key := Key(threadID, purpose)
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("cache manager panicked, proceeding uncached",
				zap.String("key", key), zap.Any("panic", r))
			m.metrics.observe(purpose, OutcomeError)
			handle, ok = "", false
		}
	}()

	if m == nil || m.provider == nil {
		return "", false
	}
	if chars := utf8.RuneCountInString(req.Text); chars < m.MinChars() {
		m.logger.Debug("content below cache threshold",
			zap.String("key", key), zap.Int("chars", chars), zap.Int("min_chars", m.MinChars()))
		m.metrics.observe(purpose, OutcomeSkipped)
		return "", false
	}

	v, err, _ := m.group.Do(key, func() (interface{}, error) {
		return m.getOrCreate(ctx, key, purpose, req)
	})
	if err != nil {
		m.logger.Warn("cache creation failed, proceeding uncached",
			zap.String("key", key), zap.Error(err))
		m.metrics.observe(purpose, OutcomeError)
		return "", false
	}
	return v.(string), true
}

func (m *Manager) getOrCreate(ctx context.Context, key, purpose string, req Request) (string, error) {
	name, found, err := m.registry.Get(ctx, key)
	if err != nil {
		m.logger.Warn("cache registry lookup failed", zap.String("key", key), zap.Error(err))
	}
	if found {
		probeErr := m.provider.Probe(ctx, name)
		if probeErr == nil {
			m.logger.Debug("reusing cache", zap.String("key", key), zap.String("name", name))
			m.metrics.observe(purpose, OutcomeHit)
			return name, nil
		}
		m.logger.Debug("cached entry expired, recreating",
			zap.String("key", key), zap.String("name", name), zap.Error(probeErr))
		if err := m.registry.Delete(ctx, key); err != nil {
			m.logger.Warn("failed to drop stale cache entry", zap.String("key", key), zap.Error(err))
		}
	}

	ttl := req.TTL
	if ttl <= 0 {
		ttl = m.ttl
	}
	name, err = m.provider.Create(ctx, CreateRequest{
		DisplayName:       key,
		Model:             req.Model,
		Text:              req.Text,
		SystemInstruction: req.SystemInstruction,
		TTL:               ttl,
	})
	if err != nil {
		return "", fmt.Errorf("create cache %s: %w", key, err)
	}
	if name == "" {
		return "", fmt.Errorf("create cache %s: provider returned empty name", key)
	}
	if err := m.registry.Set(ctx, key, name, ttl); err != nil {
		m.logger.Warn("failed to record cache entry", zap.String("key", key), zap.Error(err))
	}
	m.logger.Info("created cache", zap.String("key", key), zap.String("name", name), zap.Duration("ttl", ttl))
	m.metrics.observe(purpose, OutcomeCreated)
	return name, nil
}

// Clear forgets every registry entry. Provider-side caches are left to
// expire by TTL.
func (m *Manager) Clear(ctx context.Context) {
	if err := m.registry.Clear(ctx); err != nil {
		m.logger.Warn("failed to clear cache registry", zap.Error(err))
	}
}
