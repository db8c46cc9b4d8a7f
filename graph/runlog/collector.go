package runlog

import (
	"context"
	"sync"
)

// Collector accumulates the usage events of exactly one stage invocation.
//
// A fresh Collector is attached to the stage context on entry and harvested
// on exit, so concurrent threads never share one.
type Collector struct {
	mu    sync.Mutex
	usage []Usage
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Add records a usage event.
func (c *Collector) Add(u Usage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.usage = append(c.usage, u)
}

// Harvest returns the recorded events and resets the collector.
func (c *Collector) Harvest() []Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.usage
	c.usage = nil
	if out == nil {
		out = []Usage{}
	}
	return out
}

type collectorKey struct{}

// WithCollector attaches c to ctx.
func WithCollector(ctx context.Context, c *Collector) context.Context {
	return context.WithValue(ctx, collectorKey{}, c)
}

// CollectorFrom returns the collector attached to ctx, or nil.
func CollectorFrom(ctx context.Context) *Collector {
	c, _ := ctx.Value(collectorKey{}).(*Collector)
	return c
}

// RecordUsage adds u to the collector of the current stage invocation. It is
// a no-op outside an instrumented stage.
func RecordUsage(ctx context.Context, u Usage) {
	if c := CollectorFrom(ctx); c != nil {
		c.Add(u)
	}
}
