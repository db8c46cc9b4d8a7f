package emit

import "sync"

// BufferedEmitter stores events in memory, grouped by thread.
//
// It backs the CLI's event listing and is the emitter of choice in tests.
// Memory grows with event volume; call Clear when a thread is no longer
// interesting.
//
// Example:
//
//	emitter := emit.NewBufferedEmitter()
//	engine := graph.New(reduce, st, graph.WithEmitter(emitter))
//	_, _ = engine.Run(ctx, "thread-1", initial)
//
//	errs := emitter.HistoryWithFilter("thread-1", emit.HistoryFilter{Msg: emit.MsgStageError})
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // threadID -> events
}

// HistoryFilter selects events. Empty fields match everything; set fields
// are combined with AND.
type HistoryFilter struct {
	Stage   string
	Msg     string
	MinStep *int
	MaxStep *int
}

// NewBufferedEmitter creates an empty BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{
		events: make(map[string][]Event),
	}
}

// Emit implements Emitter.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events[event.ThreadID] = append(b.events[event.ThreadID], event)
}

// History returns a copy of every event for threadID in emission order.
func (b *BufferedEmitter) History(threadID string) []Event {
	return b.HistoryWithFilter(threadID, HistoryFilter{})
}

// HistoryWithFilter returns a copy of the events for threadID matching filter.
func (b *BufferedEmitter) HistoryWithFilter(threadID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]Event, 0, len(b.events[threadID]))
	for _, event := range b.events[threadID] {
		if filter.matches(event) {
			result = append(result, event)
		}
	}
	return result
}

func (f HistoryFilter) matches(event Event) bool {
	if f.Stage != "" && event.Stage != f.Stage {
		return false
	}
	if f.Msg != "" && event.Msg != f.Msg {
		return false
	}
	if f.MinStep != nil && event.Step < *f.MinStep {
		return false
	}
	if f.MaxStep != nil && event.Step > *f.MaxStep {
		return false
	}
	return true
}

// Clear drops the events of threadID, or of every thread when threadID is
// empty.
func (b *BufferedEmitter) Clear(threadID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if threadID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, threadID)
}
