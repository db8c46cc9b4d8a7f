// Package emit delivers engine lifecycle events to pluggable observability
// backends.
package emit

// Emitter receives lifecycle events from the engine.
//
// Implementations must be:
//   - Non-blocking: never slow down stage execution
//   - Thread-safe: distinct threads emit concurrently
//   - Resilient: never panic and never fail the pipeline
type Emitter interface {
	Emit(event Event)
}

// MultiEmitter fans every event out to each wrapped emitter in order.
type MultiEmitter []Emitter

// Emit implements Emitter.
func (m MultiEmitter) Emit(event Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(event)
		}
	}
}
