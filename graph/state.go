package graph

import (
	"encoding/json"
	"fmt"
)

// Reducer merges a stage's partial output into the previous state.
//
// Reducers must be deterministic and must never shrink accumulator fields.
// Use Overwrite, Append and Max to express per-field merge rules.
type Reducer[S any] func(prev, delta S) S

// Overwrite returns delta unless it is the zero value, in which case prev
// is kept.
func Overwrite[T comparable](prev, delta T) T {
	var zero T
	if delta == zero {
		return prev
	}
	return delta
}

// Append returns a new slice holding prev followed by delta. The result
// never aliases delta, and prev is returned as-is when delta is empty.
func Append[T any](prev, delta []T) []T {
	if len(delta) == 0 {
		return prev
	}
	out := make([]T, 0, len(prev)+len(delta))
	out = append(out, prev...)
	return append(out, delta...)
}

// Max merges a monotonic counter.
func Max(prev, delta int) int {
	if delta > prev {
		return delta
	}
	return prev
}

// deepCopy creates an independent copy of state via a JSON round trip so a
// stage can never mutate committed state in place.
//
// Unexported fields are not copied; state types must be JSON-serializable.
func deepCopy[S any](state S) (S, error) {
	var zero S

	data, err := json.Marshal(state)
	if err != nil {
		return zero, fmt.Errorf("failed to marshal state: %w", err)
	}

	var copied S
	if err := json.Unmarshal(data, &copied); err != nil {
		return zero, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return copied, nil
}
