// Package store persists per-thread checkpoints for the graph engine.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a thread has no committed checkpoint.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned by stores that have been closed.
var ErrClosed = errors.New("store is closed")

// Interrupt describes a stage that suspended itself and is waiting for an
// external resume value.
type Interrupt struct {
	// Stage is the name of the suspended stage. It is re-entered on resume.
	Stage string `json:"stage"`

	// Payload is the opaque value the stage handed to the caller.
	// After a round trip through a durable store it is usually a
	// map[string]any.
	Payload any `json:"payload,omitempty"`
}

// Checkpoint is the committed state of a thread as of the end of its most
// recent completed stage (or suspension point).
//
// A checkpoint carries enough metadata to continue the thread:
//   - Next names the stage to run when the thread is continued
//   - Pending is set while the thread waits on an interrupt
//   - Done marks a thread that reached a terminal edge
//
// Type parameter S is the pipeline state type (must be JSON-serializable).
type Checkpoint[S any] struct {
	ThreadID  string     `json:"thread_id"`
	Step      int        `json:"step"`
	Stage     string     `json:"stage,omitempty"`
	State     S          `json:"state"`
	Next      string     `json:"next,omitempty"`
	Pending   *Interrupt `json:"pending,omitempty"`
	Done      bool       `json:"done"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Suspended reports whether the checkpoint holds an outstanding interrupt.
func (c Checkpoint[S]) Suspended() bool {
	return c.Pending != nil
}

// Store provides durable checkpoint persistence partitioned by thread ID.
//
// Implementations must be safe for concurrent use by distinct threads.
// Writes for the same (thread, step) pair replace the earlier record, which
// keeps a retried commit idempotent.
//
// Implementations:
//   - MemStore: in-memory, for tests and single-process runs
//   - SQLStore: SQLite or MySQL via database/sql
//   - RedisStore: sorted set per thread, scored by step
//
// Type parameter S is the state type to persist.
type Store[S any] interface {
	// Put commits a checkpoint. Step must be >= 1.
	Put(ctx context.Context, cp Checkpoint[S]) error

	// Latest returns the checkpoint with the highest step for threadID.
	// Returns ErrNotFound if the thread has never been committed.
	Latest(ctx context.Context, threadID string) (Checkpoint[S], error)

	// History returns every committed checkpoint for threadID in step order.
	// An unknown thread yields an empty slice and no error.
	History(ctx context.Context, threadID string) ([]Checkpoint[S], error)
}

func validate[S any](cp Checkpoint[S]) error {
	if cp.ThreadID == "" {
		return errors.New("checkpoint thread ID cannot be empty")
	}
	if cp.Step < 1 {
		return errors.New("checkpoint step must be >= 1")
	}
	return nil
}
