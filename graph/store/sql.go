package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Dialect captures the SQL differences between the supported databases.
type Dialect struct {
	// Name identifies the dialect in errors ("sqlite", "mysql").
	Name string

	// Schema creates the checkpoint table if it does not exist.
	Schema string

	// Upsert inserts a checkpoint row or replaces the row with the same
	// (thread_id, step). Arguments: thread_id, step, next_stage, done,
	// payload, updated_at.
	Upsert string
}

// SQLiteDialect targets modernc.org/sqlite.
var SQLiteDialect = Dialect{
	Name: "sqlite",
	Schema: `
		CREATE TABLE IF NOT EXISTS contentflow_checkpoints (
			thread_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			next_stage TEXT NOT NULL DEFAULT '',
			done INTEGER NOT NULL DEFAULT 0,
			payload TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (thread_id, step)
		)`,
	Upsert: `
		INSERT INTO contentflow_checkpoints (thread_id, step, next_stage, done, payload, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(thread_id, step) DO UPDATE SET
			next_stage = excluded.next_stage,
			done = excluded.done,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
}

// MySQLDialect targets MySQL/MariaDB via github.com/go-sql-driver/mysql.
var MySQLDialect = Dialect{
	Name: "mysql",
	Schema: `
		CREATE TABLE IF NOT EXISTS contentflow_checkpoints (
			thread_id VARCHAR(255) NOT NULL,
			step INT NOT NULL,
			next_stage VARCHAR(255) NOT NULL DEFAULT '',
			done BOOLEAN NOT NULL DEFAULT FALSE,
			payload LONGTEXT NOT NULL,
			updated_at DATETIME(6) NOT NULL,
			PRIMARY KEY (thread_id, step)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	Upsert: `
		INSERT INTO contentflow_checkpoints (thread_id, step, next_stage, done, payload, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			next_stage = VALUES(next_stage),
			done = VALUES(done),
			payload = VALUES(payload),
			updated_at = VALUES(updated_at)`,
}

const (
	selectLatest = `
		SELECT payload FROM contentflow_checkpoints
		WHERE thread_id = ?
		ORDER BY step DESC
		LIMIT 1`
	selectHistory = `
		SELECT payload FROM contentflow_checkpoints
		WHERE thread_id = ?
		ORDER BY step ASC`
)

// SQLStore is a database/sql implementation of Store[S].
//
// Each checkpoint is one row keyed by (thread_id, step). The full checkpoint
// is kept as a JSON payload; next_stage and done are denormalized so
// operators can query stuck or suspended threads directly.
//
// Use NewSQLiteStore or NewMySQLStore to open a database, or NewSQLStore to
// wrap an existing *sql.DB.
type SQLStore[S any] struct {
	db      *sql.DB
	dialect Dialect
	mu      sync.RWMutex
	closed  bool
}

// NewSQLStore wraps db, creating the checkpoint table if needed.
func NewSQLStore[S any](ctx context.Context, db *sql.DB, dialect Dialect) (*SQLStore[S], error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	if _, err := db.ExecContext(ctx, dialect.Schema); err != nil {
		return nil, fmt.Errorf("failed to create %s checkpoint table: %w", dialect.Name, err)
	}
	return &SQLStore[S]{db: db, dialect: dialect}, nil
}

// Put implements Store.
func (s *SQLStore[S]) Put(ctx context.Context, cp Checkpoint[S]) error {
	if err := validate(cp); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.dialect.Upsert,
		cp.ThreadID, cp.Step, cp.Next, cp.Done, string(payload), cp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert checkpoint: %w", err)
	}
	return nil
}

// Latest implements Store.
func (s *SQLStore[S]) Latest(ctx context.Context, threadID string) (Checkpoint[S], error) {
	var zero Checkpoint[S]

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return zero, ErrClosed
	}

	var payload string
	err := s.db.QueryRowContext(ctx, selectLatest, threadID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, ErrNotFound
	}
	if err != nil {
		return zero, fmt.Errorf("failed to query latest checkpoint: %w", err)
	}
	return decodeCheckpoint[S]([]byte(payload))
}

// History implements Store.
func (s *SQLStore[S]) History(ctx context.Context, threadID string) ([]Checkpoint[S], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, selectHistory, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoint history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]Checkpoint[S], 0)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		cp, err := decodeCheckpoint[S]([]byte(payload))
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate checkpoints: %w", err)
	}
	return out, nil
}

// Ping verifies the database connection is alive.
func (s *SQLStore[S]) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.PingContext(ctx)
}

// DB exposes the underlying handle so other SQL-backed services can share it.
func (s *SQLStore[S]) DB() *sql.DB {
	return s.db
}

// Close closes the database. It is safe to call more than once.
func (s *SQLStore[S]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
