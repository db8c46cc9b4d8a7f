package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRecords is an in-memory Records implementation for tests and
// single-process runs.
type MemoryRecords struct {
	mu       sync.RWMutex
	byID     map[string]Record
	byThread map[string]string
	now      func() time.Time
}

// NewMemoryRecords returns an empty MemoryRecords.
func NewMemoryRecords() *MemoryRecords {
	return &MemoryRecords{
		byID:     make(map[string]Record),
		byThread: make(map[string]string),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// UpsertPending implements Records.
func (m *MemoryRecords) UpsertPending(_ context.Context, c PendingContent) (Record, error) {
	if c.ThreadID == "" {
		return Record{}, errors.New("thread id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	rec := Record{ID: uuid.NewString(), ThreadID: c.ThreadID, CreatedAt: now}
	if id, ok := m.byThread[c.ThreadID]; ok {
		rec = m.byID[id]
	}
	rec.Status = RecordPending
	rec.Title = c.Title
	rec.Keyword = c.Keyword
	rec.Layout = append([]byte(nil), c.Layout...)
	rec.ReviewSummary = c.ReviewSummary
	rec.UpdatedAt = now

	m.byID[rec.ID] = rec
	m.byThread[c.ThreadID] = rec.ID
	return rec, nil
}

// UpdateStatus implements Records.
func (m *MemoryRecords) UpdateStatus(_ context.Context, id string, status RecordStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	now := m.now()
	rec.Status = status
	rec.UpdatedAt = now
	if status == RecordRejected {
		rec.RejectionReason = reason
	}
	if status == RecordPublished {
		rec.PublishedAt = &now
	}
	m.byID[id] = rec
	return nil
}

// Get implements Records.
func (m *MemoryRecords) Get(_ context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byID[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return rec, nil
}

// ByThread implements Records.
func (m *MemoryRecords) ByThread(ctx context.Context, threadID string) (Record, error) {
	m.mu.RLock()
	id, ok := m.byThread[threadID]
	m.mu.RUnlock()
	if !ok {
		return Record{}, fmt.Errorf("%w: thread %s", ErrRecordNotFound, threadID)
	}
	return m.Get(ctx, id)
}

// Len returns the number of records.
func (m *MemoryRecords) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

// Record table schemas per SQL dialect.
var recordSchemas = map[string]string{
	"sqlite": `
		CREATE TABLE IF NOT EXISTS contentflow_contents (
			id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			keyword TEXT NOT NULL DEFAULT '',
			layout_json TEXT,
			review_summary TEXT NOT NULL DEFAULT '',
			rejection_reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			published_at TIMESTAMP NULL
		)`,
	"mysql": `
		CREATE TABLE IF NOT EXISTS contentflow_contents (
			id CHAR(36) NOT NULL PRIMARY KEY,
			thread_id VARCHAR(255) NOT NULL,
			status VARCHAR(32) NOT NULL,
			title VARCHAR(1024) NOT NULL DEFAULT '',
			keyword VARCHAR(255) NOT NULL DEFAULT '',
			layout_json LONGTEXT,
			review_summary TEXT NOT NULL,
			rejection_reason TEXT NOT NULL,
			created_at DATETIME(6) NOT NULL,
			updated_at DATETIME(6) NOT NULL,
			published_at DATETIME(6) NULL,
			UNIQUE KEY uq_contents_thread (thread_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
}

const recordColumns = `id, thread_id, status, title, keyword, layout_json, review_summary, rejection_reason, created_at, updated_at, published_at`

// SQLRecords stores content records in SQLite or MySQL. Rows are unique by
// thread id, so UpsertPending keeps a thread's content id stable.
type SQLRecords struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLRecords wraps db and creates the contents table for dialect
// ("sqlite" or "mysql") if needed.
func NewSQLRecords(ctx context.Context, db *sql.DB, dialect string) (*SQLRecords, error) {
	schema, ok := recordSchemas[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported records dialect %q", dialect)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create %s contents table: %w", dialect, err)
	}
	return &SQLRecords{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// UpsertPending implements Records.
func (s *SQLRecords) UpsertPending(ctx context.Context, c PendingContent) (rec Record, err error) {
	if c.ThreadID == "" {
		return Record{}, errors.New("thread id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("begin upsert: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := s.now()
	var id string
	err = tx.QueryRowContext(ctx, `SELECT id FROM contentflow_contents WHERE thread_id = ?`, c.ThreadID).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id = uuid.NewString()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO contentflow_contents (`+recordColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, '', ?, ?, NULL)`,
			id, c.ThreadID, string(RecordPending), c.Title, c.Keyword, string(c.Layout), c.ReviewSummary, now, now)
		if err != nil {
			return Record{}, fmt.Errorf("insert content: %w", err)
		}
	case err != nil:
		return Record{}, fmt.Errorf("lookup content: %w", err)
	default:
		_, err = tx.ExecContext(ctx, `
			UPDATE contentflow_contents
			SET status = ?, title = ?, keyword = ?, layout_json = ?, review_summary = ?, updated_at = ?
			WHERE id = ?`,
			string(RecordPending), c.Title, c.Keyword, string(c.Layout), c.ReviewSummary, now, id)
		if err != nil {
			return Record{}, fmt.Errorf("update content: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("commit upsert: %w", err)
	}
	return s.Get(ctx, id)
}

// UpdateStatus implements Records.
func (s *SQLRecords) UpdateStatus(ctx context.Context, id string, status RecordStatus, reason string) error {
	now := s.now()
	var published any
	if status == RecordPublished {
		published = now
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE contentflow_contents
		SET status = ?, rejection_reason = ?, updated_at = ?, published_at = COALESCE(?, published_at)
		WHERE id = ?`,
		string(status), reason, now, published, id)
	if err != nil {
		return fmt.Errorf("update content status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update content status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return nil
}

// Get implements Records.
func (s *SQLRecords) Get(ctx context.Context, id string) (Record, error) {
	return s.scan(s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM contentflow_contents WHERE id = ?`, id), id)
}

// ByThread implements Records.
func (s *SQLRecords) ByThread(ctx context.Context, threadID string) (Record, error) {
	return s.scan(s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM contentflow_contents WHERE thread_id = ?`, threadID), "thread "+threadID)
}

func (s *SQLRecords) scan(row *sql.Row, ref string) (Record, error) {
	var (
		rec       Record
		status    string
		layout    sql.NullString
		published sql.NullTime
	)
	err := row.Scan(&rec.ID, &rec.ThreadID, &status, &rec.Title, &rec.Keyword, &layout,
		&rec.ReviewSummary, &rec.RejectionReason, &rec.CreatedAt, &rec.UpdatedAt, &published)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, ref)
	}
	if err != nil {
		return Record{}, fmt.Errorf("scan content: %w", err)
	}
	rec.Status = RecordStatus(status)
	if layout.Valid && layout.String != "" {
		rec.Layout = []byte(layout.String)
	}
	if published.Valid {
		t := published.Time
		rec.PublishedAt = &t
	}
	return rec, nil
}
