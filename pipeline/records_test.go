package pipeline

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/contentflow/graph/store"
)

// testRecords runs the Records contract against an implementation.
func testRecords(t *testing.T, newRecords func(t *testing.T) Records) {
	ctx := context.Background()
	content := PendingContent{
		ThreadID:      "t1",
		Title:         "Linen Season",
		Keyword:       "linen",
		Layout:        json.RawMessage(`{"title":"Linen Season"}`),
		ReviewSummary: "ok",
	}

	t.Run("upsert is stable per thread", func(t *testing.T) {
		r := newRecords(t)
		first, err := r.UpsertPending(ctx, content)
		require.NoError(t, err)
		assert.NotEmpty(t, first.ID)
		assert.Equal(t, RecordPending, first.Status)

		updated := content
		updated.Title = "Linen Season, revised"
		second, err := r.UpsertPending(ctx, updated)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "Linen Season, revised", second.Title)

		byThread, err := r.ByThread(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, first.ID, byThread.ID)
		assert.JSONEq(t, `{"title":"Linen Season"}`, string(byThread.Layout))
	})

	t.Run("reject records reason", func(t *testing.T) {
		r := newRecords(t)
		rec, err := r.UpsertPending(ctx, content)
		require.NoError(t, err)

		require.NoError(t, r.UpdateStatus(ctx, rec.ID, RecordRejected, "off brand"))
		got, err := r.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, RecordRejected, got.Status)
		assert.Equal(t, "off brand", got.RejectionReason)
		assert.Nil(t, got.PublishedAt)
	})

	t.Run("publish stamps time", func(t *testing.T) {
		r := newRecords(t)
		rec, err := r.UpsertPending(ctx, content)
		require.NoError(t, err)

		require.NoError(t, r.UpdateStatus(ctx, rec.ID, RecordPublished, ""))
		got, err := r.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, RecordPublished, got.Status)
		require.NotNil(t, got.PublishedAt)
		assert.WithinDuration(t, time.Now(), *got.PublishedAt, time.Minute)
	})

	t.Run("unknown ids", func(t *testing.T) {
		r := newRecords(t)
		_, err := r.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrRecordNotFound)
		_, err = r.ByThread(ctx, "missing")
		assert.ErrorIs(t, err, ErrRecordNotFound)
		assert.ErrorIs(t, r.UpdateStatus(ctx, "missing", RecordPublished, ""), ErrRecordNotFound)
	})

	t.Run("thread id required", func(t *testing.T) {
		r := newRecords(t)
		_, err := r.UpsertPending(ctx, PendingContent{Title: "x"})
		assert.Error(t, err)
	})
}

func TestMemoryRecords(t *testing.T) {
	testRecords(t, func(*testing.T) Records { return NewMemoryRecords() })
}

func TestSQLRecords_SQLite(t *testing.T) {
	testRecords(t, func(t *testing.T) Records {
		db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "records.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })

		r, err := NewSQLRecords(context.Background(), db, "sqlite")
		require.NoError(t, err)
		return r
	})
}

func TestSQLRecords_UnknownDialect(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewSQLRecords(context.Background(), db, "postgres")
	assert.ErrorContains(t, err, `unsupported records dialect "postgres"`)
}

func newMockRecords(t *testing.T) (*SQLRecords, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS contentflow_contents").
		WillReturnResult(sqlmock.NewResult(0, 0))
	r, err := NewSQLRecords(context.Background(), db, "mysql")
	require.NoError(t, err)
	return r, mock
}

func recordRows(id string, published any) *sqlmock.Rows {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	return sqlmock.NewRows([]string{
		"id", "thread_id", "status", "title", "keyword", "layout_json",
		"review_summary", "rejection_reason", "created_at", "updated_at", "published_at",
	}).AddRow(id, "t1", "pending", "Linen Season", "linen", `{"title":"Linen Season"}`, "ok", "", now, now, published)
}

func TestSQLRecords_MySQLUpsertInsertsOnce(t *testing.T) {
	r, mock := newMockRecords(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM contentflow_contents WHERE thread_id = ?").
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec("INSERT INTO contentflow_contents").
		WithArgs(sqlmock.AnyArg(), "t1", "pending", "Linen Season", "linen", `{"title":"Linen Season"}`, "ok", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT (.+) FROM contentflow_contents WHERE id = ?").
		WillReturnRows(recordRows("c1", nil))

	rec, err := r.UpsertPending(context.Background(), PendingContent{
		ThreadID:      "t1",
		Title:         "Linen Season",
		Keyword:       "linen",
		Layout:        json.RawMessage(`{"title":"Linen Season"}`),
		ReviewSummary: "ok",
	})
	require.NoError(t, err)
	assert.Equal(t, "c1", rec.ID)
	assert.Nil(t, rec.PublishedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRecords_MySQLUpsertUpdatesExisting(t *testing.T) {
	r, mock := newMockRecords(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM contentflow_contents WHERE thread_id = ?").
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("c1"))
	mock.ExpectExec("UPDATE contentflow_contents").
		WithArgs("pending", "Linen Season", "linen", "", "", sqlmock.AnyArg(), "c1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT (.+) FROM contentflow_contents WHERE id = ?").
		WithArgs("c1").
		WillReturnRows(recordRows("c1", nil))

	_, err := r.UpsertPending(context.Background(), PendingContent{ThreadID: "t1", Title: "Linen Season", Keyword: "linen"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRecords_MySQLUpsertRollsBack(t *testing.T) {
	r, mock := newMockRecords(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM contentflow_contents").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec("INSERT INTO contentflow_contents").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := r.UpsertPending(context.Background(), PendingContent{ThreadID: "t1"})
	require.ErrorIs(t, err, assert.AnError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRecords_MySQLUpdateStatus(t *testing.T) {
	r, mock := newMockRecords(t)

	mock.ExpectExec("UPDATE contentflow_contents").
		WithArgs("published", "", sqlmock.AnyArg(), sqlmock.AnyArg(), "c1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE contentflow_contents").
		WithArgs("rejected", "late", sqlmock.AnyArg(), nil, "gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, r.UpdateStatus(context.Background(), "c1", RecordPublished, ""))
	assert.ErrorIs(t, r.UpdateStatus(context.Background(), "gone", RecordRejected, "late"), ErrRecordNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRecords_MySQLGetPublished(t *testing.T) {
	r, mock := newMockRecords(t)
	published := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM contentflow_contents WHERE thread_id = ?").
		WithArgs("t1").
		WillReturnRows(recordRows("c1", published))

	rec, err := r.ByThread(context.Background(), "t1")
	require.NoError(t, err)
	require.NotNil(t, rec.PublishedAt)
	assert.Equal(t, published, *rec.PublishedAt)
	assert.JSONEq(t, `{"title":"Linen Season"}`, string(rec.Layout))
	require.NoError(t, mock.ExpectationsWereMet())
}
