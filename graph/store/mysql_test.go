package store_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/contentflow/graph/store"
)

func newMockMySQLStore(t *testing.T) (*store.SQLStore[testState], sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS contentflow_checkpoints").
		WillReturnResult(sqlmock.NewResult(0, 0))

	st, err := store.NewSQLStore[testState](context.Background(), db, store.MySQLDialect)
	require.NoError(t, err)
	return st, mock
}

func TestMySQLDialect_PutUsesDuplicateKeyUpsert(t *testing.T) {
	st, mock := newMockMySQLStore(t)

	mock.ExpectExec("ON DUPLICATE KEY UPDATE").
		WithArgs("thread-1", 2, "review", false, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := st.Put(context.Background(), store.Checkpoint[testState]{
		ThreadID: "thread-1",
		Step:     2,
		Next:     "review",
		State:    testState{Title: "draft"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLDialect_Latest(t *testing.T) {
	st, mock := newMockMySQLStore(t)

	payload, err := json.Marshal(store.Checkpoint[testState]{
		ThreadID:  "thread-1",
		Step:      7,
		Next:      "publish",
		State:     testState{Count: 7},
		UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)

	mock.ExpectQuery("SELECT payload FROM contentflow_checkpoints").
		WithArgs("thread-1").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(string(payload)))

	cp, err := st.Latest(context.Background(), "thread-1")
	require.NoError(t, err)
	assert.Equal(t, 7, cp.Step)
	assert.Equal(t, "publish", cp.Next)
	assert.Equal(t, 7, cp.State.Count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLDialect_LatestNotFound(t *testing.T) {
	st, mock := newMockMySQLStore(t)

	mock.ExpectQuery("SELECT payload FROM contentflow_checkpoints").
		WithArgs("nobody").
		WillReturnError(sql.ErrNoRows)

	_, err := st.Latest(context.Background(), "nobody")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestMySQLDialect_PutWrapsDriverError(t *testing.T) {
	st, mock := newMockMySQLStore(t)

	mock.ExpectExec("ON DUPLICATE KEY UPDATE").WillReturnError(sql.ErrConnDone)

	err := st.Put(context.Background(), store.Checkpoint[testState]{ThreadID: "t", Step: 1})
	require.ErrorIs(t, err, sql.ErrConnDone)
}
