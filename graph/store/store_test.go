package store_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/contentflow/graph/store"
)

type testState struct {
	Title    string   `json:"title"`
	Feedback []string `json:"feedback"`
	Count    int      `json:"count"`
}

// runStoreContract exercises the behavior every Store implementation shares.
func runStoreContract(t *testing.T, st store.Store[testState]) {
	t.Helper()
	ctx := context.Background()

	t.Run("latest on unknown thread", func(t *testing.T) {
		_, err := st.Latest(ctx, "missing")
		require.ErrorIs(t, err, store.ErrNotFound)

		history, err := st.History(ctx, "missing")
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("rejects invalid checkpoints", func(t *testing.T) {
		assert.Error(t, st.Put(ctx, store.Checkpoint[testState]{Step: 1}))
		assert.Error(t, st.Put(ctx, store.Checkpoint[testState]{ThreadID: "t", Step: 0}))
	})

	t.Run("latest returns highest step", func(t *testing.T) {
		for i := 1; i <= 3; i++ {
			require.NoError(t, st.Put(ctx, store.Checkpoint[testState]{
				ThreadID: "thread-a",
				Step:     i,
				Stage:    fmt.Sprintf("stage-%d", i),
				State:    testState{Count: i, Feedback: make([]string, i)},
				Next:     fmt.Sprintf("stage-%d", i+1),
			}))
		}

		cp, err := st.Latest(ctx, "thread-a")
		require.NoError(t, err)
		assert.Equal(t, 3, cp.Step)
		assert.Equal(t, "stage-4", cp.Next)
		assert.Equal(t, 3, cp.State.Count)
		assert.Len(t, cp.State.Feedback, 3)

		history, err := st.History(ctx, "thread-a")
		require.NoError(t, err)
		require.Len(t, history, 3)
		for i, h := range history {
			assert.Equal(t, i+1, h.Step)
		}
	})

	t.Run("same step is replaced", func(t *testing.T) {
		cp := store.Checkpoint[testState]{ThreadID: "thread-b", Step: 1, State: testState{Title: "first"}}
		require.NoError(t, st.Put(ctx, cp))
		cp.State.Title = "second"
		require.NoError(t, st.Put(ctx, cp))

		history, err := st.History(ctx, "thread-b")
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, "second", history[0].State.Title)
	})

	t.Run("pending interrupt round trips", func(t *testing.T) {
		require.NoError(t, st.Put(ctx, store.Checkpoint[testState]{
			ThreadID: "thread-c",
			Step:     1,
			Next:     "admin_gate",
			Pending: &store.Interrupt{
				Stage:   "admin_gate",
				Payload: map[string]any{"title": "Spring Edit"},
			},
		}))

		cp, err := st.Latest(ctx, "thread-c")
		require.NoError(t, err)
		require.True(t, cp.Suspended())
		assert.Equal(t, "admin_gate", cp.Pending.Stage)
		payload, ok := cp.Pending.Payload.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "Spring Edit", payload["title"])
	})

	t.Run("threads are isolated under concurrency", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id := fmt.Sprintf("concurrent-%d", i)
				for step := 1; step <= 5; step++ {
					assert.NoError(t, st.Put(ctx, store.Checkpoint[testState]{
						ThreadID: id,
						Step:     step,
						State:    testState{Count: i*100 + step},
					}))
				}
			}(i)
		}
		wg.Wait()

		for i := 0; i < 8; i++ {
			cp, err := st.Latest(ctx, fmt.Sprintf("concurrent-%d", i))
			require.NoError(t, err)
			assert.Equal(t, i*100+5, cp.State.Count)
		}
	})

	t.Run("returned state does not alias store", func(t *testing.T) {
		require.NoError(t, st.Put(ctx, store.Checkpoint[testState]{
			ThreadID: "thread-d",
			Step:     1,
			State:    testState{Feedback: []string{"a"}},
		}))
		cp, err := st.Latest(ctx, "thread-d")
		require.NoError(t, err)
		cp.State.Feedback[0] = "mutated"

		again, err := st.Latest(ctx, "thread-d")
		require.NoError(t, err)
		assert.Equal(t, "a", again.State.Feedback[0])
	})
}

func TestMemStore(t *testing.T) {
	st := store.NewMemStore[testState]()
	runStoreContract(t, st)
	assert.Contains(t, st.Threads(), "thread-a")
}

func TestSQLiteStore(t *testing.T) {
	st, err := store.NewSQLiteStore[testState](filepath.Join(t.TempDir(), "checkpoints.db"))
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Ping(context.Background()))
	runStoreContract(t, st)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	st, err := store.NewSQLiteStore[testState](path)
	require.NoError(t, err)
	require.NoError(t, st.Put(ctx, store.Checkpoint[testState]{
		ThreadID: "durable",
		Step:     4,
		Next:     "review",
		State:    testState{Title: "kept"},
	}))
	require.NoError(t, st.Close())
	require.NoError(t, st.Close(), "second close is a no-op")

	_, err = st.Latest(ctx, "durable")
	require.ErrorIs(t, err, store.ErrClosed)

	reopened, err := store.NewSQLiteStore[testState](path)
	require.NoError(t, err)
	defer reopened.Close()

	cp, err := reopened.Latest(ctx, "durable")
	require.NoError(t, err)
	assert.Equal(t, 4, cp.Step)
	assert.Equal(t, "review", cp.Next)
	assert.Equal(t, "kept", cp.State.Title)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	defer client.Close()

	st := store.NewRedisStore[testState](client, store.WithKeyPrefix("test:cp:"))
	runStoreContract(t, st)

	assert.True(t, mr.Exists("test:cp:thread-a"))
	assert.Equal(t, "zset", mr.Type("test:cp:thread-a"), "one sorted set per thread, scored by step")
}
