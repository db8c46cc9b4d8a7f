package runlog

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runStoreContract(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()

	empty, err := st.List(ctx, "nobody", Filter{})
	require.NoError(t, err)
	assert.Empty(t, empty)

	entries := []NodeRunLog{
		{ThreadID: "t1", NodeName: "editorial", Status: StatusSuccess},
		{ThreadID: "t1", NodeName: "review", Status: StatusSuccess},
		{ThreadID: "t1", NodeName: "editorial", Status: StatusError, ErrorMessage: "boom"},
		{ThreadID: "t2", NodeName: "curation", Status: StatusSuccess},
	}
	for _, e := range entries {
		require.NoError(t, st.Append(ctx, e))
	}

	all, err := st.List(ctx, "t1", Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "review", all[1].NodeName, "append order preserved")

	editorial, err := st.List(ctx, "t1", Filter{Stage: "editorial"})
	require.NoError(t, err)
	assert.Len(t, editorial, 2)

	failed, err := st.List(ctx, "t1", Filter{Stage: "editorial", Status: StatusError})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "boom", failed[0].ErrorMessage)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, st.Append(ctx, NodeRunLog{ThreadID: "busy", NodeName: "x", Status: StatusSuccess}))
		}()
	}
	wg.Wait()
	busy, err := st.List(ctx, "busy", Filter{})
	require.NoError(t, err)
	assert.Len(t, busy, 20)
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	st, err := NewFileStore(dir, nil)
	require.NoError(t, err)
	runStoreContract(t, st)

	threads, err := st.Threads()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t1", "t2", "busy"}, threads)
}

func TestFileStore_SkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	st, err := NewFileStore(dir, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, st.Append(ctx, NodeRunLog{ThreadID: "t", NodeName: "a"}))
	f, err := os.OpenFile(filepath.Join(dir, "t.jsonl"), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, st.Append(ctx, NodeRunLog{ThreadID: "t", NodeName: "b"}))

	logs, err := st.List(ctx, "t", Filter{})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "b", logs[1].NodeName)
}

func TestFileStore_RejectsPathTraversal(t *testing.T) {
	st, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	assert.Error(t, st.Append(context.Background(), NodeRunLog{ThreadID: "../escape"}))
	_, err = st.List(context.Background(), "", Filter{})
	assert.Error(t, err)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	defer client.Close()

	runStoreContract(t, NewRedisStore(client, "test:runlog:", time.Hour))
	assert.True(t, mr.TTL("test:runlog:t1") > 0)
}
