package tool

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/contentflow/graph"
)

func TestHTTPTool_Call(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		var in map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"echo": in["query"], "results": []string{"a", "b"}})
	}))
	defer srv.Close()

	h := NewHTTPTool("context_search", srv.URL, WithHeader("X-Api-Key", "secret"))
	out, rec, err := Invoke(context.Background(), h, map[string]interface{}{"query": "linen"})
	require.NoError(t, err)
	assert.Equal(t, "linen", out["echo"])
	assert.Len(t, out["results"], 2)
	assert.Equal(t, "context_search", rec.Tool)
	assert.Empty(t, rec.Error)
	assert.Equal(t, out, rec.Output)
}

func TestHTTPTool_StatusErrors(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusNotFound, false},
		{http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("nope"))
			}))
			defer srv.Close()

			_, rec, err := Invoke(context.Background(), NewHTTPTool("t", srv.URL), nil)
			require.Error(t, err)
			assert.Equal(t, tt.transient, graph.IsTransient(err))
			var statusErr *StatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tt.status, statusErr.StatusCode)
			assert.NotEmpty(t, rec.Error)
		})
	}
}

func TestHTTPTool_EmptyAndInvalidBodies(t *testing.T) {
	body := ""
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()
	h := NewHTTPTool("t", srv.URL)

	out, err := h.Call(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)

	body = "[1,2]"
	_, err = h.Call(context.Background(), nil)
	assert.Error(t, err)
}

func TestHTTPTool_UnreachableIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPTool("t", url).Call(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, graph.IsTransient(err))
}

func TestMockTool(t *testing.T) {
	m := &MockTool{ToolName: "m", Responses: []map[string]interface{}{{"n": 1}, {"n": 2}}}
	ctx := context.Background()
	first, _ := m.Call(ctx, map[string]interface{}{"q": "a"})
	second, _ := m.Call(ctx, nil)
	third, _ := m.Call(ctx, nil)
	assert.Equal(t, 1, first["n"])
	assert.Equal(t, 2, second["n"])
	assert.Equal(t, 2, third["n"])
	assert.Equal(t, 3, m.CallCount())

	m.Err = errors.New("down")
	_, err := m.Call(ctx, nil)
	assert.Error(t, err)
}
