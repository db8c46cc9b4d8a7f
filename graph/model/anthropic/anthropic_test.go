package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/contentflow/graph"
	"github.com/dshills/contentflow/graph/model"
)

func newServer(t *testing.T, status int, body string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		if seen != nil {
			require.NoError(t, json.Unmarshal(raw, seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestChatModel_Chat(t *testing.T) {
	var seen map[string]any
	srv := newServer(t, http.StatusOK, `{
		"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-3-5-sonnet-latest",
		"content": [{"type": "text", "text": "{\"passed\":true}"}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 20, "output_tokens": 7, "cache_read_input_tokens": 3}
	}`, &seen)

	m := NewChatModel("test-key", "", option.WithBaseURL(srv.URL))
	out, err := m.Chat(context.Background(), model.Request{
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: "judge"},
			{Role: model.RoleUser, Content: "evaluate"},
		},
		JSON: true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"passed":true}`, out.Text)
	assert.Equal(t, model.Usage{Provider: "anthropic", Model: DefaultModel, PromptTokens: 20, CompletionTokens: 7, TotalTokens: 27, CachedTokens: 3}, out.Usage)

	assert.EqualValues(t, DefaultMaxTokens, seen["max_tokens"])
	system := seen["system"].([]any)
	require.Len(t, system, 1)
	assert.Contains(t, system[0].(map[string]any)["text"], "judge")
	assert.Contains(t, system[0].(map[string]any)["text"], "JSON object")
	assert.Len(t, seen["messages"].([]any), 1)
}

func TestChatModel_OverloadedIsTransient(t *testing.T) {
	srv := newServer(t, 529, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`, nil)
	_, err := NewChatModel("k", "", option.WithBaseURL(srv.URL)).Chat(context.Background(), model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Content: "x"}},
	})
	require.Error(t, err)
	assert.True(t, graph.IsTransient(err))
}

func TestBuildParams(t *testing.T) {
	p := buildParams("m", model.Request{
		Messages:  []model.Message{{Role: model.RoleUser, Content: "a"}, {Role: model.RoleAssistant, Content: "b"}},
		MaxTokens: 100,
	})
	assert.EqualValues(t, 100, p.MaxTokens)
	assert.Empty(t, p.System)
	require.Len(t, p.Messages, 2)
	assert.Equal(t, "assistant", string(p.Messages[1].Role))
}
