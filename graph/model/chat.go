// Package model defines the chat-model contract used by LLM-backed pipeline
// collaborators, with adapters for OpenAI, Anthropic and Google Gemini.
//
// Adapters report token usage with every response so callers can feed it
// into the run log, and they mark rate limits, timeouts and server errors
// as transient (graph.IsTransient) so graph.Retry can back off on them.
package model

import (
	"context"
	"errors"
	"strings"

	"github.com/dshills/contentflow/graph"
)

// ChatModel is a chat-completion provider.
//
// Example:
//
//	m := openai.NewChatModel(apiKey, "gpt-4o")
//	out, err := m.Chat(ctx, model.Request{
//	    Messages: []model.Message{
//	        {Role: model.RoleSystem, Content: "You are a fashion editor."},
//	        {Role: model.RoleUser, Content: "Draft a headline about linen."},
//	    },
//	})
type ChatModel interface {
	// Chat sends one request and returns the completion.
	Chat(ctx context.Context, req Request) (ChatOut, error)
}

// Standard role constants.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single conversation turn.
type Message struct {
	Role    string
	Content string
}

// Request is the input to ChatModel.Chat.
type Request struct {
	// Messages is the conversation, system messages first.
	Messages []Message

	// JSON asks the provider for a single JSON object response where the
	// provider supports it.
	JSON bool

	// CachedContent names a provider-side context cache created by the
	// cache package. Providers without context caching ignore it.
	CachedContent string

	// MaxTokens caps the completion length. Zero uses the adapter default.
	MaxTokens int
}

// ChatOut is a completion.
type ChatOut struct {
	Text  string
	Usage Usage
}

// Usage is the token accounting of one call.
type Usage struct {
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CachedTokens     int
}

// SplitSystem separates system messages (joined by blank lines) from the
// rest of the conversation.
func SplitSystem(messages []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		rest = append(rest, msg)
	}
	return strings.Join(system, "\n\n"), rest
}

// ClassifyStatus marks err transient for HTTP statuses worth retrying
// (408, 429 and 5xx) and for deadline errors. Other errors are returned
// unchanged.
func ClassifyStatus(status int, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if status == 408 || status == 429 || status >= 500 || errors.Is(err, context.DeadlineExceeded) {
		return graph.Transient(err)
	}
	return err
}

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = errors.New("model: empty response")
