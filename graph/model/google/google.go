// Package google provides a model.ChatModel backed by Google Gemini.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/dshills/contentflow/graph/model"
)

// DefaultModel is used when an empty model name is given.
const DefaultModel = "gemini-1.5-flash"

// ChatModel implements model.ChatModel for Gemini.
//
// Requests carrying a CachedContent handle are served from that cache; the
// system instruction then comes from the cache rather than the request.
type ChatModel struct {
	modelName string
	client    generator
}

// generator runs one generation. The default implementation wraps
// *genai.Client; tests substitute a fake.
type generator interface {
	generate(ctx context.Context, modelName string, req model.Request) (*genai.GenerateContentResponse, error)
}

// NewChatModel dials Gemini with an API key.
func NewChatModel(ctx context.Context, apiKey, modelName string, opts ...option.ClientOption) (*ChatModel, *genai.Client, error) {
	if apiKey == "" {
		return nil, nil, errors.New("google API key is required")
	}
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Google client: %w", err)
	}
	return NewChatModelWithClient(client, modelName), client, nil
}

// NewChatModelWithClient wraps an existing client, typically one shared with
// cache.GeminiProvider.
func NewChatModelWithClient(client *genai.Client, modelName string) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	return &ChatModel{modelName: modelName, client: &sdkClient{client: client}}
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, req model.Request) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	resp, err := m.client.generate(ctx, m.modelName, req)
	if err != nil {
		return model.ChatOut{}, classify(err)
	}

	text := responseText(resp)
	if text == "" {
		return model.ChatOut{}, model.ErrEmptyResponse
	}
	out := model.ChatOut{Text: text, Usage: model.Usage{Provider: "google", Model: m.modelName}}
	if u := resp.UsageMetadata; u != nil {
		out.Usage.PromptTokens = int(u.PromptTokenCount)
		out.Usage.CompletionTokens = int(u.CandidatesTokenCount)
		out.Usage.TotalTokens = int(u.TotalTokenCount)
		out.Usage.CachedTokens = int(u.CachedContentTokenCount)
	}
	return out, nil
}

type sdkClient struct {
	client *genai.Client
}

func (c *sdkClient) generate(ctx context.Context, modelName string, req model.Request) (*genai.GenerateContentResponse, error) {
	system, rest := model.SplitSystem(req.Messages)

	var gm *genai.GenerativeModel
	if req.CachedContent != "" {
		gm = c.client.GenerativeModelFromCachedContent(&genai.CachedContent{Name: req.CachedContent, Model: modelName})
	} else {
		gm = c.client.GenerativeModel(modelName)
		if system != "" {
			gm.SystemInstruction = genai.NewUserContent(genai.Text(system))
		}
	}
	if req.JSON {
		gm.ResponseMIMEType = "application/json"
	}
	if req.MaxTokens > 0 {
		gm.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	return gm.GenerateContent(ctx, convertMessages(rest)...)
}

// convertMessages flattens the conversation into text parts.
func convertMessages(messages []model.Message) []genai.Part {
	parts := make([]genai.Part, 0, len(messages))
	for _, msg := range messages {
		if msg.Content != "" {
			parts = append(parts, genai.Text(msg.Content))
		}
	}
	return parts
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var texts []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			texts = append(texts, string(t))
		}
	}
	return strings.Join(texts, "")
}

func classify(err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return &SafetyFilterError{reason: blocked.Error()}
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return model.ClassifyStatus(apiErr.Code, fmt.Errorf("google: %w", err))
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"unavailable", "resource_exhausted", "deadline", "internal error"} {
		if strings.Contains(msg, marker) {
			return model.ClassifyStatus(503, fmt.Errorf("google: %w", err))
		}
	}
	return model.ClassifyStatus(0, fmt.Errorf("google: %w", err))
}

// SafetyFilterError reports a prompt or response blocked by Gemini safety
// filters. It is never transient.
type SafetyFilterError struct {
	reason string
}

// Error implements the error interface.
func (e *SafetyFilterError) Error() string {
	return "content blocked by safety filter: " + e.reason
}

// Reason returns the provider's block description.
func (e *SafetyFilterError) Reason() string {
	return e.reason
}
