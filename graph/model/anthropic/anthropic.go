// Package anthropic provides a model.ChatModel backed by the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dshills/contentflow/graph/model"
)

// DefaultModel is used when NewChatModel gets an empty model name.
const DefaultModel = "claude-3-5-sonnet-latest"

// DefaultMaxTokens is sent when a request leaves MaxTokens at zero; the
// Messages API requires it.
const DefaultMaxTokens = 4096

// ChatModel implements model.ChatModel for Anthropic.
type ChatModel struct {
	modelName string
	client    messageClient
}

type messageClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// NewChatModel creates an Anthropic ChatModel. Extra request options are
// passed to the SDK.
func NewChatModel(apiKey, modelName string, opts ...option.RequestOption) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)
	client := sdk.NewClient(opts...)
	return &ChatModel{modelName: modelName, client: &client.Messages}
}

// Chat implements model.ChatModel. System messages become the system
// prompt; JSON requests get an explicit instruction since the API has no
// JSON mode.
func (m *ChatModel) Chat(ctx context.Context, req model.Request) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	message, err := m.client.New(ctx, buildParams(m.modelName, req))
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) {
			return model.ChatOut{}, model.ClassifyStatus(apiErr.StatusCode, fmt.Errorf("anthropic: %w", err))
		}
		return model.ChatOut{}, model.ClassifyStatus(0, fmt.Errorf("anthropic: %w", err))
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return model.ChatOut{}, model.ErrEmptyResponse
	}

	in, out := int(message.Usage.InputTokens), int(message.Usage.OutputTokens)
	return model.ChatOut{
		Text: text.String(),
		Usage: model.Usage{
			Provider:         "anthropic",
			Model:            m.modelName,
			PromptTokens:     in,
			CompletionTokens: out,
			TotalTokens:      in + out,
			CachedTokens:     int(message.Usage.CacheReadInputTokens),
		},
	}, nil
}

func buildParams(modelName string, req model.Request) sdk.MessageNewParams {
	system, rest := model.SplitSystem(req.Messages)
	if req.JSON {
		system = strings.TrimSpace(system + "\n\nRespond with a single JSON object and nothing else.")
	}

	messages := make([]sdk.MessageParam, 0, len(rest))
	for _, msg := range rest {
		if msg.Role == model.RoleAssistant {
			messages = append(messages, sdk.NewAssistantMessage(sdk.NewTextBlock(msg.Content)))
			continue
		}
		messages = append(messages, sdk.NewUserMessage(sdk.NewTextBlock(msg.Content)))
	}

	maxTokens := int64(DefaultMaxTokens)
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(modelName),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	return params
}
