// Package openai provides a model.ChatModel backed by the OpenAI chat
// completions API.
package openai

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/dshills/contentflow/graph/model"
)

// DefaultModel is used when NewChatModel gets an empty model name.
const DefaultModel = "gpt-4o-mini"

// ChatModel implements model.ChatModel for OpenAI.
//
// SDK-level retries are disabled: callers retry through graph.Retry, which
// sees rate limits and server errors as transient.
type ChatModel struct {
	modelName string
	client    completionClient
}

type completionClient interface {
	New(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) (*sdk.ChatCompletion, error)
}

// NewChatModel creates an OpenAI ChatModel. Extra request options (base
// URL, HTTP client) are passed to the SDK.
func NewChatModel(apiKey, modelName string, opts ...option.RequestOption) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)
	client := sdk.NewClient(opts...)
	return &ChatModel{modelName: modelName, client: &client.Chat.Completions}
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, req model.Request) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	completion, err := m.client.New(ctx, buildParams(m.modelName, req))
	if err != nil {
		return model.ChatOut{}, classify(err)
	}
	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return model.ChatOut{}, model.ErrEmptyResponse
	}

	return model.ChatOut{
		Text: completion.Choices[0].Message.Content,
		Usage: model.Usage{
			Provider:         "openai",
			Model:            m.modelName,
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
			CachedTokens:     int(completion.Usage.PromptTokensDetails.CachedTokens),
		},
	}, nil
}

func buildParams(modelName string, req model.Request) sdk.ChatCompletionNewParams {
	messages := make([]sdk.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case model.RoleSystem:
			messages = append(messages, sdk.SystemMessage(msg.Content))
		case model.RoleAssistant:
			messages = append(messages, sdk.AssistantMessage(msg.Content))
		default:
			messages = append(messages, sdk.UserMessage(msg.Content))
		}
	}

	params := sdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(modelName),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = sdk.Int(int64(req.MaxTokens))
	}
	if req.JSON {
		params.ResponseFormat = sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: sdk.Ptr(shared.NewResponseFormatJSONObjectParam()),
		}
	}
	return params
}

func classify(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return model.ClassifyStatus(apiErr.StatusCode, fmt.Errorf("openai: %w", err))
	}
	return model.ClassifyStatus(0, fmt.Errorf("openai: %w", err))
}
