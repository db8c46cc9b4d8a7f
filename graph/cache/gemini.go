package cache

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
)

// cachedContentClient is the subset of *genai.Client used by GeminiProvider.
type cachedContentClient interface {
	CreateCachedContent(ctx context.Context, cc *genai.CachedContent) (*genai.CachedContent, error)
	GetCachedContent(ctx context.Context, name string) (*genai.CachedContent, error)
}

// GeminiProvider backs the Manager with Gemini cached contents.
//
// Example:
//
//	client, _ := genai.NewClient(ctx, option.WithAPIKey(key))
//	mgr := cache.NewManager(cache.NewGeminiProvider(client), nil)
type GeminiProvider struct {
	client cachedContentClient
}

// NewGeminiProvider wraps a Gemini client.
func NewGeminiProvider(client *genai.Client) *GeminiProvider {
	return &GeminiProvider{client: client}
}

// Create implements Provider.
func (g *GeminiProvider) Create(ctx context.Context, req CreateRequest) (string, error) {
	cc := &genai.CachedContent{
		Model:      req.Model,
		Contents:   []*genai.Content{genai.NewUserContent(genai.Text(req.Text))},
		Expiration: genai.ExpireTimeOrTTL{TTL: req.TTL},
	}
	if req.SystemInstruction != "" {
		cc.SystemInstruction = genai.NewUserContent(genai.Text(req.SystemInstruction))
	}
	created, err := g.client.CreateCachedContent(ctx, cc)
	if err != nil {
		return "", fmt.Errorf("gemini create cached content: %w", err)
	}
	return created.Name, nil
}

// Probe implements Provider.
func (g *GeminiProvider) Probe(ctx context.Context, name string) error {
	if _, err := g.client.GetCachedContent(ctx, name); err != nil {
		return fmt.Errorf("%w: %v", ErrExpired, err)
	}
	return nil
}
