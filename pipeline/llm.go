package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/contentflow/graph"
	"github.com/dshills/contentflow/graph/model"
	"github.com/dshills/contentflow/graph/runlog"
	"github.com/dshills/contentflow/pipeline/layout"
	"github.com/dshills/contentflow/pipeline/review"
)

// Tiers maps execution tiers to chat models.
type Tiers struct {
	models   map[string]model.ChatModel
	fallback string
}

// NewTiers returns Tiers resolving unknown tiers to fallback, which must be
// present in models.
func NewTiers(fallback string, models map[string]model.ChatModel) (*Tiers, error) {
	if _, ok := models[fallback]; !ok {
		return nil, fmt.Errorf("fallback tier %q has no model", fallback)
	}
	return &Tiers{models: models, fallback: fallback}, nil
}

// SingleTier serves every tier with m.
func SingleTier(m model.ChatModel) *Tiers {
	return &Tiers{models: map[string]model.ChatModel{"": m}, fallback: ""}
}

// For returns the model of tier.
func (t *Tiers) For(tier string) model.ChatModel {
	if m, ok := t.models[tier]; ok {
		return m
	}
	return t.models[t.fallback]
}

// LLMOption configures the LLM-backed collaborators.
type LLMOption func(*llmClient)

// WithRetryPolicy overrides graph.DefaultRetryPolicy.
func WithRetryPolicy(p graph.RetryPolicy) LLMOption {
	return func(c *llmClient) { c.policy = p }
}

// WithRetryMetrics counts retries in m.
func WithRetryMetrics(m *graph.PrometheusMetrics) LLMOption {
	return func(c *llmClient) { c.metrics = m }
}

// WithLLMLogger sets the logger.
func WithLLMLogger(l *zap.Logger) LLMOption {
	return func(c *llmClient) {
		if l != nil {
			c.logger = l
		}
	}
}

// llmClient is the retrying, usage-recording call path shared by the
// LLM-backed collaborators.
type llmClient struct {
	tiers   *Tiers
	policy  graph.RetryPolicy
	metrics *graph.PrometheusMetrics
	logger  *zap.Logger
}

func newLLMClient(tiers *Tiers, opts []LLMOption) llmClient {
	c := llmClient{tiers: tiers, policy: graph.DefaultRetryPolicy(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c llmClient) chat(ctx context.Context, operation, tier string, req model.Request) (string, error) {
	m := c.tiers.For(tier)
	if m == nil {
		return "", fmt.Errorf("%s: no model for tier %q", operation, tier)
	}

	policy := c.policy
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.metrics.IncrementRetries(operation)
		c.logger.Warn("retrying model call",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}
	out, err := graph.RetryValue(ctx, policy, func(ctx context.Context) (model.ChatOut, error) {
		return m.Chat(ctx, req)
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", operation, err)
	}

	runlog.RecordUsage(ctx, runlog.Usage{
		Operation:        operation,
		Provider:         out.Usage.Provider,
		Model:            out.Usage.Model,
		PromptTokens:     out.Usage.PromptTokens,
		CompletionTokens: out.Usage.CompletionTokens,
		TotalTokens:      out.Usage.TotalTokens,
		CachedTokens:     out.Usage.CachedTokens,
	})
	if strings.TrimSpace(out.Text) == "" {
		return "", fmt.Errorf("%s: %w", operation, model.ErrEmptyResponse)
	}
	return layout.StripFences(out.Text), nil
}

// LLMCurator curates topics with a chat model.
type LLMCurator struct {
	client llmClient
}

// NewLLMCurator creates an LLMCurator.
func NewLLMCurator(tiers *Tiers, opts ...LLMOption) *LLMCurator {
	return &LLMCurator{client: newLLMClient(tiers, opts)}
}

const curatorPrompt = `You are a trend researcher for a fashion and lifestyle magazine.
Research the seed keyword and return a JSON object {"topics": [...]} where each topic has:
keyword, trend_background, related_keywords (5-10 search terms), celebrities [{name, relevance}],
brands_products [{name, relevance}], seasonality, relevance_score (0-1).
Only mention people, brands and events you are confident exist.`

// Curate implements Curator. A response without topics yields a single
// low-quality topic built from the keyword itself.
func (c *LLMCurator) Curate(ctx context.Context, req CurateRequest) ([]Topic, error) {
	user := "Seed keyword: " + req.Keyword
	if req.Category != "" {
		user += "\nCategory: " + req.Category
	}
	text, err := c.client.chat(ctx, "curation", req.Tier, model.Request{
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: curatorPrompt},
			{Role: model.RoleUser, Content: user},
		},
		JSON: true,
	})
	if err != nil {
		return nil, err
	}

	var out struct {
		Topics []Topic `json:"topics"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("curation: decode topics: %w", err)
	}
	if len(out.Topics) == 0 {
		return []Topic{FallbackTopic(req.Keyword)}, nil
	}
	return out.Topics, nil
}

// FallbackTopic builds a minimal topic from the words of keyword.
func FallbackTopic(keyword string) Topic {
	related := []string{keyword}
	for _, p := range strings.Fields(strings.ReplaceAll(keyword, ",", " ")) {
		if len([]rune(p)) >= 2 {
			related = append(related, p)
		}
	}
	return Topic{
		Keyword:         keyword,
		TrendBackground: "Keyword-based search for: " + keyword,
		RelatedKeywords: related,
		Seasonality:     "current",
		RelevanceScore:  1.0,
		LowQuality:      true,
	}
}

// LLMDesigner generates design specs with a chat model.
type LLMDesigner struct {
	client llmClient
}

// NewLLMDesigner creates an LLMDesigner.
func NewLLMDesigner(tiers *Tiers, opts ...LLMOption) *LLMDesigner {
	return &LLMDesigner{client: newLLMClient(tiers, opts)}
}

const designerPrompt = `You are an art director. Return a JSON object describing the visual theme of a magazine
editorial with fields headline_font, body_font (Google Fonts names), primary_color, accent_color (hex),
layout_density (compact|normal|spacious), mood, hero_aspect_ratio and drop_cap (bool).`

// Design implements Designer.
func (d *LLMDesigner) Design(ctx context.Context, req DesignRequest) (DesignSpec, error) {
	user := "Keyword: " + req.Keyword
	if req.Category != "" {
		user += "\nCategory: " + req.Category
	}
	text, err := d.client.chat(ctx, "design_spec", req.Tier, model.Request{
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: designerPrompt},
			{Role: model.RoleUser, Content: user},
		},
		JSON: true,
	})
	if err != nil {
		return DesignSpec{}, err
	}

	spec := DefaultDesignSpec()
	if err := json.Unmarshal([]byte(text), &spec); err != nil {
		return DesignSpec{}, fmt.Errorf("design_spec: decode: %w", err)
	}
	switch spec.LayoutDensity {
	case "compact", "normal", "spacious":
	default:
		spec.LayoutDensity = "normal"
	}
	return spec, nil
}

// LLMGenerator drafts layouts with a chat model.
type LLMGenerator struct {
	client llmClient
}

// NewLLMGenerator creates an LLMGenerator.
func NewLLMGenerator(tiers *Tiers, opts ...LLMOption) *LLMGenerator {
	return &LLMGenerator{client: newLLMClient(tiers, opts)}
}

const generatorPrompt = `You are the editor of a fashion magazine. Write the editorial as one JSON object:
{"schema_version": "1.0", "title": "...", "subtitle": "...", "keyword": "...", "blocks": [...], "metadata": []}
Each block has a "type": hero {image_url, overlay_title}, headline {text, level 1-3},
body_text {paragraphs}, image_gallery {images [{url, alt, caption}], layout_style grid|carousel|masonry},
pull_quote {quote, attribution}, product_showcase {products [{name, brand, description}]},
celeb_feature {celebs [{name, description}]}, divider {style line|space|ornament},
hashtag_bar {hashtags}, credits {entries [{role, name}]}.
Include at least one body_text block. Only mention people, brands and products present in the context.`

// Generate implements Generator. An unparseable response degrades to the
// default template so the review gate judges it rather than the stage
// failing.
func (g *LLMGenerator) Generate(ctx context.Context, req GenerateRequest) (json.RawMessage, error) {
	text, err := g.client.chat(ctx, "editorial", req.Tier, model.Request{
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: generatorPrompt},
			{Role: model.RoleUser, Content: generatorInput(req)},
		},
		JSON:          true,
		CachedContent: req.CachedContent,
	})
	if err != nil {
		return nil, err
	}

	l, err := layout.Parse(text)
	if err != nil {
		g.client.logger.Warn("layout parse failed, using default template", zap.Error(err))
		l = layout.DefaultTemplate(req.Keyword, req.Keyword)
	}
	if l.Keyword == "" {
		l.Keyword = req.Keyword
	}
	if l.CreatedAt == "" {
		l.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	return json.Marshal(l)
}

func generatorInput(req GenerateRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Keyword: %s\n", req.Keyword)
	if req.DesignSpec != nil {
		fmt.Fprintf(&b, "Mood: %s, layout density: %s\n", req.DesignSpec.Mood, req.DesignSpec.LayoutDensity)
	}
	if req.CachedContent == "" {
		b.WriteString("\nTrend context:\n" + req.TrendContext + "\n")
	}
	if len(req.FeedbackHistory) > 0 {
		fmt.Fprintf(&b, "\nThis is revision %d. Address every piece of earlier feedback, oldest first:\n", req.RevisionCount)
		for i, fb := range req.FeedbackHistory {
			fmt.Fprintf(&b, "%d. %s\n", i+1, fb.Summary)
			for _, s := range fb.Suggestions {
				fmt.Fprintf(&b, "   - %s\n", s)
			}
		}
	}
	if req.AdminFeedback != "" {
		b.WriteString("\nEditor-in-chief feedback: " + req.AdminFeedback + "\n")
	}
	if len(req.PreviousDraft) > 0 {
		b.WriteString("\nPrevious draft:\n" + string(req.PreviousDraft) + "\n")
	}
	return b.String()
}

// LLMJudge scores drafts with a chat model.
type LLMJudge struct {
	client llmClient
}

// NewLLMJudge creates an LLMJudge.
func NewLLMJudge(tiers *Tiers, opts ...LLMOption) *LLMJudge {
	return &LLMJudge{client: newLLMClient(tiers, opts)}
}

var errNoCriteria = errors.New("judge returned no criteria")

// Judge implements review.Judge.
func (j *LLMJudge) Judge(ctx context.Context, req review.JudgeRequest) ([]review.Criterion, error) {
	system := "You are a strict magazine fact checker and editor. Compare the draft against the curated data.\n" +
		req.Rubric.Instructions() +
		`Return a JSON object {"criteria": [{"criterion": name, "passed": bool, "reason": "...", "severity": "critical|major|minor"}]}.`

	user := "Draft:\n" + string(req.Draft)
	if req.CachedContent == "" {
		user = "Curated data:\n" + string(req.GroundTruth) + "\n\n" + user
	}
	text, err := j.client.chat(ctx, "review", req.Tier, model.Request{
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: system},
			{Role: model.RoleUser, Content: user},
		},
		JSON:          true,
		CachedContent: req.CachedContent,
	})
	if err != nil {
		return nil, err
	}

	var out struct {
		Criteria []review.Criterion `json:"criteria"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		if arrErr := json.Unmarshal([]byte(text), &out.Criteria); arrErr != nil {
			return nil, fmt.Errorf("review: decode criteria: %w", err)
		}
	}
	if len(out.Criteria) == 0 {
		return nil, fmt.Errorf("review: %w", errNoCriteria)
	}
	for i := range out.Criteria {
		if out.Criteria[i].Severity == "" {
			out.Criteria[i].Severity = review.SeverityMajor
		}
	}
	return out.Criteria, nil
}
