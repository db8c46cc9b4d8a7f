// Package pipeline implements the editorial content pipeline on top of the
// graph engine: curation, design, sourcing, drafting, enrichment, hybrid
// review with a bounded revision loop, human approval and publishing.
package pipeline

import (
	"context"
	"encoding/json"

	"github.com/dshills/contentflow/graph"
	"github.com/dshills/contentflow/graph/tool"
	"github.com/dshills/contentflow/pipeline/review"
)

// Status is the lifecycle stage of a thread.
type Status string

const (
	StatusCurating         Status = "curating"
	StatusSourcing         Status = "sourcing"
	StatusDrafting         Status = "drafting"
	StatusReviewing        Status = "reviewing"
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusPublished        Status = "published"
	StatusFailed           Status = "failed"
)

// Terminal reports whether no further stage may run in this status.
func (s Status) Terminal() bool {
	return s == StatusFailed || s == StatusPublished
}

// Stage names.
const (
	StageCuration   = "curation"
	StageDesignSpec = "design_spec"
	StageSource     = "source"
	StageEditorial  = "editorial"
	StageEnrich     = "enrich"
	StageReview     = "review"
	StageAdminGate  = "admin_gate"
	StagePublish    = "publish"
)

// Stages lists every stage in pipeline order.
var Stages = []string{
	StageCuration, StageDesignSpec, StageSource, StageEditorial,
	StageEnrich, StageReview, StageAdminGate, StagePublish,
}

// ModeDBSource marks a thread whose curated topics were supplied up front;
// the curation stage then skips the curator.
const ModeDBSource = "db_source"

// CurationInput seeds a thread.
type CurationInput struct {
	Keyword  string `json:"keyword"`
	Category string `json:"category,omitempty"`
	Mode     string `json:"mode,omitempty"`
}

// Reference is a celebrity or brand mentioned by a topic.
type Reference struct {
	Name      string `json:"name"`
	Relevance string `json:"relevance,omitempty"`
}

// Topic is one curated trend topic.
type Topic struct {
	Keyword         string      `json:"keyword"`
	TrendBackground string      `json:"trend_background,omitempty"`
	RelatedKeywords []string    `json:"related_keywords,omitempty"`
	Celebrities     []Reference `json:"celebrities,omitempty"`
	BrandsProducts  []Reference `json:"brands_products,omitempty"`
	Seasonality     string      `json:"seasonality,omitempty"`
	RelevanceScore  float64     `json:"relevance_score,omitempty"`
	LowQuality      bool        `json:"low_quality,omitempty"`
}

// DesignSpec is the visual theme of a piece.
type DesignSpec struct {
	HeadlineFont    string `json:"headline_font"`
	BodyFont        string `json:"body_font"`
	PrimaryColor    string `json:"primary_color"`
	AccentColor     string `json:"accent_color"`
	LayoutDensity   string `json:"layout_density"`
	Mood            string `json:"mood"`
	HeroAspectRatio string `json:"hero_aspect_ratio"`
	DropCap         bool   `json:"drop_cap"`
}

// DefaultDesignSpec is used when no designer is configured or it fails.
func DefaultDesignSpec() DesignSpec {
	return DesignSpec{
		HeadlineFont:    "Georgia",
		BodyFont:        "Pretendard",
		PrimaryColor:    "#1a1a2e",
		AccentColor:     "#e94560",
		LayoutDensity:   "normal",
		Mood:            "elegant editorial",
		HeroAspectRatio: "16/9",
		DropCap:         true,
	}
}

// Solution is a product linked to a source post.
type Solution struct {
	ID           string   `json:"solution_id,omitempty"`
	Title        string   `json:"title"`
	Brand        string   `json:"brand,omitempty"`
	ThumbnailURL string   `json:"thumbnail_url,omitempty"`
	OriginalURL  string   `json:"original_url,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
}

// SourceContext is one piece of retrieved source material.
type SourceContext struct {
	PostID     string     `json:"post_id"`
	ImageURL   string     `json:"image_url,omitempty"`
	ArtistName string     `json:"artist_name,omitempty"`
	GroupName  string     `json:"group_name,omitempty"`
	Context    string     `json:"context,omitempty"`
	ViewCount  int        `json:"view_count,omitempty"`
	Solutions  []Solution `json:"solutions,omitempty"`
}

// State is the shared state of one pipeline thread.
//
// Overwrite fields are replaced by any non-zero value a stage returns.
// ToolCallsLog, FeedbackHistory and ErrorLog are accumulators: stage output
// is appended, never replacing what is there. RevisionCount only grows.
type State struct {
	ThreadID         string          `json:"thread_id,omitempty"`
	CurationInput    CurationInput   `json:"curation_input"`
	CuratedTopics    []Topic         `json:"curated_topics,omitempty"`
	DesignSpec       *DesignSpec     `json:"design_spec,omitempty"`
	EnrichedContexts []SourceContext `json:"enriched_contexts,omitempty"`
	CurrentDraft     json.RawMessage `json:"current_draft,omitempty"`
	CurrentDraftID   string          `json:"current_draft_id,omitempty"`
	ReviewResult     *review.Result  `json:"review_result,omitempty"`
	RevisionCount    int             `json:"revision_count"`
	AdminDecision    string          `json:"admin_decision,omitempty"`
	AdminFeedback    string          `json:"admin_feedback,omitempty"`
	Status           Status          `json:"pipeline_status,omitempty"`

	ToolCallsLog    []tool.Call     `json:"tool_calls_log,omitempty"`
	FeedbackHistory []review.Result `json:"feedback_history,omitempty"`
	ErrorLog        []string        `json:"error_log,omitempty"`
}

// Reduce merges a stage's partial output into the thread state.
func Reduce(prev, delta State) State {
	return State{
		ThreadID:         graph.Overwrite(prev.ThreadID, delta.ThreadID),
		CurationInput:    graph.Overwrite(prev.CurationInput, delta.CurationInput),
		CuratedTopics:    replace(prev.CuratedTopics, delta.CuratedTopics),
		DesignSpec:       graph.Overwrite(prev.DesignSpec, delta.DesignSpec),
		EnrichedContexts: replace(prev.EnrichedContexts, delta.EnrichedContexts),
		CurrentDraft:     replace(prev.CurrentDraft, delta.CurrentDraft),
		CurrentDraftID:   graph.Overwrite(prev.CurrentDraftID, delta.CurrentDraftID),
		ReviewResult:     graph.Overwrite(prev.ReviewResult, delta.ReviewResult),
		RevisionCount:    graph.Max(prev.RevisionCount, delta.RevisionCount),
		AdminDecision:    graph.Overwrite(prev.AdminDecision, delta.AdminDecision),
		AdminFeedback:    graph.Overwrite(prev.AdminFeedback, delta.AdminFeedback),
		Status:           graph.Overwrite(prev.Status, delta.Status),

		ToolCallsLog:    graph.Append(prev.ToolCallsLog, delta.ToolCallsLog),
		FeedbackHistory: graph.Append(prev.FeedbackHistory, delta.FeedbackHistory),
		ErrorLog:        graph.Append(prev.ErrorLog, delta.ErrorLog),
	}
}

// replace overwrites a slice field. A nil delta keeps prev; an empty but
// non-nil delta clears it.
func replace[T any](prev, delta []T) []T {
	if delta == nil {
		return prev
	}
	return delta
}

// threadID prefers the thread recorded in state and falls back to the
// engine's context.
func threadID(ctx context.Context, s State) string {
	if s.ThreadID != "" {
		return s.ThreadID
	}
	if id := graph.ThreadID(ctx); id != "" {
		return id
	}
	return "unknown"
}

// primaryKeyword is the first topic's keyword, then the seed keyword.
func (s State) primaryKeyword() string {
	if len(s.CuratedTopics) > 0 && s.CuratedTopics[0].Keyword != "" {
		return s.CuratedTopics[0].Keyword
	}
	return s.CurationInput.Keyword
}

// relatedKeywords flattens the related keywords of every topic.
func (s State) relatedKeywords() []string {
	var out []string
	for _, t := range s.CuratedTopics {
		out = append(out, t.RelatedKeywords...)
	}
	return out
}
