package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dshills/contentflow/graph/tool"
	"github.com/dshills/contentflow/pipeline/review"
)

// CurateRequest is the input to a Curator.
type CurateRequest struct {
	Keyword  string
	Category string
	Tier     string
}

// Curator researches a seed keyword into curated topics.
type Curator interface {
	Curate(ctx context.Context, req CurateRequest) ([]Topic, error)
}

// DesignRequest is the input to a Designer.
type DesignRequest struct {
	Keyword  string
	Category string
	Tier     string
}

// Designer produces the visual theme of a piece.
type Designer interface {
	Design(ctx context.Context, req DesignRequest) (DesignSpec, error)
}

// Retriever is the context retrieval service. It returns the source material
// matching terms and the record of every tool call made to find it.
type Retriever interface {
	Retrieve(ctx context.Context, terms []string) ([]SourceContext, []tool.Call, error)
}

// GenerateRequest is the input to a Generator.
type GenerateRequest struct {
	Keyword      string
	TrendContext string
	DesignSpec   *DesignSpec

	// FeedbackHistory holds every failed evaluation, oldest first.
	FeedbackHistory []review.Result

	// PreviousDraft is the draft being revised, if any.
	PreviousDraft json.RawMessage

	// AdminFeedback is the reviewer's note on a requested revision.
	AdminFeedback string

	RevisionCount int
	Tier          string

	// CachedContent is a provider cache handle holding TrendContext.
	CachedContent string
}

// Generator is the content generation service. It returns a layout draft as
// JSON.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (json.RawMessage, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req GenerateRequest) (json.RawMessage, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, req GenerateRequest) (json.RawMessage, error) {
	return f(ctx, req)
}

// Enricher injects source material (images, products, people) into a draft.
type Enricher interface {
	Enrich(ctx context.Context, draft json.RawMessage, contexts []SourceContext) (json.RawMessage, error)
}

// RecordStatus is the lifecycle of a durable content record.
type RecordStatus string

const (
	RecordPending   RecordStatus = "pending"
	RecordRejected  RecordStatus = "rejected"
	RecordPublished RecordStatus = "published"
)

// ErrRecordNotFound is returned for unknown content ids or threads.
var ErrRecordNotFound = errors.New("content record not found")

// PendingContent is the record written before human approval.
type PendingContent struct {
	ThreadID      string
	Title         string
	Keyword       string
	Layout        json.RawMessage
	ReviewSummary string
}

// Record is a durable content record.
type Record struct {
	ID              string          `json:"id"`
	ThreadID        string          `json:"thread_id"`
	Status          RecordStatus    `json:"status"`
	Title           string          `json:"title"`
	Keyword         string          `json:"keyword"`
	Layout          json.RawMessage `json:"layout_json,omitempty"`
	ReviewSummary   string          `json:"review_summary,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	PublishedAt     *time.Time      `json:"published_at,omitempty"`
}

// Records is the durable record service, separate from the engine's
// checkpoints.
//
// UpsertPending is keyed by thread id and must be idempotent: the approval
// stage calls it again every time a suspended thread is re-run.
type Records interface {
	UpsertPending(ctx context.Context, content PendingContent) (Record, error)
	UpdateStatus(ctx context.Context, id string, status RecordStatus, reason string) error
	Get(ctx context.Context, id string) (Record, error)
	ByThread(ctx context.Context, threadID string) (Record, error)
}
