package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/contentflow/graph"
	"github.com/dshills/contentflow/graph/cache"
	"github.com/dshills/contentflow/pipeline/layout"
	"github.com/dshills/contentflow/pipeline/review"
)

// Cache purposes. Handles are keyed "{purpose}-{thread}".
const (
	PurposeEditorialContext = "editorial-context"
	PurposeReviewTopics     = "review-topics"
)

// stages holds the collaborators shared by the built-in stage functions.
type stages struct {
	deps   Deps
	gate   *review.Gate
	logger *zap.Logger
}

type result = graph.NodeResult[State]

func (st *stages) log(ctx context.Context, s State) *zap.Logger {
	return st.logger.With(zap.String("thread_id", threadID(ctx, s)), zap.String("stage", graph.StageName(ctx)))
}

// tier resolves the execution tier of stage for the thread's revision count.
func (st *stages) tier(ctx context.Context, s State, stage string) string {
	res := st.deps.Router.Resolve(stage, s.RevisionCount)
	st.log(ctx, s).Debug("resolved tier", zap.String("tier", res.Tier), zap.String("reason", res.Reason))
	return res.Tier
}

// cached acquires a context cache handle on retries. It returns "" whenever
// caching is unavailable or not worthwhile.
func (st *stages) cached(ctx context.Context, s State, purpose, tier, text, instruction string) string {
	if st.deps.Cache == nil || s.RevisionCount == 0 || text == "" {
		return ""
	}
	handle, ok := st.deps.Cache.GetOrCreate(ctx, threadID(ctx, s), purpose, cache.Request{
		Model:             st.deps.TierModels[tier],
		Text:              text,
		SystemInstruction: instruction,
	})
	if !ok {
		return ""
	}
	return handle
}

// collaboratorFailure turns a collaborator error into stage output. A
// transient error that outlived its retry policy is returned as a stage
// error so a later Run retries the stage from its checkpoint; anything else
// is recorded in the error log with the given fallback delta.
func collaboratorFailure(prefix string, err error, delta State) result {
	if graph.IsTransient(err) {
		return result{Err: fmt.Errorf("%s: %w", strings.ToLower(prefix), err)}
	}
	delta.ErrorLog = append(delta.ErrorLog, fmt.Sprintf("%s: %T: %v", prefix, err, err))
	return result{Delta: delta}
}

func (st *stages) curation(ctx context.Context, s State) result {
	delta := State{ThreadID: threadID(ctx, s)}

	if s.CurationInput.Mode == ModeDBSource && len(s.CuratedTopics) > 0 {
		st.log(ctx, s).Info("curation skipped, topics supplied")
		delta.Status = StatusSourcing
		return result{Delta: delta}
	}

	keyword := strings.TrimSpace(s.CurationInput.Keyword)
	if keyword == "" {
		delta.Status = StatusFailed
		delta.ErrorLog = []string{"Curation failed: no seed keyword provided in curation_input"}
		return result{Delta: delta}
	}

	topics, err := st.deps.Curator.Curate(ctx, CurateRequest{
		Keyword:  keyword,
		Category: s.CurationInput.Category,
		Tier:     st.tier(ctx, s, StageCuration),
	})
	if err != nil {
		st.log(ctx, s).Error("curation failed", zap.String("keyword", keyword), zap.Error(err))
		delta.Status = StatusFailed
		return collaboratorFailure("Curation failed", err, delta)
	}

	delta.Status = StatusSourcing
	delta.CuratedTopics = topics
	if delta.CuratedTopics == nil {
		delta.CuratedTopics = []Topic{}
	}
	return result{Delta: delta}
}

func (st *stages) designSpec(ctx context.Context, s State) result {
	fallback := DefaultDesignSpec()
	keyword := s.primaryKeyword()
	if st.deps.Designer == nil || keyword == "" {
		return result{Delta: State{DesignSpec: &fallback}}
	}

	spec, err := st.deps.Designer.Design(ctx, DesignRequest{
		Keyword:  keyword,
		Category: s.CurationInput.Category,
		Tier:     st.tier(ctx, s, StageDesignSpec),
	})
	if err != nil {
		st.log(ctx, s).Warn("design spec failed, using default", zap.Error(err))
		return result{Delta: State{
			DesignSpec: &fallback,
			ErrorLog:   []string{fmt.Sprintf("Design spec failed, using default: %v", err)},
		}}
	}
	return result{Delta: State{DesignSpec: &spec}}
}

func (st *stages) source(ctx context.Context, s State) result {
	skipped := func(reason string) result {
		return result{Delta: State{
			Status:           StatusDrafting,
			EnrichedContexts: []SourceContext{},
			ErrorLog:         []string{reason},
		}}
	}
	if len(s.CuratedTopics) == 0 {
		return skipped("Source skipped: no curated_topics")
	}
	terms := SearchTerms(s.CuratedTopics)
	if len(terms) == 0 {
		return skipped("Source skipped: no search terms from curated_topics")
	}

	contexts, calls, err := st.deps.Retriever.Retrieve(ctx, terms)
	if err != nil {
		st.log(ctx, s).Error("source retrieval failed", zap.Error(err))
		return collaboratorFailure("Source failed", err, State{
			Status:           StatusDrafting,
			EnrichedContexts: []SourceContext{},
			ToolCallsLog:     calls,
		})
	}
	if contexts == nil {
		contexts = []SourceContext{}
	}
	st.log(ctx, s).Info("fetched source contexts", zap.Int("count", len(contexts)), zap.Int("terms", len(terms)))
	return result{Delta: State{
		Status:           StatusDrafting,
		EnrichedContexts: contexts,
		ToolCallsLog:     calls,
	}}
}

func (st *stages) editorial(ctx context.Context, s State) result {
	if len(s.CuratedTopics) == 0 {
		return result{Delta: State{
			Status:   StatusFailed,
			ErrorLog: []string{"Editorial failed: no curated_topics available in state"},
		}}
	}

	keyword := s.primaryKeyword()
	if keyword == "" {
		keyword = "editorial"
	}
	trend := TrendContext(s.CuratedTopics, s.EnrichedContexts)
	tier := st.tier(ctx, s, StageEditorial)

	req := GenerateRequest{
		Keyword:         keyword,
		TrendContext:    trend,
		DesignSpec:      s.DesignSpec,
		FeedbackHistory: s.FeedbackHistory,
		RevisionCount:   s.RevisionCount,
		Tier:            tier,
		CachedContent: st.cached(ctx, s, PurposeEditorialContext, tier, trend,
			"The following is the trend context for writing the editorial."),
	}
	if len(s.FeedbackHistory) > 0 || s.AdminDecision == DecisionRevisionRequested {
		req.PreviousDraft = s.CurrentDraft
	}
	if s.AdminDecision == DecisionRevisionRequested {
		req.AdminFeedback = s.AdminFeedback
	}

	draft, err := st.deps.Generator.Generate(ctx, req)
	if err != nil {
		st.log(ctx, s).Error("editorial generation failed", zap.String("keyword", keyword), zap.Error(err))
		return collaboratorFailure("Editorial failed", err, State{Status: StatusFailed})
	}
	return result{Delta: State{CurrentDraft: withDesignSpec(draft, s.DesignSpec), Status: StatusReviewing}}
}

// withDesignSpec stores spec inside the draft so it is saved with the
// record. Drafts that do not parse are returned as is for review to fail.
func withDesignSpec(draft json.RawMessage, spec *DesignSpec) json.RawMessage {
	if spec == nil {
		return draft
	}
	l, err := layout.Parse(string(draft))
	if err != nil {
		return draft
	}
	if l.DesignSpec, err = json.Marshal(spec); err != nil {
		return draft
	}
	out, err := json.Marshal(l)
	if err != nil {
		return draft
	}
	return out
}

func (st *stages) enrich(ctx context.Context, s State) result {
	if len(s.CurrentDraft) == 0 {
		return result{Delta: State{ErrorLog: []string{"Enrich skipped: no current_draft in state"}}}
	}
	if st.deps.Enricher == nil || len(s.EnrichedContexts) == 0 {
		return result{}
	}

	draft, err := st.deps.Enricher.Enrich(ctx, s.CurrentDraft, s.EnrichedContexts)
	if err != nil {
		st.log(ctx, s).Warn("enrichment failed, keeping draft", zap.Error(err))
		return result{Delta: State{ErrorLog: []string{fmt.Sprintf("Enrich failed: %T: %v", err, err)}}}
	}
	return result{Delta: State{CurrentDraft: draft}}
}

func (st *stages) review(ctx context.Context, s State) result {
	next := s.RevisionCount + 1

	if len(s.CurrentDraft) == 0 {
		st.log(ctx, s).Error("review skipped, no draft")
		failed := review.Result{Passed: false, Criteria: []review.Criterion{}, Summary: "No draft to review", Suggestions: []string{}}
		return result{Delta: escalate(State{
			ReviewResult:    &failed,
			RevisionCount:   next,
			FeedbackHistory: []review.Result{failed},
			ErrorLog:        []string{"Review skipped: no current_draft in state"},
		}, failed.Summary)}
	}

	keyword := s.CurationInput.Keyword
	if keyword == "" {
		keyword = s.primaryKeyword()
	}
	topics, err := json.Marshal(s.CuratedTopics)
	if err != nil {
		topics = []byte("[]")
	}
	tier := st.tier(ctx, s, StageReview)
	var handle string
	if len(s.CuratedTopics) > 0 {
		handle = st.cached(ctx, s, PurposeReviewTopics, tier, string(topics),
			"The following are the curated topics. Evaluate the editorial draft against this data.")
	}

	related := s.relatedKeywords()
	st.log(ctx, s).Info("reviewing draft",
		zap.String("content_type", string(st.gate.Rubric(keyword, related).ContentType)),
		zap.Int("revision_count", s.RevisionCount))

	res, err := st.gate.Evaluate(ctx, review.Request{
		Draft:           s.CurrentDraft,
		GroundTruth:     topics,
		Keyword:         keyword,
		RelatedKeywords: related,
		RevisionCount:   s.RevisionCount,
		Tier:            tier,
		CachedContent:   handle,
	})
	if err != nil {
		st.log(ctx, s).Error("review failed", zap.Error(err))
		failed := review.Result{Passed: false, Criteria: []review.Criterion{}, Summary: "Review error: " + err.Error(), Suggestions: []string{}}
		return result{Delta: escalate(State{
			ReviewResult:    &failed,
			RevisionCount:   next,
			FeedbackHistory: []review.Result{failed},
			ErrorLog:        []string{fmt.Sprintf("Review failed: %T: %v", err, err)},
		}, failed.Summary)}
	}

	if res.Passed {
		return result{Delta: State{ReviewResult: &res, Status: StatusAwaitingApproval}}
	}
	return result{Delta: escalate(State{
		ReviewResult:    &res,
		RevisionCount:   next,
		FeedbackHistory: []review.Result{res},
	}, res.Summary)}
}

// escalate fails the thread once a failed evaluation reaches MaxRevisions.
func escalate(delta State, summary string) State {
	if delta.RevisionCount < MaxRevisions {
		return delta
	}
	delta.Status = StatusFailed
	delta.ErrorLog = append(delta.ErrorLog, fmt.Sprintf(
		"Escalation: review failed after %d attempts. Last failure: %s", delta.RevisionCount, summary))
	return delta
}

// ApprovalRequest is the interrupt payload of the approval stage.
type ApprovalRequest struct {
	ContentID     string `json:"content_id"`
	Title         string `json:"title"`
	Keyword       string `json:"keyword"`
	ReviewSummary string `json:"review_summary"`
}

func (st *stages) adminGate(ctx context.Context, s State) result {
	var head struct {
		Title string `json:"title"`
	}
	_ = json.Unmarshal(s.CurrentDraft, &head)
	summary := ""
	if s.ReviewResult != nil {
		summary = s.ReviewResult.Summary
	}

	rec, err := st.deps.Records.UpsertPending(ctx, PendingContent{
		ThreadID:      threadID(ctx, s),
		Title:         head.Title,
		Keyword:       s.CurationInput.Keyword,
		Layout:        s.CurrentDraft,
		ReviewSummary: summary,
	})
	if err != nil {
		return result{Err: fmt.Errorf("save pending content: %w", err)}
	}
	logger := st.log(ctx, s).With(zap.String("content_id", rec.ID))
	logger.Info("content saved as pending")

	value, err := graph.Interrupt(ctx, ApprovalRequest{
		ContentID:     rec.ID,
		Title:         head.Title,
		Keyword:       s.CurationInput.Keyword,
		ReviewSummary: summary,
	})
	if err != nil {
		return result{Err: err}
	}

	decision, err := DecodeDecision(value)
	if err != nil {
		return result{Err: err}
	}

	switch decision.Decision {
	case DecisionApproved:
		logger.Info("content approved")
		return result{Delta: State{
			AdminDecision:  DecisionApproved,
			CurrentDraftID: rec.ID,
			Status:         StatusAwaitingApproval,
		}}
	case DecisionRevisionRequested:
		logger.Info("revision requested", zap.String("feedback", decision.Feedback))
		return result{Delta: State{
			AdminDecision:  DecisionRevisionRequested,
			AdminFeedback:  decision.Feedback,
			CurrentDraftID: rec.ID,
			Status:         StatusDrafting,
		}}
	}

	reason := decision.Reason
	if reason == "" {
		reason = "Rejected by admin"
	}
	if err := st.deps.Records.UpdateStatus(ctx, rec.ID, RecordRejected, reason); err != nil {
		return result{Err: fmt.Errorf("reject content %s: %w", rec.ID, err)}
	}
	logger.Info("content rejected", zap.String("reason", reason))
	return result{Delta: State{
		AdminDecision:  DecisionRejected,
		AdminFeedback:  decision.Reason,
		CurrentDraftID: rec.ID,
		Status:         StatusFailed,
	}}
}

func (st *stages) publish(ctx context.Context, s State) result {
	if s.CurrentDraftID == "" {
		st.log(ctx, s).Error("publish called without a content id")
		return result{Delta: State{
			Status:   StatusFailed,
			ErrorLog: []string{"Publish failed: missing current_draft_id"},
		}}
	}
	if err := st.deps.Records.UpdateStatus(ctx, s.CurrentDraftID, RecordPublished, ""); err != nil {
		return result{Err: fmt.Errorf("publish content %s: %w", s.CurrentDraftID, err)}
	}
	st.log(ctx, s).Info("content published", zap.String("content_id", s.CurrentDraftID))
	return result{Delta: State{Status: StatusPublished}}
}
