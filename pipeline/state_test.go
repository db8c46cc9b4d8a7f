package pipeline

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/dshills/contentflow/graph"
	"github.com/dshills/contentflow/graph/tool"
	"github.com/dshills/contentflow/pipeline/layout"
	"github.com/dshills/contentflow/pipeline/review"
)

func TestReduce(t *testing.T) {
	prev := State{
		ThreadID:      "t1",
		CuratedTopics: []Topic{{Keyword: "linen"}},
		CurrentDraft:  json.RawMessage(`{"title":"a"}`),
		RevisionCount: 2,
		Status:        StatusReviewing,
		ErrorLog:      []string{"first"},
		ToolCallsLog:  []tool.Call{{Tool: "search"}},
	}

	t.Run("zero delta keeps everything", func(t *testing.T) {
		assert.Equal(t, prev, Reduce(prev, State{}))
	})

	t.Run("overwrites", func(t *testing.T) {
		got := Reduce(prev, State{
			CurrentDraft:   json.RawMessage(`{"title":"b"}`),
			CurrentDraftID: "c1",
			Status:         StatusAwaitingApproval,
		})
		assert.JSONEq(t, `{"title":"b"}`, string(got.CurrentDraft))
		assert.Equal(t, "c1", got.CurrentDraftID)
		assert.Equal(t, StatusAwaitingApproval, got.Status)
		assert.Equal(t, "t1", got.ThreadID)
	})

	t.Run("empty slice clears", func(t *testing.T) {
		got := Reduce(prev, State{CuratedTopics: []Topic{}})
		assert.NotNil(t, got.CuratedTopics)
		assert.Empty(t, got.CuratedTopics)
	})

	t.Run("revision count never decreases", func(t *testing.T) {
		assert.Equal(t, 2, Reduce(prev, State{RevisionCount: 1}).RevisionCount)
		assert.Equal(t, 3, Reduce(prev, State{RevisionCount: 3}).RevisionCount)
	})

	t.Run("accumulators append", func(t *testing.T) {
		got := Reduce(prev, State{
			ErrorLog:        []string{"second"},
			FeedbackHistory: []review.Result{{Summary: "x"}},
		})
		assert.Equal(t, []string{"first", "second"}, got.ErrorLog)
		assert.Len(t, got.FeedbackHistory, 1)
		assert.Len(t, got.ToolCallsLog, 1)
	})
}

func TestReduce_AccumulatorsOnlyGrow(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := State{}
		for _, batch := range rapid.SliceOf(rapid.SliceOf(rapid.StringMatching(`[a-z]{1,5}`))).Draw(rt, "batches") {
			rev := rapid.IntRange(0, 5).Draw(rt, "rev")
			next := Reduce(s, State{ErrorLog: batch, RevisionCount: rev})
			if len(next.ErrorLog) != len(s.ErrorLog)+len(batch) {
				rt.Fatalf("error log %d, want %d", len(next.ErrorLog), len(s.ErrorLog)+len(batch))
			}
			if next.RevisionCount < s.RevisionCount {
				rt.Fatalf("revision count went from %d to %d", s.RevisionCount, next.RevisionCount)
			}
			s = next
		}
	})
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusPublished.Terminal())
	for _, s := range []Status{StatusCurating, StatusSourcing, StatusDrafting, StatusReviewing, StatusAwaitingApproval} {
		assert.False(t, s.Terminal(), s)
	}
}

func TestState_JSONFieldNames(t *testing.T) {
	data, err := json.Marshal(State{Status: StatusDrafting, RevisionCount: 1})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"pipeline_status":"drafting"`)
	assert.Contains(t, string(data), `"revision_count":1`)
}

func TestSearchTerms(t *testing.T) {
	topics := []Topic{{
		Keyword:         "Jennie Effect",
		RelatedKeywords: []string{"Lisa's Kith", "jennie effect"},
		Celebrities:     []Reference{{Name: "Jennie"}},
	}}
	assert.Equal(t, []string{"Jennie Effect", "Jennie", "Lisa's Kith", "Lisa", "Kith", "jennie effect"}, SearchTerms(topics))
	assert.Empty(t, SearchTerms(nil))
}

func TestTrendContext(t *testing.T) {
	topics := []Topic{
		{Keyword: "linen", TrendBackground: "Linen is back.", RelatedKeywords: []string{"summer"}},
		{Keyword: "raffia", TrendBackground: "Raffia bags too."},
	}

	t.Run("topics only", func(t *testing.T) {
		assert.Equal(t, "Linen is back.\nRaffia bags too.\nKeywords: linen, summer, raffia", TrendContext(topics, nil))
	})

	t.Run("with sources", func(t *testing.T) {
		contexts := []SourceContext{{
			ArtistName: "Jennie",
			GroupName:  "BLACKPINK",
			ImageURL:   "https://img/1.jpg",
			Solutions: []Solution{
				{Title: "Linen Shirt", Keywords: []string{"a", "b", "c", "d", "e", "f"}},
				{Title: ""},
			},
		}}
		got := TrendContext(topics, contexts)
		assert.Contains(t, got, "--- Source material (posts and products) ---")
		assert.Contains(t, got, "\nArtist: Jennie (BLACKPINK), image: https://img/1.jpg")
		assert.Contains(t, got, "\n  - Product: Linen Shirt (keywords: a, b, c, d, e)")
		assert.Equal(t, 1, strings.Count(got, "Product:"))
	})

	t.Run("caps sources at ten", func(t *testing.T) {
		contexts := make([]SourceContext, 12)
		got := TrendContext(topics, contexts)
		assert.Equal(t, 10, strings.Count(got, "Artist: unknown"))
	})
}

func TestDecodeDecision(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want Decision
	}{
		{"nil", nil, Decision{Decision: DecisionRejected}},
		{"string", "approved", Decision{Decision: DecisionApproved}},
		{"struct", Decision{Decision: DecisionRevisionRequested, Feedback: "shorter"}, Decision{Decision: DecisionRevisionRequested, Feedback: "shorter"}},
		{"pointer", &Decision{Decision: DecisionApproved}, Decision{Decision: DecisionApproved}},
		{"map", map[string]interface{}{"decision": "rejected", "reason": "off brand"}, Decision{Decision: DecisionRejected, Reason: "off brand"}},
		{"empty map", map[string]interface{}{}, Decision{Decision: DecisionRejected}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeDecision(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := DecodeDecision(42)
	assert.ErrorContains(t, err, "invalid approval decision")
}

func TestRouting(t *testing.T) {
	passed := &review.Result{Passed: true}
	failed := &review.Result{Passed: false}

	assert.Equal(t, StageAdminGate, RouteAfterReview(State{ReviewResult: passed, RevisionCount: 3}))
	assert.Equal(t, StageEditorial, RouteAfterReview(State{ReviewResult: failed, RevisionCount: 2}))
	assert.Equal(t, graph.End, RouteAfterReview(State{ReviewResult: failed, RevisionCount: 3}))
	assert.Equal(t, graph.End, RouteAfterReview(State{RevisionCount: 3}))

	assert.Equal(t, StagePublish, RouteAfterAdmin(State{AdminDecision: DecisionApproved}))
	assert.Equal(t, StageEditorial, RouteAfterAdmin(State{AdminDecision: DecisionRevisionRequested}))
	assert.Equal(t, graph.End, RouteAfterAdmin(State{AdminDecision: DecisionRejected}))
	assert.Equal(t, graph.End, RouteAfterAdmin(State{}))
}

func TestWithDesignSpec(t *testing.T) {
	draft := validDraft()
	assert.Equal(t, draft, withDesignSpec(draft, nil))

	garbage := json.RawMessage("not a layout")
	spec := DefaultDesignSpec()
	assert.Equal(t, garbage, withDesignSpec(garbage, &spec), "unparseable drafts are left for review")

	spec.Mood = "sun-bleached"
	out := withDesignSpec(json.RawMessage("```json\n"+string(draft)+"\n```"), &spec)
	l, err := layout.Parse(string(out))
	require.NoError(t, err)
	assert.Equal(t, "Linen Season", l.Title)
	assert.Len(t, l.Blocks, 8)

	var got DesignSpec
	require.NoError(t, json.Unmarshal(l.DesignSpec, &got))
	assert.Equal(t, spec, got)
}
