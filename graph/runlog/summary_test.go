package runlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	pricing := Pricing{"m": {InputPer1M: 1_000_000, OutputPer1M: 2_000_000}}

	t.Run("no logs is running", func(t *testing.T) {
		s := Summarize("t", nil, pricing)
		assert.Equal(t, SummaryRunning, s.Status)
		assert.Zero(t, s.NodeCount)
		assert.Nil(t, s.StartedAt)
	})

	logs := []NodeRunLog{
		{
			NodeName: "curation", Status: StatusSuccess, DurationMS: 10,
			StartedAt: t0, EndedAt: t0.Add(10 * time.Millisecond),
			TokenUsage:        []Usage{{Model: "m", PromptTokens: 3, CompletionTokens: 1}},
			TotalPromptTokens: 3, TotalCompletionTokens: 1, TotalTokens: 4,
		},
		{
			NodeName: "editorial", Status: StatusSuccess, DurationMS: 30,
			StartedAt: t0.Add(time.Second), EndedAt: t0.Add(2 * time.Second),
			TokenUsage:        []Usage{{Model: "unknown", PromptTokens: 10}},
			TotalPromptTokens: 10, TotalTokens: 10,
		},
	}

	t.Run("totals and completed", func(t *testing.T) {
		s := Summarize("t", logs, pricing)
		assert.Equal(t, SummaryCompleted, s.Status)
		assert.Equal(t, 2, s.NodeCount)
		assert.InDelta(t, 40, s.TotalDurationMS, 1e-9)
		assert.Equal(t, 13, s.TotalPromptTokens)
		assert.Equal(t, 1, s.TotalCompletionTokens)
		assert.Equal(t, 14, s.TotalTokens)
		assert.InDelta(t, 5.0, s.EstimatedCostUSD, 1e-9)
		require.NotNil(t, s.StartedAt)
		assert.Equal(t, t0, *s.StartedAt)
		assert.Equal(t, t0.Add(2*time.Second), *s.EndedAt)
	})

	t.Run("suspended", func(t *testing.T) {
		s := Summarize("t", append(logs, NodeRunLog{NodeName: "admin_gate", Status: StatusInterrupted}), pricing)
		assert.Equal(t, SummarySuspended, s.Status)
	})

	t.Run("any error is failed", func(t *testing.T) {
		withErr := append([]NodeRunLog{{Status: StatusError}}, logs...)
		assert.Equal(t, SummaryFailed, Summarize("t", withErr, pricing).Status)
	})
}

func TestSummarizeStore(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.Append(ctx, NodeRunLog{ThreadID: "t", Status: StatusSuccess, TotalTokens: 7}))

	s, err := SummarizeStore(ctx, st, "t", DefaultPricing())
	require.NoError(t, err)
	assert.Equal(t, 7, s.TotalTokens)

	_, err = SummarizeStore(ctx, failingStore{}, "t", nil)
	assert.Error(t, err)
}

func TestPricing_Cost(t *testing.T) {
	p := DefaultPricing()
	cost := p.Cost(Usage{Model: "gpt-4o", PromptTokens: 1_000_000, CompletionTokens: 1_000_000})
	assert.InDelta(t, 12.5, cost, 1e-9)
	assert.Zero(t, p.Cost(Usage{Model: "nope", PromptTokens: 5}))
}
