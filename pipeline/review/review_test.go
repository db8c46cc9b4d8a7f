package review

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/dshills/contentflow/pipeline/layout"
)

func validDraft(t *testing.T) json.RawMessage {
	t.Helper()
	l := layout.DefaultTemplate("linen", "Linen Season")
	l.Blocks[2] = layout.BodyText{Paragraphs: []string{"Linen is back."}}
	data, err := json.Marshal(l)
	require.NoError(t, err)
	return data
}

func TestCheckFormat(t *testing.T) {
	assert.Equal(t, Criterion{Name: "format", Passed: true, Reason: "Schema valid, structure complete", Severity: "minor"},
		CheckFormat(validDraft(t)))

	tests := map[string]string{
		"empty":        "",
		"not json":     "{",
		"no title":     `{"keyword":"k","blocks":[]}`,
		"blank title":  `{"title":"  ","keyword":"k","blocks":[{"type":"body_text","paragraphs":[]}]}`,
		"no body text": `{"title":"T","keyword":"k","blocks":[{"type":"headline","text":"x"}]}`,
		"bad block":    `{"title":"T","keyword":"k","blocks":[{"type":"divider","style":"zigzag"},{"type":"body_text","paragraphs":[]}]}`,
	}
	for name, draft := range tests {
		t.Run(name, func(t *testing.T) {
			c := CheckFormat([]byte(draft))
			assert.Equal(t, FormatCriterion, c.Name)
			assert.False(t, c.Passed)
			assert.Equal(t, SeverityCritical, c.Severity)
			assert.NotEmpty(t, c.Reason)
		})
	}
	assert.Equal(t, "No body_text block found in layout blocks", CheckFormat([]byte(tests["no body text"])).Reason)
	assert.Equal(t, "Title is empty or whitespace-only", CheckFormat([]byte(tests["blank title"])).Reason)
}

func TestAggregate(t *testing.T) {
	pass := Aggregate([]Criterion{{Name: "format", Passed: true}, {Name: "hallucination", Passed: true}})
	assert.True(t, pass.Passed)
	assert.Equal(t, PassSummary, pass.Summary)
	assert.Empty(t, pass.Suggestions)

	fail := Aggregate([]Criterion{
		{Name: "format", Passed: true},
		{Name: "hallucination", Passed: false, Reason: "invented brand"},
		{Name: "fact_accuracy", Passed: false, Reason: "wrong season"},
	})
	assert.False(t, fail.Passed)
	assert.Equal(t, "Review failed on: hallucination, fact_accuracy. Revision needed.", fail.Summary)
	assert.Equal(t, []string{"invented brand", "wrong season"}, fail.Suggestions)
	assert.Equal(t, []string{"hallucination", "fact_accuracy"}, fail.FailedNames())
}

func TestAggregate_PassedIsConjunction(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		flags := rapid.SliceOf(rapid.Bool()).Draw(t, "passed")
		criteria := make([]Criterion, len(flags))
		want := true
		for i, p := range flags {
			criteria[i] = Criterion{Name: "c", Passed: p, Reason: "r"}
			want = want && p
		}
		res := Aggregate(criteria)
		if res.Passed != want {
			t.Fatalf("passed=%v, want %v", res.Passed, want)
		}
		if len(res.Suggestions) != len(res.FailedNames()) {
			t.Fatalf("one suggestion per failing criterion")
		}
	})
}

func TestGate_Evaluate(t *testing.T) {
	var got JudgeRequest
	judge := JudgeFunc(func(ctx context.Context, req JudgeRequest) ([]Criterion, error) {
		got = req
		return []Criterion{
			{Name: "format", Passed: true, Reason: "judge should not decide format"},
			{Name: "hallucination", Passed: true, Reason: "ok", Severity: SeverityMajor},
		}, nil
	})
	gate := NewGate(judge, nil, nil)

	t.Run("format failure fails the aggregate even when the judge passes", func(t *testing.T) {
		res, err := gate.Evaluate(context.Background(), Request{
			Draft:         json.RawMessage(`{"title":"T","keyword":"k","blocks":[]}`),
			Keyword:       "cloud startup",
			RevisionCount: 2,
			CachedContent: "cachedContents/x",
		})
		require.NoError(t, err)
		assert.False(t, res.Passed)
		require.Len(t, res.Criteria, 2)
		assert.Equal(t, "format", res.Criteria[0].Name)
		assert.False(t, res.Criteria[0].Passed)
		assert.Equal(t, "Review failed on: format. Revision needed.", res.Summary)

		assert.Equal(t, TechBlog, got.Rubric.ContentType)
		assert.Equal(t, 2, got.RevisionCount)
		assert.Equal(t, "cachedContents/x", got.CachedContent)
	})

	t.Run("all pass", func(t *testing.T) {
		res, err := gate.Evaluate(context.Background(), Request{Draft: validDraft(t), Keyword: "linen"})
		require.NoError(t, err)
		assert.True(t, res.Passed)
		assert.Equal(t, FashionMagazine, got.Rubric.ContentType)
	})

	t.Run("judge error is returned", func(t *testing.T) {
		boom := errors.New("judge unavailable")
		g := NewGate(JudgeFunc(func(context.Context, JudgeRequest) ([]Criterion, error) { return nil, boom }), nil, nil)
		_, err := g.Evaluate(context.Background(), Request{Draft: validDraft(t)})
		assert.ErrorIs(t, err, boom)
	})
}

func TestClassifier(t *testing.T) {
	c := DefaultClassifier()
	tests := []struct {
		keyword string
		related []string
		want    ContentType
	}{
		{"AI developer tools", nil, TechBlog},
		{"home decor trends", nil, Lifestyle},
		{"Runway Couture", nil, FashionMagazine},
		{"linen", []string{"summer", "Wellness retreat"}, Lifestyle},
		{"linen", []string{"minimal", "machine learning"}, TechBlog},
		{"linen", nil, FashionMagazine},
		{"", nil, FashionMagazine},
		{"tech food", nil, TechBlog},
		{"food tech", nil, TechBlog},
	}
	for _, tt := range tests {
		t.Run(tt.keyword, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.keyword, tt.related))
		})
	}

	custom := NewClassifier([]KeywordSet{
		{TechBlog, []string{"go", "chip"}},
		{Lifestyle, []string{"golf", "spa"}},
	}, Default)
	assert.Equal(t, Lifestyle, custom.Classify("golf weekend", nil), "longest entry wins")
	assert.Equal(t, Default, custom.Classify("tennis", nil))
	assert.Equal(t, TechBlog, custom.Classify("chip spa", nil), "longer keyword wins")

	tie := NewClassifier([]KeywordSet{
		{Lifestyle, []string{"chip"}},
		{TechBlog, []string{"chop"}},
	}, Default)
	assert.Equal(t, Lifestyle, tie.Classify("chop chip", nil), "equal lengths keep table order")
}

func TestRubrics(t *testing.T) {
	r := DefaultRubrics()
	for _, ct := range []ContentType{FashionMagazine, TechBlog, Lifestyle, Default} {
		rubric := r.Get(ct)
		assert.Equal(t, ct, rubric.ContentType)
		assert.Contains(t, rubric.Names(), "hallucination")
		assert.Contains(t, rubric.Names(), "content_completeness")
	}
	assert.Equal(t, r[FashionMagazine].Criteria, r[Default].Criteria)
	assert.Equal(t, Default, r.Get("podcast").ContentType)
	assert.InDelta(t, 1.2, r[TechBlog].Criteria[1].Weight, 1e-9)

	text := r[TechBlog].Instructions()
	assert.Contains(t, text, "technical_depth (weight 0.9)")
	assert.Contains(t, text, "tech blog")
}
