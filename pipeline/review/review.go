// Package review implements the hybrid evaluation gate: a deterministic
// format check of the draft layout combined with semantic judgment under a
// rubric chosen by content type.
package review

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Severities of a criterion.
const (
	SeverityCritical = "critical"
	SeverityMajor    = "major"
	SeverityMinor    = "minor"
)

// FormatCriterion names the deterministic structural criterion.
const FormatCriterion = "format"

// Summaries produced by Aggregate.
const (
	PassSummary = "All evaluation criteria passed. Draft is ready for publication."
)

// Criterion is the outcome of one evaluation criterion.
type Criterion struct {
	Name     string `json:"criterion"`
	Passed   bool   `json:"passed"`
	Reason   string `json:"reason"`
	Severity string `json:"severity"`
}

// Result is an aggregate evaluation.
type Result struct {
	Passed      bool        `json:"passed"`
	Criteria    []Criterion `json:"criteria"`
	Summary     string      `json:"summary"`
	Suggestions []string    `json:"suggestions"`
}

// FailedNames lists the names of failing criteria in order.
func (r Result) FailedNames() []string {
	var names []string
	for _, c := range r.Criteria {
		if !c.Passed {
			names = append(names, c.Name)
		}
	}
	return names
}

// Aggregate combines criteria into a Result: Passed is the AND of every
// criterion, Suggestions are the reasons of failing criteria.
func Aggregate(criteria []Criterion) Result {
	res := Result{Passed: true, Criteria: criteria, Suggestions: []string{}}
	if res.Criteria == nil {
		res.Criteria = []Criterion{}
	}
	var failed []string
	for _, c := range criteria {
		if !c.Passed {
			res.Passed = false
			failed = append(failed, c.Name)
			res.Suggestions = append(res.Suggestions, c.Reason)
		}
	}
	if res.Passed {
		res.Summary = PassSummary
	} else {
		res.Summary = fmt.Sprintf("Review failed on: %s. Revision needed.", strings.Join(failed, ", "))
	}
	return res
}

// JudgeRequest is the input to a semantic Judge.
type JudgeRequest struct {
	// Draft is the layout JSON under review.
	Draft json.RawMessage

	// GroundTruth is the curated context the draft must agree with.
	GroundTruth json.RawMessage

	// Rubric selects and weights the criteria.
	Rubric Rubric

	// RevisionCount is the number of failed evaluations so far.
	RevisionCount int

	// Tier is the execution tier resolved for this evaluation.
	Tier string

	// CachedContent is a provider cache handle holding GroundTruth, if any.
	CachedContent string
}

// Judge scores a draft against ground truth. Returned criteria named
// "format" are discarded by the Gate.
type Judge interface {
	Judge(ctx context.Context, req JudgeRequest) ([]Criterion, error)
}

// JudgeFunc adapts a function to Judge.
type JudgeFunc func(ctx context.Context, req JudgeRequest) ([]Criterion, error)

// Judge implements Judge.
func (f JudgeFunc) Judge(ctx context.Context, req JudgeRequest) ([]Criterion, error) {
	return f(ctx, req)
}

// Gate runs both evaluation phases.
type Gate struct {
	judge      Judge
	classifier *Classifier
	rubrics    Rubrics
}

// NewGate creates a Gate. Nil classifier and rubrics use the defaults.
func NewGate(judge Judge, classifier *Classifier, rubrics Rubrics) *Gate {
	if classifier == nil {
		classifier = DefaultClassifier()
	}
	if rubrics == nil {
		rubrics = DefaultRubrics()
	}
	return &Gate{judge: judge, classifier: classifier, rubrics: rubrics}
}

// Request is the input to Gate.Evaluate.
type Request struct {
	Draft           json.RawMessage
	GroundTruth     json.RawMessage
	Keyword         string
	RelatedKeywords []string
	RevisionCount   int
	Tier            string
	CachedContent   string
}

// Rubric returns the rubric the gate would use for the keywords.
func (g *Gate) Rubric(keyword string, related []string) Rubric {
	return g.rubrics.Get(g.classifier.Classify(keyword, related))
}

// Evaluate runs the format check and the judge and aggregates both. Judge
// errors are returned unchanged; the format check never fails.
func (g *Gate) Evaluate(ctx context.Context, req Request) (Result, error) {
	format := CheckFormat(req.Draft)

	semantic, err := g.judge.Judge(ctx, JudgeRequest{
		Draft:         req.Draft,
		GroundTruth:   req.GroundTruth,
		Rubric:        g.Rubric(req.Keyword, req.RelatedKeywords),
		RevisionCount: req.RevisionCount,
		Tier:          req.Tier,
		CachedContent: req.CachedContent,
	})
	if err != nil {
		return Result{}, err
	}

	criteria := make([]Criterion, 0, len(semantic)+1)
	criteria = append(criteria, format)
	for _, c := range semantic {
		if c.Name == FormatCriterion {
			continue
		}
		criteria = append(criteria, c)
	}
	return Aggregate(criteria), nil
}
