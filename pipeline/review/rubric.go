package review

import (
	"fmt"
	"strings"
)

// ContentType selects a rubric.
type ContentType string

// Known content types. Default reuses the fashion rubric.
const (
	FashionMagazine ContentType = "fashion_magazine"
	TechBlog        ContentType = "tech_blog"
	Lifestyle       ContentType = "lifestyle"
	Default         ContentType = "default"
)

// RubricCriterion is a weighted criterion. Weights above 1 ask the judge to
// score more strictly.
type RubricCriterion struct {
	Name        string  `json:"name" yaml:"name"`
	Weight      float64 `json:"weight" yaml:"weight"`
	Description string  `json:"description" yaml:"description"`
}

// Rubric is the ordered criteria and extra instructions for one content
// type.
type Rubric struct {
	ContentType     ContentType       `json:"content_type" yaml:"content_type"`
	Criteria        []RubricCriterion `json:"criteria" yaml:"criteria"`
	PromptAdditions string            `json:"prompt_additions" yaml:"prompt_additions"`
}

// Instructions renders the rubric as judge prompt text.
func (r Rubric) Instructions() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Content type: %s\n", r.ContentType)
	b.WriteString("Evaluate each criterion below and return one result per criterion:\n")
	for i, c := range r.Criteria {
		fmt.Fprintf(&b, "%d. %s (weight %.1f): %s\n", i+1, c.Name, c.Weight, c.Description)
	}
	if r.PromptAdditions != "" {
		b.WriteString("\n")
		b.WriteString(r.PromptAdditions)
		b.WriteString("\n")
	}
	return b.String()
}

// Names returns the criterion names in order.
func (r Rubric) Names() []string {
	names := make([]string, len(r.Criteria))
	for i, c := range r.Criteria {
		names[i] = c.Name
	}
	return names
}

// Rubrics maps content types to rubrics.
type Rubrics map[ContentType]Rubric

// Get returns the rubric for ct, falling back to Default.
func (r Rubrics) Get(ct ContentType) Rubric {
	if rubric, ok := r[ct]; ok {
		return rubric
	}
	return r[Default]
}

var (
	hallucination = RubricCriterion{
		Name: "hallucination", Weight: 1.0,
		Description: "Detect brands, people, events or collections that do not appear in the curated data.",
	}
	completeness = RubricCriterion{
		Name: "content_completeness", Weight: 1.0,
	}
)

// DefaultRubrics returns the built-in rubric registry.
func DefaultRubrics() Rubrics {
	fashion := Rubric{
		ContentType: FashionMagazine,
		Criteria: []RubricCriterion{
			hallucination,
			{Name: "fact_accuracy", Weight: 1.0, Description: "Brand names, celebrity names and trend descriptions match the curated data."},
			withDescription(completeness, "Celebrities or influencers, products or brands, body paragraphs and hashtags are all present."),
			{Name: "visual_appeal", Weight: 0.8, Description: "Fashion imagery and styling descriptions are vivid and fit a magazine. Abstract or flat writing loses points."},
			{Name: "trend_relevance", Weight: 0.9, Description: "Current trends, seasonal keywords and runway references are reflected accurately."},
		},
		PromptAdditions: "Focus on the appeal of the piece as a fashion editorial and the accuracy of its trends. Pay attention to rich visual description and natural mentions of brands and celebrities.",
	}

	rubrics := Rubrics{
		FashionMagazine: fashion,
		TechBlog: {
			ContentType: TechBlog,
			Criteria: []RubricCriterion{
				hallucination,
				{Name: "fact_accuracy", Weight: 1.2, Description: "Technical terms, product names, versions and concepts are correct. Accuracy matters most for technical content."},
				withDescription(completeness, "Core concepts, practical examples and a conclusion are present."),
				{Name: "technical_depth", Weight: 0.9, Description: "Concepts are explained with real analysis rather than a surface-level list."},
			},
			PromptAdditions: "As a tech blog, focus on terminology accuracy, depth of explanation and practical insight.",
		},
		Lifestyle: {
			ContentType: Lifestyle,
			Criteria: []RubricCriterion{
				hallucination,
				{Name: "fact_accuracy", Weight: 0.8, Description: "Places, brands and trends are accurate. Lifestyle content is judged somewhat leniently."},
				withDescription(completeness, "Core topic, practical tips and inspiration are present."),
				{Name: "engagement", Weight: 0.8, Description: "The piece connects with readers' daily lives and offers practical tips or inspiration."},
			},
			PromptAdditions: "As lifestyle content, focus on reader empathy and practicality.",
		},
	}
	def := fashion
	def.ContentType = Default
	rubrics[Default] = def
	return rubrics
}

func withDescription(c RubricCriterion, desc string) RubricCriterion {
	c.Description = desc
	return c
}
