package review

import (
	"sort"
	"strings"
)

// Classifier maps keywords to a content type by substring matching against
// a keyword table. Longer table entries are tried first, so "home decor"
// beats "trend" in "home decor trends".
type Classifier struct {
	entries  []classifierEntry
	fallback ContentType
}

type classifierEntry struct {
	keyword string
	ct      ContentType
}

// KeywordSet lists the keywords that classify as one content type.
type KeywordSet struct {
	Type     ContentType
	Keywords []string
}

// NewClassifier builds a Classifier from an ordered keyword table. Among
// entries of equal length, earlier sets and earlier keywords win. Inputs
// matching nothing classify as fallback.
func NewClassifier(table []KeywordSet, fallback ContentType) *Classifier {
	c := &Classifier{fallback: fallback}
	for _, set := range table {
		for _, kw := range set.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				c.entries = append(c.entries, classifierEntry{keyword: kw, ct: set.Type})
			}
		}
	}
	sort.SliceStable(c.entries, func(i, j int) bool {
		return len(c.entries[i].keyword) > len(c.entries[j].keyword)
	})
	return c
}

// DefaultClassifier returns the built-in classifier, falling back to
// FashionMagazine.
func DefaultClassifier() *Classifier {
	return NewClassifier([]KeywordSet{
		{TechBlog, []string{
			"ai", "tech", "developer", "coding", "programming", "software",
			"startup", "saas", "cloud", "api", "machine learning", "deep learning",
			"blockchain",
		}},
		{FashionMagazine, []string{
			"fashion", "style", "trend", "runway", "couture", "streetwear",
			"vogue", "lookbook", "outfit", "styling",
		}},
		{Lifestyle, []string{
			"wellness", "travel", "home decor", "food", "fitness",
			"mindfulness", "interior", "recipe",
		}},
	}, FashionMagazine)
}

// Classify checks the primary keyword first, then each related keyword in
// order. It is pure and deterministic.
func (c *Classifier) Classify(keyword string, related []string) ContentType {
	if ct, ok := c.match(keyword); ok {
		return ct
	}
	for _, rk := range related {
		if ct, ok := c.match(rk); ok {
			return ct
		}
	}
	return c.fallback
}

func (c *Classifier) match(s string) (ContentType, bool) {
	s = strings.ToLower(s)
	if s == "" {
		return "", false
	}
	for _, e := range c.entries {
		if strings.Contains(s, e.keyword) {
			return e.ct, true
		}
	}
	return "", false
}
