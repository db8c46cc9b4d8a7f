package pipeline

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// nameStopwords are capitalised words that are never names.
var nameStopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true,
	"style": true, "fashion": true, "effect": true, "collection": true,
	"trend": true, "revival": true, "airport": true,
}

// SearchTerms derives retrieval terms from curated topics: every keyword,
// related keyword and celebrity name, each followed by the capitalised words
// it contains ("Jennie Effect" also yields "Jennie"). Duplicates are dropped,
// first occurrence wins.
func SearchTerms(topics []Topic) []string {
	var terms []string
	for _, t := range topics {
		if t.Keyword != "" {
			terms = append(terms, t.Keyword)
		}
		for _, rk := range t.RelatedKeywords {
			if rk != "" {
				terms = append(terms, rk)
			}
		}
		for _, c := range t.Celebrities {
			if c.Name != "" {
				terms = append(terms, c.Name)
			}
		}
	}

	seen := make(map[string]bool)
	out := make([]string, 0, len(terms))
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, term := range terms {
		add(term)
		for _, w := range strings.Fields(strings.ReplaceAll(term, "'s", "")) {
			first, _ := utf8.DecodeRuneInString(w)
			if utf8.RuneCountInString(w) >= 3 && unicode.IsUpper(first) && !nameStopwords[strings.ToLower(w)] {
				add(w)
			}
		}
	}
	return out
}

// TrendContext renders curated topics and source material as the prompt
// context of the content generator.
func TrendContext(topics []Topic, contexts []SourceContext) string {
	var backgrounds, keywords []string
	for _, t := range topics {
		if t.TrendBackground != "" {
			backgrounds = append(backgrounds, t.TrendBackground)
		}
		if t.Keyword != "" {
			keywords = append(keywords, t.Keyword)
		}
		for _, rk := range t.RelatedKeywords {
			if rk != "" {
				keywords = append(keywords, rk)
			}
		}
	}

	var b strings.Builder
	b.WriteString(strings.Join(backgrounds, "\n"))
	if len(keywords) > 0 {
		b.WriteString("\nKeywords: " + strings.Join(keywords, ", "))
	}
	if len(contexts) == 0 {
		return b.String()
	}

	b.WriteString("\n\n--- Source material (posts and products) ---\n")
	for i, c := range contexts {
		if i == 10 {
			break
		}
		artist := c.ArtistName
		if artist == "" {
			artist = "unknown"
		}
		fmt.Fprintf(&b, "\nArtist: %s (%s), image: %s", artist, c.GroupName, c.ImageURL)
		for j, sol := range c.Solutions {
			if j == 3 {
				break
			}
			if sol.Title == "" {
				continue
			}
			b.WriteString("\n  - Product: " + sol.Title)
			if len(sol.Keywords) > 0 {
				kws := sol.Keywords
				if len(kws) > 5 {
					kws = kws[:5]
				}
				b.WriteString(" (keywords: " + strings.Join(kws, ", ") + ")")
			}
		}
	}
	b.WriteString("\n\nUse the source material above. Mention the real artists and products by name.")
	return b.String()
}
