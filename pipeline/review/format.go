package review

import (
	"strings"

	"github.com/dshills/contentflow/pipeline/layout"
)

// CheckFormat validates draft against the layout schema and the structural
// requirements of a publishable draft: a non-blank title and at least one
// body_text block. It yields exactly one "format" criterion, critical on
// failure.
func CheckFormat(draft []byte) Criterion {
	fail := func(reason string) Criterion {
		return Criterion{Name: FormatCriterion, Passed: false, Reason: reason, Severity: SeverityCritical}
	}

	if len(strings.TrimSpace(string(draft))) == 0 {
		return fail("Schema validation failed: draft is empty")
	}
	l, err := layout.Parse(string(draft))
	if err != nil {
		return fail("Schema validation failed: " + err.Error())
	}
	if err := l.Validate(); err != nil {
		return fail("Schema validation failed: " + err.Error())
	}
	if strings.TrimSpace(l.Title) == "" {
		return fail("Title is empty or whitespace-only")
	}
	if !l.HasBlock(layout.TypeBodyText) {
		return fail("No body_text block found in layout blocks")
	}
	return Criterion{Name: FormatCriterion, Passed: true, Reason: "Schema valid, structure complete", Severity: SeverityMinor}
}
