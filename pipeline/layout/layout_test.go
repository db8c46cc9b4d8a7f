package layout

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTemplate_RoundTrip(t *testing.T) {
	l := DefaultTemplate("linen", "Linen Season")
	require.NoError(t, l.Validate())

	data, err := json.Marshal(l)
	require.NoError(t, err)

	var blocks struct {
		Blocks []struct {
			Type string `json:"type"`
		} `json:"blocks"`
	}
	require.NoError(t, json.Unmarshal(data, &blocks))
	var types []string
	for _, b := range blocks.Blocks {
		types = append(types, b.Type)
	}
	assert.Equal(t, []string{
		TypeHero, TypeHeadline, TypeBodyText, TypeDivider,
		TypeProductShowcase, TypeCelebFeature, TypeHashtagBar, TypeCredits,
	}, types)

	var back Layout
	require.NoError(t, json.Unmarshal(data, &back))
	if diff := cmp.Diff(l, back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_AppliesDefaults(t *testing.T) {
	l, err := Parse("```json\n" + `{
		"title": "T", "keyword": "k",
		"blocks": [
			{"type": "headline", "text": "Hi"},
			{"type": "divider"},
			{"type": "image_gallery", "images": [{"url": "https://img/1.jpg"}]}
		]
	}` + "\n```")
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, l.SchemaVersion)
	require.Len(t, l.Blocks, 3)
	assert.Equal(t, Headline{Text: "Hi", Level: 1}, l.Blocks[0])
	assert.Equal(t, Divider{Style: "line"}, l.Blocks[1])
	assert.Equal(t, "grid", l.Blocks[2].(ImageGallery).LayoutStyle)
	assert.NoError(t, l.Validate())
	assert.False(t, l.HasBlock(TypeBodyText))
}

func TestParse_Errors(t *testing.T) {
	tests := map[string]string{
		"not json":         `{"title":`,
		"missing title":    `{"keyword":"k","blocks":[]}`,
		"missing blocks":   `{"title":"t","keyword":"k"}`,
		"unknown block":    `{"title":"t","keyword":"k","blocks":[{"type":"video"}]}`,
		"missing required": `{"title":"t","keyword":"k","blocks":[{"type":"body_text"}]}`,
		"wrong field type": `{"title":"t","keyword":"k","blocks":[{"type":"headline","text":3}]}`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(doc)
			assert.Error(t, err)
		})
	}

	_, err := Parse(`{"title":"t","keyword":"k","blocks":[{"type":"video"}]}`)
	assert.True(t, errors.Is(err, ErrUnknownBlock))
}

func TestValidate(t *testing.T) {
	l := Layout{
		SchemaVersion: "2.0",
		Blocks: []Block{
			Headline{Text: "x", Level: 4},
			ImageGallery{LayoutStyle: "stack"},
			Divider{Style: "zigzag"},
			PullQuote{},
			Credits{Entries: []Credit{{Role: "photo"}}},
			nil,
		},
	}
	err := l.Validate()
	require.Error(t, err)
	for _, want := range []string{"schema_version", "level 4", "stack", "zigzag", "quote is empty", "incomplete", "nil"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestMarshalBlock(t *testing.T) {
	raw, err := MarshalBlock(PullQuote{Quote: "less is more"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pull_quote","quote":"less is more"}`, string(raw))

	_, err = MarshalBlock(nil)
	assert.Error(t, err)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFences("```\n{\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, StripFences(`  {"a":1} `))
}
