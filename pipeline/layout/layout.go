// Package layout defines the magazine layout produced by the editorial
// pipeline: an ordered list of content blocks, each tagged on the wire by a
// "type" discriminator.
package layout

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SchemaVersion is written into every layout.
const SchemaVersion = "1.0"

// Block discriminators.
const (
	TypeHero            = "hero"
	TypeHeadline        = "headline"
	TypeBodyText        = "body_text"
	TypeImageGallery    = "image_gallery"
	TypePullQuote       = "pull_quote"
	TypeProductShowcase = "product_showcase"
	TypeCelebFeature    = "celeb_feature"
	TypeDivider         = "divider"
	TypeHashtagBar      = "hashtag_bar"
	TypeCredits         = "credits"
)

// ErrUnknownBlock is returned when decoding a block with an unrecognised
// discriminator.
var ErrUnknownBlock = errors.New("layout: unknown block type")

// Block is one content block. The set of implementations is closed.
type Block interface {
	// BlockType returns the wire discriminator.
	BlockType() string

	// validate reports structural problems with the block.
	validate() error
}

// KeyValue is a metadata pair.
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Image is a gallery item.
type Image struct {
	URL     string `json:"url"`
	Alt     string `json:"alt,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// Product is a showcase item.
type Product struct {
	ProductID   string `json:"product_id,omitempty"`
	Name        string `json:"name"`
	Brand       string `json:"brand,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	Description string `json:"description,omitempty"`
}

// Celeb is a celebrity feature item.
type Celeb struct {
	CelebID     string `json:"celeb_id,omitempty"`
	Name        string `json:"name"`
	ImageURL    string `json:"image_url,omitempty"`
	Description string `json:"description,omitempty"`
}

// Credit is one attribution.
type Credit struct {
	Role string `json:"role"`
	Name string `json:"name"`
}

// Hero is a full-width image with optional overlay text.
type Hero struct {
	ImageURL        string `json:"image_url"`
	OverlayTitle    string `json:"overlay_title,omitempty"`
	OverlaySubtitle string `json:"overlay_subtitle,omitempty"`
}

// Headline is a display headline of level 1 to 3.
type Headline struct {
	Text  string `json:"text"`
	Level int    `json:"level"`
}

// BodyText is body copy.
type BodyText struct {
	Paragraphs []string `json:"paragraphs"`
}

// ImageGallery lays out images as grid, carousel or masonry.
type ImageGallery struct {
	Images      []Image `json:"images"`
	LayoutStyle string  `json:"layout_style"`
}

// PullQuote is a highlighted quote.
type PullQuote struct {
	Quote       string `json:"quote"`
	Attribution string `json:"attribution,omitempty"`
}

// ProductShowcase lists product cards.
type ProductShowcase struct {
	Products []Product `json:"products"`
}

// CelebFeature spotlights celebrities.
type CelebFeature struct {
	Celebs []Celeb `json:"celebs"`
}

// Divider separates sections with a line, space or ornament.
type Divider struct {
	Style string `json:"style"`
}

// HashtagBar lists trending hashtags.
type HashtagBar struct {
	Hashtags []string `json:"hashtags"`
}

// Credits lists attributions.
type Credits struct {
	Entries []Credit `json:"entries"`
}

func (Hero) BlockType() string            { return TypeHero }
func (Headline) BlockType() string        { return TypeHeadline }
func (BodyText) BlockType() string        { return TypeBodyText }
func (ImageGallery) BlockType() string    { return TypeImageGallery }
func (PullQuote) BlockType() string       { return TypePullQuote }
func (ProductShowcase) BlockType() string { return TypeProductShowcase }
func (CelebFeature) BlockType() string    { return TypeCelebFeature }
func (Divider) BlockType() string         { return TypeDivider }
func (HashtagBar) BlockType() string      { return TypeHashtagBar }
func (Credits) BlockType() string         { return TypeCredits }

func (Hero) validate() error { return nil }

func (b Headline) validate() error {
	if b.Level < 1 || b.Level > 3 {
		return fmt.Errorf("headline level %d out of range 1..3", b.Level)
	}
	return nil
}

func (b BodyText) validate() error {
	if b.Paragraphs == nil {
		return errors.New("body_text paragraphs missing")
	}
	return nil
}

func (b ImageGallery) validate() error {
	switch b.LayoutStyle {
	case "grid", "carousel", "masonry":
	default:
		return fmt.Errorf("image_gallery layout_style %q invalid", b.LayoutStyle)
	}
	for i, img := range b.Images {
		if img.URL == "" {
			return fmt.Errorf("image_gallery image %d has no url", i)
		}
	}
	return nil
}

func (b PullQuote) validate() error {
	if strings.TrimSpace(b.Quote) == "" {
		return errors.New("pull_quote quote is empty")
	}
	return nil
}

func (b ProductShowcase) validate() error {
	for i, p := range b.Products {
		if p.Name == "" {
			return fmt.Errorf("product_showcase product %d has no name", i)
		}
	}
	return nil
}

func (b CelebFeature) validate() error {
	for i, c := range b.Celebs {
		if c.Name == "" {
			return fmt.Errorf("celeb_feature celeb %d has no name", i)
		}
	}
	return nil
}

func (b Divider) validate() error {
	switch b.Style {
	case "line", "space", "ornament":
		return nil
	}
	return fmt.Errorf("divider style %q invalid", b.Style)
}

func (HashtagBar) validate() error { return nil }

func (b Credits) validate() error {
	for i, c := range b.Entries {
		if c.Role == "" || c.Name == "" {
			return fmt.Errorf("credits entry %d incomplete", i)
		}
	}
	return nil
}

// Layout is a complete magazine layout.
type Layout struct {
	SchemaVersion string     `json:"schema_version"`
	Title         string     `json:"title"`
	Subtitle      string     `json:"subtitle,omitempty"`
	Keyword       string     `json:"keyword"`
	Blocks        []Block    `json:"-"`
	CreatedAt     string     `json:"created_at,omitempty"`
	Metadata      []KeyValue `json:"metadata"`

	// DesignSpec is the visual theme the piece was drafted with, kept as
	// opaque JSON so it is stored alongside the layout.
	DesignSpec json.RawMessage `json:"design_spec,omitempty"`
}

type layoutWire struct {
	SchemaVersion string            `json:"schema_version"`
	Title         string            `json:"title"`
	Subtitle      string            `json:"subtitle,omitempty"`
	Keyword       string            `json:"keyword"`
	Blocks        []json.RawMessage `json:"blocks"`
	CreatedAt     string            `json:"created_at,omitempty"`
	Metadata      []KeyValue        `json:"metadata"`
	DesignSpec    json.RawMessage   `json:"design_spec,omitempty"`
}

// MarshalJSON writes each block with its "type" discriminator.
func (l Layout) MarshalJSON() ([]byte, error) {
	w := layoutWire{
		SchemaVersion: l.SchemaVersion,
		Title:         l.Title,
		Subtitle:      l.Subtitle,
		Keyword:       l.Keyword,
		Blocks:        make([]json.RawMessage, 0, len(l.Blocks)),
		CreatedAt:     l.CreatedAt,
		Metadata:      l.Metadata,
		DesignSpec:    l.DesignSpec,
	}
	if w.SchemaVersion == "" {
		w.SchemaVersion = SchemaVersion
	}
	if w.Metadata == nil {
		w.Metadata = []KeyValue{}
	}
	for i, b := range l.Blocks {
		raw, err := MarshalBlock(b)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		w.Blocks = append(w.Blocks, raw)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes blocks by their discriminator. Missing required
// top-level fields are reported as errors.
func (l *Layout) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("layout: %w", err)
	}
	for _, field := range []string{"title", "keyword", "blocks"} {
		if _, ok := probe[field]; !ok {
			return fmt.Errorf("layout: missing required field %q", field)
		}
	}

	var w layoutWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("layout: %w", err)
	}
	blocks := make([]Block, 0, len(w.Blocks))
	for i, raw := range w.Blocks {
		b, err := UnmarshalBlock(raw)
		if err != nil {
			return fmt.Errorf("layout: block %d: %w", i, err)
		}
		blocks = append(blocks, b)
	}
	if w.SchemaVersion == "" {
		w.SchemaVersion = SchemaVersion
	}
	*l = Layout{
		SchemaVersion: w.SchemaVersion,
		Title:         w.Title,
		Subtitle:      w.Subtitle,
		Keyword:       w.Keyword,
		Blocks:        blocks,
		CreatedAt:     w.CreatedAt,
		Metadata:      w.Metadata,
		DesignSpec:    w.DesignSpec,
	}
	return nil
}

// MarshalBlock encodes b with its "type" field first.
func MarshalBlock(b Block) (json.RawMessage, error) {
	if b == nil {
		return nil, errors.New("nil block")
	}
	body, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	prefix := fmt.Sprintf(`{"type":%q`, b.BlockType())
	body = bytes.TrimSpace(body)
	if bytes.Equal(body, []byte("{}")) {
		return json.RawMessage(prefix + "}"), nil
	}
	return json.RawMessage(prefix + "," + string(body[1:])), nil
}

// UnmarshalBlock decodes one block, applying the defaults of its type.
func UnmarshalBlock(raw []byte) (Block, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}

	switch head.Type {
	case TypeHero:
		var b Hero
		if err := decodeStrict(raw, &b, "image_url"); err != nil {
			return nil, err
		}
		return b, nil
	case TypeHeadline:
		b := Headline{Level: 1}
		if err := decodeStrict(raw, &b, "text"); err != nil {
			return nil, err
		}
		return b, nil
	case TypeBodyText:
		var b BodyText
		if err := decodeStrict(raw, &b, "paragraphs"); err != nil {
			return nil, err
		}
		return b, nil
	case TypeImageGallery:
		b := ImageGallery{LayoutStyle: "grid"}
		if err := decodeStrict(raw, &b, "images"); err != nil {
			return nil, err
		}
		return b, nil
	case TypePullQuote:
		var b PullQuote
		if err := decodeStrict(raw, &b, "quote"); err != nil {
			return nil, err
		}
		return b, nil
	case TypeProductShowcase:
		var b ProductShowcase
		if err := decodeStrict(raw, &b, "products"); err != nil {
			return nil, err
		}
		return b, nil
	case TypeCelebFeature:
		var b CelebFeature
		if err := decodeStrict(raw, &b, "celebs"); err != nil {
			return nil, err
		}
		return b, nil
	case TypeDivider:
		b := Divider{Style: "line"}
		if err := decodeStrict(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	case TypeHashtagBar:
		var b HashtagBar
		if err := decodeStrict(raw, &b, "hashtags"); err != nil {
			return nil, err
		}
		return b, nil
	case TypeCredits:
		var b Credits
		if err := decodeStrict(raw, &b, "entries"); err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBlock, head.Type)
	}
}

func decodeStrict(raw []byte, dst interface{}, required ...string) error {
	if len(required) > 0 {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return err
		}
		for _, f := range required {
			if v, ok := fields[f]; !ok || string(v) == "null" {
				return fmt.Errorf("missing required field %q", f)
			}
		}
	}
	return json.Unmarshal(raw, dst)
}

// Validate checks every block's structural constraints.
func (l Layout) Validate() error {
	var errs []error
	if l.SchemaVersion != "" && l.SchemaVersion != SchemaVersion {
		errs = append(errs, fmt.Errorf("unsupported schema_version %q", l.SchemaVersion))
	}
	for i, b := range l.Blocks {
		if b == nil {
			errs = append(errs, fmt.Errorf("block %d is nil", i))
			continue
		}
		if err := b.validate(); err != nil {
			errs = append(errs, fmt.Errorf("block %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// HasBlock reports whether the layout contains a block of type typ.
func (l Layout) HasBlock(typ string) bool {
	for _, b := range l.Blocks {
		if b != nil && b.BlockType() == typ {
			return true
		}
	}
	return false
}

// DefaultTemplate is the minimal valid layout used when layout generation
// fails.
func DefaultTemplate(keyword, title string) Layout {
	return Layout{
		SchemaVersion: SchemaVersion,
		Title:         title,
		Keyword:       keyword,
		Blocks: []Block{
			Hero{OverlayTitle: title},
			Headline{Text: title, Level: 1},
			BodyText{Paragraphs: []string{}},
			Divider{Style: "line"},
			ProductShowcase{Products: []Product{}},
			CelebFeature{Celebs: []Celeb{}},
			HashtagBar{Hashtags: []string{keyword}},
			Credits{Entries: []Credit{{Role: "AI Editor", Name: "contentflow"}}},
		},
		Metadata: []KeyValue{},
	}
}

// Parse decodes a JSON layout, tolerating a surrounding Markdown code fence.
func Parse(text string) (Layout, error) {
	var l Layout
	if err := json.Unmarshal([]byte(StripFences(text)), &l); err != nil {
		return Layout{}, err
	}
	return l, nil
}

// StripFences removes a leading ```json (or ```) fence and trailing ```.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	return strings.TrimSpace(text)
}
