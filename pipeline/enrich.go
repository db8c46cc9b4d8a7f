package pipeline

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/dshills/contentflow/pipeline/layout"
)

// SourceEnricher fills layout blocks with retrieved material: the most
// viewed image becomes the hero, further images fill the first gallery, and
// the artists and products of the sources replace celebrity and product
// blocks.
type SourceEnricher struct{}

// Enrich implements Enricher.
func (SourceEnricher) Enrich(_ context.Context, draft json.RawMessage, contexts []SourceContext) (json.RawMessage, error) {
	l, err := layout.Parse(string(draft))
	if err != nil {
		return nil, err
	}

	images := collectImages(contexts)
	celebs := collectCelebs(contexts)
	products := collectProducts(contexts)

	heroDone, galleryDone := false, false
	for i, b := range l.Blocks {
		switch blk := b.(type) {
		case layout.Hero:
			if !heroDone && len(images) > 0 {
				blk.ImageURL = images[0].URL
				l.Blocks[i] = blk
				heroDone = true
			}
		case layout.ImageGallery:
			if !galleryDone && len(images) > 1 {
				blk.Images = images[1:min(len(images), 7)]
				l.Blocks[i] = blk
				galleryDone = true
			}
		case layout.CelebFeature:
			if len(celebs) > 0 {
				blk.Celebs = celebs[:min(len(celebs), 5)]
				l.Blocks[i] = blk
			}
		case layout.ProductShowcase:
			if len(products) > 0 {
				blk.Products = products[:min(len(products), 6)]
				l.Blocks[i] = blk
			}
		}
	}
	return json.Marshal(l)
}

func collectImages(contexts []SourceContext) []layout.Image {
	sorted := append([]SourceContext(nil), contexts...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ViewCount > sorted[j].ViewCount })

	var out []layout.Image
	for _, c := range sorted {
		if c.ImageURL == "" {
			continue
		}
		img := layout.Image{URL: c.ImageURL, Alt: "fashion"}
		if c.ArtistName != "" {
			img.Alt = c.ArtistName + " fashion"
		}
		if c.ArtistName != "" || c.GroupName != "" {
			img.Caption = strings.Trim(c.ArtistName+" ("+c.GroupName+")", " ()")
		}
		out = append(out, img)
	}
	return out
}

func collectCelebs(contexts []SourceContext) []layout.Celeb {
	seen := make(map[string]bool)
	var out []layout.Celeb
	for _, c := range contexts {
		key := strings.ToLower(c.ArtistName)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		desc := "Artist"
		if c.GroupName != "" {
			desc = c.GroupName + " member"
		}
		out = append(out, layout.Celeb{Name: c.ArtistName, ImageURL: c.ImageURL, Description: desc})
	}
	return out
}

func collectProducts(contexts []SourceContext) []layout.Product {
	seen := make(map[string]bool)
	var out []layout.Product
	for _, c := range contexts {
		for _, s := range c.Solutions {
			if s.Title == "" || seen[s.Title] {
				continue
			}
			seen[s.Title] = true
			out = append(out, layout.Product{
				ProductID: s.ID,
				Name:      s.Title,
				Brand:     s.Brand,
				ImageURL:  s.ThumbnailURL,
			})
		}
	}
	return out
}
