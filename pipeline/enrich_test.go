package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/contentflow/pipeline/layout"
)

func TestSourceEnricher(t *testing.T) {
	draft := layout.DefaultTemplate("linen", "Linen Season")
	draft.Blocks = append(draft.Blocks, layout.ImageGallery{Images: []layout.Image{}, LayoutStyle: "grid"})

	contexts := []SourceContext{
		{PostID: "p1", ArtistName: "Jennie", GroupName: "BLACKPINK", ImageURL: "https://img/1.jpg", ViewCount: 5,
			Solutions: []Solution{{ID: "s1", Title: "Linen Shirt", Brand: "COS"}}},
		{PostID: "p2", ArtistName: "Lisa", ImageURL: "https://img/2.jpg", ViewCount: 50,
			Solutions: []Solution{{Title: "Linen Shirt"}, {Title: "Raffia Bag"}}},
		{PostID: "p3", ArtistName: "jennie", ImageURL: "https://img/3.jpg", ViewCount: 1},
	}

	out, err := SourceEnricher{}.Enrich(context.Background(), mustJSON(draft), contexts)
	require.NoError(t, err)
	l, err := layout.Parse(string(out))
	require.NoError(t, err)

	hero := l.Blocks[0].(layout.Hero)
	assert.Equal(t, "https://img/2.jpg", hero.ImageURL, "most viewed image")

	gallery := l.Blocks[len(l.Blocks)-1].(layout.ImageGallery)
	require.Len(t, gallery.Images, 2)
	assert.Equal(t, "https://img/1.jpg", gallery.Images[0].URL)
	assert.Equal(t, "Jennie (BLACKPINK)", gallery.Images[0].Caption)
	assert.Equal(t, "Jennie fashion", gallery.Images[0].Alt)

	products := l.Blocks[4].(layout.ProductShowcase).Products
	require.Len(t, products, 2)
	assert.Equal(t, layout.Product{ProductID: "s1", Name: "Linen Shirt", Brand: "COS"}, products[0])
	assert.Equal(t, "Raffia Bag", products[1].Name)

	celebs := l.Blocks[5].(layout.CelebFeature).Celebs
	require.Len(t, celebs, 2, "artists are deduplicated case-insensitively")
	assert.Equal(t, "BLACKPINK member", celebs[0].Description)
	assert.Equal(t, "Artist", celebs[1].Description)
}

func TestSourceEnricher_NoSources(t *testing.T) {
	draft := layout.DefaultTemplate("linen", "Linen Season")
	out, err := SourceEnricher{}.Enrich(context.Background(), mustJSON(draft), nil)
	require.NoError(t, err)

	l, err := layout.Parse(string(out))
	require.NoError(t, err)
	assert.Empty(t, l.Blocks[0].(layout.Hero).ImageURL)
	assert.Empty(t, l.Blocks[4].(layout.ProductShowcase).Products)
}

func TestSourceEnricher_InvalidDraft(t *testing.T) {
	_, err := SourceEnricher{}.Enrich(context.Background(), []byte(`{"title":`), nil)
	assert.Error(t, err)
}
