package compose

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offerdesk/internal"
	"offerdesk/internal/merge"
	"offerdesk/internal/theme"
)

type fakeRasterizer struct {
	fail  map[string]error
	panic map[string]bool
	seen  []string
}

func (f *fakeRasterizer) Rasterize(_ context.Context, page Page) (image.Image, error) {
	f.seen = append(f.seen, page.Label)
	if f.panic[page.Label] {
		panic("boom")
	}
	if err := f.fail[page.Label]; err != nil {
		return nil, err
	}
	w, h := 40, 56
	if page.Landscape {
		w, h = 56, 40
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	return img, nil
}

func offerWithSubOffers(n int, products int) internal.Offer {
	offer := internal.Offer{Content: internal.OfferContent{Title: "parent"}}
	for i := 0; i < n; i++ {
		offer.SubOffers = append(offer.SubOffers, internal.Offer{Content: internal.OfferContent{Title: "sub"}})
	}
	for i := 0; i < products; i++ {
		offer.Content.Products = append(offer.Content.Products, internal.Product{ItemNumber: i + 1, ProductName: "p", Quantity: 1})
	}
	return offer
}

func labels(pages []Page) []string {
	out := make([]string, 0, len(pages))
	for _, p := range pages {
		out = append(out, p.Label)
	}
	return out
}

func TestPlanOrder(t *testing.T) {
	cfg := theme.Default()

	pages := Plan(cfg, offerWithSubOffers(3, 0))
	assert.Equal(t, []string{"annex", "offer[0]", "offer[1]", "offer[2]"}, labels(pages))

	offer := offerWithSubOffers(2, 4)
	offer.CustomPages = []internal.CustomPage{{ID: "c1", Kind: internal.CustomPageBlank, Content: "<p>note</p>"}}
	pages = Plan(cfg, offer)
	assert.Equal(t, []string{"annex", "products", "offer[0]", "offer[1]", "custom[0]"}, labels(pages))
	assert.True(t, pages[1].Landscape)
	assert.Len(t, pages[1].Products, 4)
	assert.Equal(t, PageBlank, pages[4].Kind)
	assert.Equal(t, "<p>note</p>", pages[4].Text)
}

func TestPlanFlatOfferAndAnnexVariants(t *testing.T) {
	cfg := theme.Default()
	cfg.Annex.Placement = theme.AnnexBoth
	pages := Plan(cfg, offerWithSubOffers(0, 1))
	assert.Equal(t, []string{"annex", "products", "offer[0]", "annex-trailing"}, labels(pages))

	cfg.Annex.Placement = theme.AnnexDisabled
	pages = Plan(cfg, offerWithSubOffers(0, 0))
	assert.Equal(t, []string{"offer[0]"}, labels(pages))
}

func TestPlanAssignsOverlaysToDetailPages(t *testing.T) {
	offer := offerWithSubOffers(2, 0)
	offer.ImageOverlays = []internal.ImageOverlay{{Src: "a", Page: 1}, {Src: "b", Page: 0}, {Src: "c", Page: 1}}
	pages := Plan(theme.Default(), offer)
	require.Len(t, pages, 3)
	assert.Len(t, pages[1].Overlays, 1)
	assert.Len(t, pages[2].Overlays, 2)
}

func TestGenerateDocumentSubOffersWithoutProducts(t *testing.T) {
	raster := &fakeRasterizer{}
	c := New(theme.Default(), raster)

	blob, err := c.GenerateDocument(context.Background(), offerWithSubOffers(3, 0))
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(blob[:4]))

	n, err := merge.PageCount(blob)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NotContains(t, raster.seen, "products")
}

func TestGenerateDocumentSkipsFailedPages(t *testing.T) {
	raster := &fakeRasterizer{
		fail:  map[string]error{"offer[1]": errors.New("capture failed")},
		panic: map[string]bool{"annex": true},
	}
	c := New(theme.Default(), raster)

	_, rendered, err := c.RenderPages(context.Background(), c.Plan(offerWithSubOffers(3, 2)))
	require.NoError(t, err)
	assert.Equal(t, 3, rendered)
	assert.Equal(t, []string{"annex", "products", "offer[0]", "offer[1]", "offer[2]"}, raster.seen)
}

func TestGenerateDocumentFailsWhenNothingRenders(t *testing.T) {
	raster := &fakeRasterizer{fail: map[string]error{
		"annex":    errors.New("x"),
		"offer[0]": errors.New("x"),
	}}
	c := New(theme.Default(), raster)

	_, err := c.GenerateDocument(context.Background(), offerWithSubOffers(0, 0))
	assert.ErrorIs(t, err, ErrNoPages)
}

func TestGenerateAllContinuesAfterFailure(t *testing.T) {
	cfg := theme.Default()
	cfg.Annex.Placement = theme.AnnexDisabled
	raster := &fakeRasterizer{fail: map[string]error{"offer[0]": errors.New("x")}}
	c := New(cfg, raster)

	docs := c.GenerateAll(context.Background(), []internal.Offer{
		offerWithSubOffers(0, 0),
		offerWithSubOffers(0, 2),
	})
	require.Len(t, docs, 2)
	assert.ErrorIs(t, docs[0].Err, ErrNoPages)
	require.NoError(t, docs[1].Err)
	assert.Equal(t, 1, docs[1].Pages)
}

func TestEmbedPageFailureLeavesNoPageBehind(t *testing.T) {
	img, err := (&fakeRasterizer{}).Rasterize(context.Background(), Page{Label: "offer[0]"})
	require.NoError(t, err)

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetError(errors.New("earlier failure"))
	require.Error(t, embedPage(pdf, "page-0", img, false))
	assert.Equal(t, 0, pdf.PageNo())
	assert.NoError(t, pdf.Error())

	require.NoError(t, embedPage(pdf, "page-1", img, true))
	assert.Equal(t, 1, pdf.PageNo())
}

func TestFitToPage(t *testing.T) {
	x, y, w, h := FitToPage(1000, 1000, 210, 297)
	assert.Equal(t, []float64{0, 0, 210, 210}, []float64{x, y, w, h})

	x, _, w, h = FitToPage(1000, 2000, 210, 297)
	assert.InDelta(t, 148.5, w, 1e-9)
	assert.Equal(t, 297.0, h)
	assert.InDelta(t, 30.75, x, 1e-9)
}
