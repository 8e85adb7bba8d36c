package compose

import (
	"fmt"

	"offerdesk/internal"
	"offerdesk/internal/theme"
)

type PageKind string

const (
	PageAnnex    PageKind = "annex"
	PageProducts PageKind = "products"
	PageOffer    PageKind = "offer"
	PageBlank    PageKind = "blank"
)

// Page is one finalized logical page handed to a Rasterizer. Only the
// fields relevant to Kind are set.
type Page struct {
	Kind      PageKind
	Label     string
	Landscape bool

	// Offer is the flat offer or sub-offer shown on a PageOffer page.
	Offer internal.Offer
	// Products is the aggregate table of a PageProducts page.
	Products []internal.Product
	// Text is the free HTML block of a PageBlank page.
	Text string
	// Overlays are operator-placed images drawn on top of the page.
	Overlays []internal.ImageOverlay
}

// Plan returns the pages of an offer document in print order: leading
// annex, aggregate product table, one detail page per sub-offer (or one
// for a flat offer), custom pages, trailing annex.
func Plan(cfg theme.Config, offer internal.Offer) []Page {
	pages := []Page{}
	if cfg.LeadingAnnex() {
		pages = append(pages, Page{Kind: PageAnnex, Label: "annex"})
	}

	if len(offer.Content.Products) > 0 {
		pages = append(pages, Page{
			Kind:      PageProducts,
			Label:     "products",
			Landscape: true,
			Products:  offer.Content.Products,
		})
	}

	details := offer.SubOffers
	if len(details) == 0 {
		details = []internal.Offer{offer}
	}
	for i, detail := range details {
		pages = append(pages, Page{
			Kind:     PageOffer,
			Label:    fmt.Sprintf("offer[%d]", i),
			Offer:    detail,
			Overlays: overlaysFor(offer.ImageOverlays, i),
		})
	}

	for i, custom := range offer.CustomPages {
		if custom.Kind != internal.CustomPageBlank {
			continue
		}
		pages = append(pages, Page{
			Kind:  PageBlank,
			Label: fmt.Sprintf("custom[%d]", i),
			Text:  custom.Content,
		})
	}

	if cfg.TrailingAnnex() {
		pages = append(pages, Page{Kind: PageAnnex, Label: "annex-trailing"})
	}
	return pages
}

func overlaysFor(overlays []internal.ImageOverlay, detailIndex int) []internal.ImageOverlay {
	var out []internal.ImageOverlay
	for _, o := range overlays {
		if o.Page == detailIndex {
			out = append(out, o)
		}
	}
	return out
}
