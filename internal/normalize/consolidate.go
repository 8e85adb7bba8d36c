package normalize

import (
	"fmt"
	"strings"

	"offerdesk/internal"
	"offerdesk/internal/util"
)

// Consolidate groups the offers extracted from one uploaded file. A single
// offer is returned as is. Several offers become sub-offers of a parent
// that carries the first offer's metadata and content plus the union of
// all product tables, renumbered from 1.
func Consolidate(offers []internal.Offer) *internal.Offer {
	switch len(offers) {
	case 0:
		return nil
	case 1:
		single := offers[0]
		return &single
	}

	parent := internal.Offer{
		Metadata: offers[0].Metadata,
		Content:  offers[0].Content,
	}
	parent.Content.TechnicalDetailsTable = append([]internal.TechnicalDetail(nil), offers[0].Content.TechnicalDetailsTable...)

	products := []internal.Product{}
	for _, o := range offers {
		for _, p := range o.Content.Products {
			p.ItemNumber = len(products) + 1
			products = append(products, p)
		}
	}
	parent.Content.Products = products
	parent.SubOffers = append([]internal.Offer(nil), offers...)
	return &parent
}

// OfferKey returns a stable identifier for the offer at index i of a batch.
func OfferKey(offer internal.Offer, i int) string {
	if ref := strings.TrimSpace(offer.Metadata.OfferReference); ref != "" {
		return fmt.Sprintf("offer-%s-%d", ref, i)
	}
	if slug := util.Slugify(offer.Content.Title, "-", 50); slug != "" {
		return fmt.Sprintf("offer-%s-%d", slug, i)
	}
	return fmt.Sprintf("offer-%d", i)
}
