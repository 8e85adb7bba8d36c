package normalize

import (
	"fmt"

	"github.com/tidwall/gjson"

	"offerdesk/internal"
	"offerdesk/internal/logger"
)

// Shape names one of the historical webhook payload layouts.
type Shape string

const (
	ShapeUnknown Shape = ""
	// ShapeDirect is a flat array of offer records.
	ShapeDirect Shape = "direct"
	// ShapeWrapped is an array of wrappers exposing results[].data[],
	// data[] or offers[] arrays of offer records.
	ShapeWrapped Shape = "wrapped"
)

type shapeDecoder struct {
	shape  Shape
	decode func(items []gjson.Result) ([]internal.Offer, bool)
}

// decoders are tried in order; the first one that accepts the payload wins.
var decoders = []shapeDecoder{
	{shape: ShapeDirect, decode: decodeDirect},
	{shape: ShapeWrapped, decode: decodeWrapped},
}

// GetAllOffers extracts every offer from a webhook payload, in encounter order.
// Payloads that are not JSON arrays yield an empty list.
func GetAllOffers(payload []byte) []internal.Offer {
	_, offers := Decode(payload)
	return offers
}

// Decode is GetAllOffers plus the shape that matched.
func Decode(payload []byte) (Shape, []internal.Offer) {
	if !gjson.ValidBytes(payload) {
		logger.Warn("normalize: payload is not valid JSON")
		return ShapeUnknown, []internal.Offer{}
	}
	root := gjson.ParseBytes(payload)
	if !root.IsArray() {
		logger.Warn("normalize: payload is not an array type=%s", root.Type)
		return ShapeUnknown, []internal.Offer{}
	}
	items := root.Array()
	if len(items) == 0 {
		return ShapeUnknown, []internal.Offer{}
	}

	for _, d := range decoders {
		if offers, ok := d.decode(items); ok {
			logger.Debug("normalize: payload shape=%s offers=%d", d.shape, len(offers))
			return d.shape, offers
		}
	}
	logger.Warn("normalize: unrecognized payload shape items=%d", len(items))
	return ShapeUnknown, []internal.Offer{}
}

// decodeDirect accepts the payload when its first element is an offer
// record; later elements that are not offers are skipped. Failing that, a
// payload with no wrapper elements and at least one offer record is still
// direct, so a malformed leading record does not hide the rest.
func decodeDirect(items []gjson.Result) ([]internal.Offer, bool) {
	if !looksLikeOffer(items[0]) && !offersWithoutWrappers(items) {
		return nil, false
	}
	out := make([]internal.Offer, 0, len(items))
	for i, item := range items {
		offer, ok := NormalizeOffer(item, fmt.Sprintf("direct[%d]", i))
		if !ok {
			continue
		}
		out = append(out, *offer)
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

func offersWithoutWrappers(items []gjson.Result) bool {
	anyOffer := false
	for _, item := range items {
		if isWrapper(item) {
			return false
		}
		if looksLikeOffer(item) {
			anyOffer = true
		}
	}
	return anyOffer
}

func decodeWrapped(items []gjson.Result) ([]internal.Offer, bool) {
	out := []internal.Offer{}
	matched := false
	for i, wrapper := range items {
		if !wrapper.IsObject() {
			logger.Warn("normalize: skip wrapper context=wrapped[%d] reason=not an object", i)
			continue
		}

		if results := wrapper.Get("results"); results.IsArray() {
			matched = true
			for j, result := range results.Array() {
				for k, raw := range result.Get("data").Array() {
					out = appendOffer(out, raw, fmt.Sprintf("nested[item %d, result %d, offer %d]", i, j, k))
				}
			}
			continue
		}
		if data := wrapper.Get("data"); data.IsArray() {
			matched = true
			for k, raw := range data.Array() {
				out = appendOffer(out, raw, fmt.Sprintf("data[item %d, offer %d]", i, k))
			}
			continue
		}
		if offers := wrapper.Get("offers"); offers.IsArray() {
			matched = true
			for k, raw := range offers.Array() {
				out = appendOffer(out, raw, fmt.Sprintf("offers[item %d, offer %d]", i, k))
			}
		}
	}
	return out, matched
}

func appendOffer(out []internal.Offer, raw gjson.Result, label string) []internal.Offer {
	offer, ok := NormalizeOffer(raw, label)
	if !ok {
		return out
	}
	return append(out, *offer)
}

// looksLikeOffer checks a record without logging, so that a wrapper record
// is not reported as a skipped offer while the shape is still undecided.
func looksLikeOffer(raw gjson.Result) bool {
	if !raw.IsObject() || !raw.Get("offerMetadata").IsObject() {
		return false
	}
	return raw.Get("offerConent").IsObject() || raw.Get("offerContent").IsObject()
}

func isWrapper(raw gjson.Result) bool {
	if !raw.IsObject() {
		return false
	}
	return raw.Get("results").IsArray() || raw.Get("data").IsArray() || raw.Get("offers").IsArray()
}
