package normalize

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"offerdesk/internal"
	"offerdesk/internal/logger"
	"offerdesk/internal/util"
)

const (
	// titlePrefix is prepended by the extraction service to generated offer titles.
	titlePrefix        = "Oferta Comerciala: "
	defaultProductName = "Produs"
	defaultUnit        = "BUC"
)

// NormalizeOffer maps one raw offer-like record onto the canonical Offer.
// It returns false when the record cannot represent an offer; label is
// included in the diagnostic so skipped records can be traced back.
func NormalizeOffer(raw gjson.Result, label string) (*internal.Offer, bool) {
	if !raw.IsObject() {
		logger.Warn("normalize: skip record context=%s reason=not an object", label)
		return nil, false
	}

	meta := raw.Get("offerMetadata")
	if !meta.IsObject() {
		logger.Warn("normalize: skip record context=%s reason=missing offerMetadata", label)
		return nil, false
	}

	// offerConent is the key the extraction service actually sends.
	content := raw.Get("offerConent")
	if !content.IsObject() {
		content = raw.Get("offerContent")
	}
	if !content.IsObject() {
		logger.Warn("normalize: skip record context=%s reason=missing offer content", label)
		return nil, false
	}

	offer := &internal.Offer{
		Metadata: normalizeMetadata(meta),
		Content:  normalizeContent(content),
	}
	return offer, true
}

func normalizeMetadata(meta gjson.Result) internal.OfferMetadata {
	return internal.OfferMetadata{
		CompanyName:        str(meta, "companyName"),
		CompanyLegalName:   str(meta, "companyLegalName"),
		RegistrationNumber: str(meta, "registrationNumber"),
		VATNumber:          str(meta, "vatNumber"),
		OfferReference:     str(meta, "offerReference"),
		OfferDate:          NormalizeDate(str(meta, "offerDate")),
		ProductWebPage:     str(meta, "productWebPage"),
		ImageURLs:          imageURLList(meta.Get("imageUrls")),
	}
}

func normalizeContent(content gjson.Result) internal.OfferContent {
	out := internal.OfferContent{
		Title:                   str(content, "title"),
		Subtitle:                str(content, "subtitle"),
		MainMessage:             str(content, "mainMessage"),
		TechnicalDetailsMessage: str(content, "technicalDetailsMessage"),
		ProductPrice:            str(content, "productPrice"),
		ConfidenceMessage:       str(content, "confidenceMessage"),
		ProductImageURL:         resolveImage(content),
		TechnicalDetailsTable:   []internal.TechnicalDetail{},
		Products:                []internal.Product{},
	}

	content.Get("technicalDetailsTable").ForEach(func(_, row gjson.Result) bool {
		if !row.IsObject() {
			return true
		}
		out.TechnicalDetailsTable = append(out.TechnicalDetailsTable, internal.TechnicalDetail{
			ItemTitle:       str(row, "itemTitle"),
			ItemDescription: str(row, "itemDescription"),
		})
		return true
	})

	products := content.Get("products")
	if products.IsArray() {
		out.Products = normalizeProducts(products)
	}
	if len(out.Products) == 0 && (out.Title != "" || out.Subtitle != "") {
		out.Products = []internal.Product{synthesizeProduct(out)}
	}
	return out
}

func normalizeProducts(products gjson.Result) []internal.Product {
	out := []internal.Product{}
	products.ForEach(func(_, row gjson.Result) bool {
		if !row.IsObject() {
			return true
		}
		p := internal.Product{
			ItemNumber:        int(number(row.Get("itemNumber"))),
			ProductName:       str(row, "productName"),
			UnitOfMeasurement: str(row, "unitOfMeasurement"),
			Quantity:          int(number(row.Get("quantity"))),
			UnitPriceNoVAT:    number(row.Get("unitPriceNoVAT")),
		}
		if p.ItemNumber <= 0 {
			p.ItemNumber = len(out) + 1
		}
		if p.UnitOfMeasurement == "" {
			p.UnitOfMeasurement = defaultUnit
		}
		if p.Quantity < 0 {
			p.Quantity = 0
		}
		if total := row.Get("totalValueNoVAT"); total.Exists() && total.Type != gjson.Null {
			p.TotalValueNoVAT = number(total)
		} else {
			p.Recompute()
		}
		out = append(out, p)
		return true
	})
	return out
}

// synthesizeProduct builds the single-row table used when the service
// returns an offer without a products array.
func synthesizeProduct(content internal.OfferContent) internal.Product {
	price, _ := util.ParseLeadingNumber(content.ProductPrice)

	name := strings.TrimSpace(strings.TrimPrefix(content.Title, titlePrefix))
	if name == "" {
		name = strings.TrimSpace(content.Subtitle)
	}
	if name == "" {
		name = defaultProductName
	}

	return internal.Product{
		ItemNumber:        1,
		ProductName:       name,
		UnitOfMeasurement: defaultUnit,
		Quantity:          1,
		UnitPriceNoVAT:    price,
		TotalValueNoVAT:   price,
	}
}

// resolveImage prefers an inline base64 payload over a remote URL.
func resolveImage(content gjson.Result) string {
	if b64 := strings.TrimSpace(str(content, "imageBase64")); b64 != "" {
		if strings.HasPrefix(b64, "data:") {
			return b64
		}
		return "data:" + sniffImageMIME(str(content, "imageFormat")) + ";base64," + b64
	}

	imageURL := content.Get("imageUrl")
	if imageURL.IsArray() {
		for _, item := range imageURL.Array() {
			if s := strings.TrimSpace(item.String()); s != "" {
				return s
			}
		}
	} else if s := strings.TrimSpace(imageURL.String()); s != "" {
		return s
	}

	return strings.TrimSpace(str(content, "productImageUrl"))
}

func sniffImageMIME(format string) string {
	f := strings.ToLower(format)
	switch {
	case strings.Contains(f, "png"):
		return "image/png"
	case strings.Contains(f, "webp"):
		return "image/webp"
	case strings.Contains(f, "gif"):
		return "image/gif"
	default:
		return "image/jpeg"
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// NormalizeDate reduces a full timestamp to YYYY-MM-DD. Anything that is
// not a timestamp, or fails to parse, is returned unchanged.
func NormalizeDate(value string) string {
	if !strings.Contains(value, "T") {
		return value
	}
	trimmed := strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.UTC().Format("2006-01-02")
		}
	}
	logger.Debug("normalize: keep unparsed date value=%q", value)
	return value
}

func imageURLList(v gjson.Result) string {
	if !v.IsArray() {
		return strings.TrimSpace(v.String())
	}
	parts := []string{}
	for _, item := range v.Array() {
		if s := strings.TrimSpace(item.String()); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

func str(obj gjson.Result, key string) string {
	v := obj.Get(key)
	if !v.Exists() || v.Type == gjson.Null || v.IsObject() || v.IsArray() {
		return ""
	}
	return v.String()
}

func number(v gjson.Result) float64 {
	switch v.Type {
	case gjson.Number:
		return v.Float()
	case gjson.String:
		f, _ := util.ParseLeadingNumber(v.Str)
		return f
	default:
		return 0
	}
}
