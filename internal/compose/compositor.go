package compose

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/jung-kurt/gofpdf"

	"offerdesk/internal"
	"offerdesk/internal/logger"
	"offerdesk/internal/theme"
)

const (
	a4WidthMM  = 210.0
	a4HeightMM = 297.0
)

// ErrNoPages is returned when not a single page of a document rendered.
var ErrNoPages = errors.New("compose: document has no renderable pages")

// Rasterizer turns one finalized page into a bitmap.
type Rasterizer interface {
	Rasterize(ctx context.Context, page Page) (image.Image, error)
}

type Compositor struct {
	cfg    theme.Config
	raster Rasterizer

	// mu serializes rasterization; rasterizers reuse scratch canvases.
	mu sync.Mutex
}

func New(cfg theme.Config, raster Rasterizer) *Compositor {
	return &Compositor{cfg: cfg, raster: raster}
}

func (c *Compositor) Config() theme.Config {
	return c.cfg
}

func (c *Compositor) Plan(offer internal.Offer) []Page {
	return Plan(c.cfg, offer)
}

// GenerateDocument renders every planned page of offer into one PDF.
// Pages that fail to rasterize are logged and left out.
func (c *Compositor) GenerateDocument(ctx context.Context, offer internal.Offer) ([]byte, error) {
	blob, _, err := c.RenderPages(ctx, c.Plan(offer))
	return blob, err
}

// RenderPages rasterizes pages in order and embeds each one on its own A4
// page. It returns the PDF and the number of pages that made it in.
func (c *Compositor) RenderPages(ctx context.Context, pages []Page) ([]byte, int, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCompression(true)

	rendered := 0
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, rendered, err
		}

		img, err := c.rasterize(ctx, page)
		if err != nil {
			logger.Warn("compose: skip page=%s index=%d err=%v", page.Label, i, err)
			continue
		}
		if err := embedPage(pdf, fmt.Sprintf("page-%d", i), img, page.Landscape); err != nil {
			logger.Warn("compose: skip page=%s index=%d err=%v", page.Label, i, err)
			continue
		}
		rendered++
	}

	if rendered == 0 {
		return nil, 0, ErrNoPages
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, rendered, fmt.Errorf("compose: write pdf: %w", err)
	}
	return buf.Bytes(), rendered, nil
}

// rasterize holds the scratch lock for the duration of one capture and
// turns a rasterizer panic into an ordinary page error.
func (c *Compositor) rasterize(ctx context.Context, page Page) (img image.Image, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rasterizer panic: %v", r)
		}
	}()

	img, err = c.raster.Rasterize(ctx, page)
	if err != nil {
		return nil, err
	}
	if img == nil || img.Bounds().Dx() == 0 || img.Bounds().Dy() == 0 {
		return nil, errors.New("empty raster")
	}
	return img, nil
}

// embedPage adds one A4 page holding img. Every failure is detected before
// the page is added, so a failed embed leaves neither a blank page nor a
// sticky error behind.
func embedPage(pdf *gofpdf.Fpdf, name string, img image.Image, landscape bool) error {
	if err := pdf.Error(); err != nil {
		pdf.ClearError()
		return fmt.Errorf("document: %w", err)
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	info := pdf.RegisterImageOptionsReader(name, opts, &buf)
	if err := pdf.Error(); err != nil {
		pdf.ClearError()
		return fmt.Errorf("register image: %w", err)
	}
	if info == nil {
		return fmt.Errorf("register image: %s not registered", name)
	}

	orientation, pageW, pageH := "P", a4WidthMM, a4HeightMM
	if landscape {
		orientation, pageW, pageH = "L", a4HeightMM, a4WidthMM
	}
	pdf.AddPageFormat(orientation, gofpdf.SizeType{Wd: a4WidthMM, Ht: a4HeightMM})

	b := img.Bounds()
	x, y, w, h := FitToPage(float64(b.Dx()), float64(b.Dy()), pageW, pageH)
	pdf.ImageOptions(name, x, y, w, h, false, opts, 0, "")
	if err := pdf.Error(); err != nil {
		pdf.ClearError()
		return fmt.Errorf("place image: %w", err)
	}
	return nil
}

// FitToPage scales an image to the page width. When that makes it taller
// than the page it is scaled down uniformly to the page height instead and
// centred horizontally. Nothing is cropped and nothing spills over.
func FitToPage(imgW, imgH, pageW, pageH float64) (x, y, w, h float64) {
	if imgW <= 0 || imgH <= 0 {
		return 0, 0, pageW, pageH
	}
	w = pageW
	h = imgH * pageW / imgW
	if h > pageH {
		h = pageH
		w = imgW * pageH / imgH
		x = (pageW - w) / 2
	}
	return x, 0, w, h
}

// Document is the result of rendering one offer of a batch.
type Document struct {
	Index int
	Offer internal.Offer
	PDF   []byte
	Pages int
	Err   error
}

// GenerateAll renders each offer in order. A failing offer is recorded on
// its Document and does not stop the others.
func (c *Compositor) GenerateAll(ctx context.Context, offers []internal.Offer) []Document {
	out := make([]Document, 0, len(offers))
	for i, offer := range offers {
		doc := Document{Index: i, Offer: offer}
		if err := ctx.Err(); err != nil {
			doc.Err = err
			out = append(out, doc)
			continue
		}
		doc.PDF, doc.Pages, doc.Err = c.RenderPages(ctx, c.Plan(offer))
		if doc.Err != nil {
			logger.Warn("compose: offer index=%d failed err=%v", i, doc.Err)
		}
		out = append(out, doc)
	}
	return out
}
