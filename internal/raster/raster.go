// Package raster paints finalized document pages into bitmaps for the
// compositor. Layout is done in millimetres on an A4 canvas and scaled by
// the theme's raster settings.
package raster

import (
	"context"
	"fmt"
	"image"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"offerdesk/internal/compose"
	"offerdesk/internal/logger"
	"offerdesk/internal/theme"
)

const (
	a4WidthMM  = 210.0
	a4HeightMM = 297.0
)

// ImageSource resolves an image reference (URL or data URI).
type ImageSource interface {
	Load(ctx context.Context, src string) (image.Image, error)
}

type fontSet struct {
	regular *opentype.Font
	bold    *opentype.Font
	italic  *opentype.Font
}

func (f *fontSet) get(s style) *opentype.Font {
	switch s {
	case bold:
		return f.bold
	case italic:
		return f.italic
	default:
		return f.regular
	}
}

func loadFonts() (*fontSet, error) {
	regularFont, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("raster: parse regular font: %w", err)
	}
	boldFont, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("raster: parse bold font: %w", err)
	}
	italicFont, err := opentype.Parse(goitalic.TTF)
	if err != nil {
		return nil, fmt.Errorf("raster: parse italic font: %w", err)
	}
	return &fontSet{regular: regularFont, bold: boldFont, italic: italicFont}, nil
}

// Rasterizer implements compose.Rasterizer.
type Rasterizer struct {
	cfg    theme.Config
	images ImageSource
	fonts  *fontSet
}

// New builds a Rasterizer. images may be nil, in which case product
// images and overlays are left out.
func New(cfg theme.Config, images ImageSource) (*Rasterizer, error) {
	fonts, err := loadFonts()
	if err != nil {
		return nil, err
	}
	return &Rasterizer{cfg: cfg, images: images, fonts: fonts}, nil
}

func (r *Rasterizer) Rasterize(ctx context.Context, page compose.Page) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w, h := a4WidthMM, a4HeightMM
	if page.Landscape {
		w, h = h, w
	}
	c := newCanvas(r.fonts, r.cfg.Raster.DPI*r.cfg.Raster.Scale, w, h, r.cfg.Background())
	defer c.release()

	switch page.Kind {
	case compose.PageAnnex:
		r.drawAnnex(c)
	case compose.PageProducts:
		r.drawProducts(c, page.Products)
	case compose.PageOffer:
		r.drawOffer(ctx, c, page)
	case compose.PageBlank:
		r.drawBlank(c, page.Text)
	default:
		return nil, fmt.Errorf("raster: unknown page kind %q", page.Kind)
	}
	r.drawOverlays(ctx, c, page)

	return c.render(), nil
}

func (r *Rasterizer) loadImage(ctx context.Context, src string) image.Image {
	if r.images == nil || src == "" {
		return nil
	}
	img, err := r.images.Load(ctx, src)
	if err != nil {
		logger.Debug("raster: image unavailable src=%.80s err=%v", src, err)
		return nil
	}
	return img
}

func (r *Rasterizer) drawOverlays(ctx context.Context, c *canvas, page compose.Page) {
	for _, o := range page.Overlays {
		if o.Width <= 0 || o.Height <= 0 {
			continue
		}
		img := r.loadImage(ctx, o.Src)
		if img == nil {
			continue
		}
		c.overlay(img, o.X, o.Y, o.Width, o.Height)
	}
}
