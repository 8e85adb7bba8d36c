package raster

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"
	"unicode/utf8"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

type style int

const (
	regular style = iota
	bold
	italic
)

type align int

const (
	alignLeft align = iota
	alignCenter
	alignRight
)

type faceKey struct {
	style style
	size  float64
}

// canvas records drawing operations against a layout cursor measured in
// millimetres and paints them once the final page height is known. It
// owns the font faces it opens; release must be called when done.
type canvas struct {
	fonts   *fontSet
	dpi     float64
	pxPerMM float64
	widthMM float64
	minH    float64
	margin  float64
	bg      color.Color

	faces   map[faceKey]font.Face
	ops     []func(dst *image.RGBA)
	top     []func(dst *image.RGBA)
	footer  func(c *canvas, top float64)
	footerH float64
	y       float64
}

func newCanvas(fonts *fontSet, dpi, widthMM, minHeightMM float64, bg color.Color) *canvas {
	return &canvas{
		fonts:   fonts,
		dpi:     dpi,
		pxPerMM: dpi / 25.4,
		widthMM: widthMM,
		minH:    minHeightMM,
		margin:  15,
		bg:      bg,
		faces:   map[faceKey]font.Face{},
		y:       15,
	}
}

func (c *canvas) release() {
	for k, f := range c.faces {
		_ = f.Close()
		delete(c.faces, k)
	}
	c.ops = nil
	c.top = nil
}

func (c *canvas) face(s style, size float64) font.Face {
	key := faceKey{style: s, size: size}
	if f, ok := c.faces[key]; ok {
		return f
	}
	var f font.Face = basicfont.Face7x13
	if parsed := c.fonts.get(s); parsed != nil {
		opened, err := opentype.NewFace(parsed, &opentype.FaceOptions{Size: size, DPI: c.dpi, Hinting: font.HintingNone})
		if err == nil {
			f = opened
		}
	}
	c.faces[key] = f
	return f
}

func (c *canvas) px(mm float64) int {
	return int(math.Round(mm * c.pxPerMM))
}

func (c *canvas) toMM(v fixed.Int26_6) float64 {
	return float64(v) / 64 / c.pxPerMM
}

func (c *canvas) contentWidth() float64 {
	return c.widthMM - 2*c.margin
}

func (c *canvas) lineHeight(f font.Face) float64 {
	return c.toMM(f.Metrics().Height) * 1.2
}

func (c *canvas) measure(f font.Face, s string) float64 {
	return c.toMM(font.MeasureString(f, glyphSafe(f, s)))
}

// wrap breaks s into lines no wider than maxW. Explicit newlines are kept.
func (c *canvas) wrap(f font.Face, s string, maxW float64) []string {
	var lines []string
	for _, para := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		current := ""
		for _, word := range words {
			candidate := word
			if current != "" {
				candidate = current + " " + word
			}
			if c.measure(f, candidate) <= maxW {
				current = candidate
				continue
			}
			if current != "" {
				lines = append(lines, current)
			}
			current = word
			for c.measure(f, current) > maxW && utf8.RuneCountInString(current) > 1 {
				head, tail := c.splitToWidth(f, current, maxW)
				lines = append(lines, head)
				current = tail
			}
		}
		lines = append(lines, current)
	}
	return lines
}

func (c *canvas) splitToWidth(f font.Face, word string, maxW float64) (string, string) {
	runes := []rune(word)
	n := 1
	for n < len(runes) && c.measure(f, string(runes[:n+1])) <= maxW {
		n++
	}
	return string(runes[:n]), string(runes[n:])
}

// text draws one line with its top edge at top.
func (c *canvas) text(x, top float64, s string, f font.Face, col color.Color) {
	s = glyphSafe(f, s)
	ascent := f.Metrics().Ascent
	c.ops = append(c.ops, func(dst *image.RGBA) {
		d := font.Drawer{
			Dst:  dst,
			Src:  image.NewUniform(col),
			Face: f,
			Dot:  fixed.Point26_6{X: fixed.I(c.px(x)), Y: fixed.I(c.px(top)) + ascent},
		}
		d.DrawString(s)
	})
}

func (c *canvas) alignedText(x, w, top float64, s string, f font.Face, col color.Color, a align) {
	switch a {
	case alignCenter:
		x += (w - c.measure(f, s)) / 2
	case alignRight:
		x += w - c.measure(f, s)
	}
	c.text(x, top, s, f, col)
}

// block draws wrapped text at x within width w starting at top and
// returns the height used.
func (c *canvas) block(x, w, top float64, s string, f font.Face, col color.Color, a align) float64 {
	lh := c.lineHeight(f)
	lines := c.wrap(f, s, w)
	for i, line := range lines {
		c.alignedText(x, w, top+float64(i)*lh, line, f, col, a)
	}
	return float64(len(lines)) * lh
}

// paragraph draws a wrapped block at the cursor across the content width
// and advances the cursor past it plus gap.
func (c *canvas) paragraph(s string, f font.Face, col color.Color, a align, gap float64) {
	if strings.TrimSpace(s) == "" {
		return
	}
	c.y += c.block(c.margin, c.contentWidth(), c.y, s, f, col, a) + gap
}

func (c *canvas) rect(x, top, w, h float64, col color.Color) {
	c.ops = append(c.ops, func(dst *image.RGBA) {
		r := image.Rect(c.px(x), c.px(top), c.px(x+w), c.px(top+h))
		draw.Draw(dst, r, image.NewUniform(col), image.Point{}, draw.Over)
	})
}

func (c *canvas) strokeRect(x, top, w, h, stroke float64, col color.Color) {
	c.rect(x, top, w, stroke, col)
	c.rect(x, top+h-stroke, w, stroke, col)
	c.rect(x, top, stroke, h, col)
	c.rect(x+w-stroke, top, stroke, h, col)
}

func (c *canvas) image(img image.Image, x, top, w, h float64) {
	c.ops = append(c.ops, c.scaled(img, x, top, w, h))
}

// overlay draws an image above everything else on the page, footer included.
func (c *canvas) overlay(img image.Image, x, top, w, h float64) {
	c.top = append(c.top, c.scaled(img, x, top, w, h))
}

func (c *canvas) scaled(img image.Image, x, top, w, h float64) func(dst *image.RGBA) {
	return func(dst *image.RGBA) {
		r := image.Rect(c.px(x), c.px(top), c.px(x+w), c.px(top+h))
		xdraw.CatmullRom.Scale(dst, r, img, img.Bounds(), xdraw.Over, nil)
	}
}

// fitBox scales an image into a w×h box keeping its aspect ratio.
func fitBox(img image.Image, maxW, maxH float64) (float64, float64) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return 0, 0
	}
	scale := math.Min(maxW/float64(b.Dx()), maxH/float64(b.Dy()))
	return float64(b.Dx()) * scale, float64(b.Dy()) * scale
}

// render allocates the page bitmap. The page is at least minH tall and
// grows to fit the laid-out content plus the footer.
func (c *canvas) render() *image.RGBA {
	height := math.Max(c.minH, c.y+c.footerH+c.margin)
	dst := image.NewRGBA(image.Rect(0, 0, c.px(c.widthMM), c.px(height)))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(c.bg), image.Point{}, draw.Src)
	if c.footer != nil {
		c.footer(c, height-c.margin-c.footerH)
	}
	for _, op := range c.ops {
		op(dst)
	}
	for _, op := range c.top {
		op(dst)
	}
	return dst
}

// comma-below letters are missing from fonts built on the WGL4 set; the
// cedilla forms are the accepted substitute in Romanian typesetting.
var commaBelow = map[rune]rune{'ș': 'ş', 'Ș': 'Ş', 'ț': 'ţ', 'Ț': 'Ţ'}

func glyphSafe(f font.Face, s string) string {
	var b strings.Builder
	changed := false
	for _, r := range s {
		if alt, ok := commaBelow[r]; ok {
			if _, has := f.GlyphAdvance(r); !has {
				b.WriteRune(alt)
				changed = true
				continue
			}
		}
		b.WriteRune(r)
	}
	if !changed {
		return s
	}
	return b.String()
}
