package raster

import (
	"context"
	"image/color"
	"math"
	"strconv"
	"strings"

	"golang.org/x/image/font"

	"offerdesk/internal"
	"offerdesk/internal/compose"
)

var (
	white     = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	muted     = color.RGBA{R: 0x6b, G: 0x72, B: 0x80, A: 0xff}
	stripe    = color.RGBA{R: 0xf3, G: 0xf4, B: 0xf6, A: 0xff}
	gridColor = color.RGBA{R: 0xd1, G: 0xd5, B: 0xdb, A: 0xff}
)

var productColumns = []float64{0.06, 0.42, 0.08, 0.10, 0.17, 0.17}

type cell struct {
	text  string
	face  font.Face
	color color.Color
	align align
}

func columnWidths(total float64, fractions []float64) []float64 {
	out := make([]float64, len(fractions))
	for i, f := range fractions {
		out[i] = total * f
	}
	return out
}

// tableRow draws one bordered row at the cursor. The row is as tall as
// its tallest wrapped cell.
func (c *canvas) tableRow(widths []float64, cells []cell, bg color.Color) {
	const pad = 1.5
	wrapped := make([][]string, len(cells))
	height := 0.0
	for i, cl := range cells {
		wrapped[i] = c.wrap(cl.face, cl.text, widths[i]-2*pad)
		height = math.Max(height, float64(len(wrapped[i]))*c.lineHeight(cl.face))
	}
	height += 2 * pad

	x := c.margin
	for i, cl := range cells {
		c.rect(x, c.y, widths[i], height, bg)
		c.strokeRect(x, c.y, widths[i], height, 0.2, gridColor)
		lh := c.lineHeight(cl.face)
		for j, line := range wrapped[i] {
			c.alignedText(x+pad, widths[i]-2*pad, c.y+pad+float64(j)*lh, line, cl.face, cl.color, cl.align)
		}
		x += widths[i]
	}
	c.y += height
}

func (r *Rasterizer) drawAnnex(c *canvas) {
	a := r.cfg.Annex
	ink := r.cfg.Text()
	body := c.face(regular, 11)

	c.y = 25
	c.paragraph(a.Title, c.face(bold, 14), ink, alignCenter, 10)
	for _, line := range a.Addressee {
		c.paragraph(line, c.face(bold, 11), ink, alignLeft, 2)
	}
	c.y += 4
	for _, p := range a.Paragraphs {
		c.paragraph(p, body, ink, alignLeft, 4)
	}
	c.y += 8
	c.paragraph(strings.TrimSpace(a.DateLabel+" "+a.Date), c.face(bold, 11), ink, alignLeft, 12)
	c.paragraph(a.Signature, c.face(italic, 10), ink, alignCenter, 0)
}

func (r *Rasterizer) drawProducts(c *canvas, products []internal.Product) {
	l := r.cfg.Labels
	ink := r.cfg.Text()
	head := c.face(bold, 9)
	body := c.face(regular, 9)

	c.paragraph(l.ProductsTitle, c.face(bold, 14), ink, alignCenter, 6)

	widths := columnWidths(c.contentWidth(), productColumns)
	aligns := []align{alignCenter, alignLeft, alignCenter, alignRight, alignRight, alignRight}
	header := []string{l.ColumnNumber, l.ColumnName, l.ColumnUnit, l.ColumnQuantity, l.ColumnUnitPrice, l.ColumnTotal}
	cells := make([]cell, len(header))
	for i, h := range header {
		cells[i] = cell{text: h, face: head, color: white, align: alignCenter}
	}
	c.tableRow(widths, cells, r.cfg.Primary())

	total := 0.0
	for i, p := range products {
		values := []string{
			strconv.Itoa(p.ItemNumber),
			p.ProductName,
			p.UnitOfMeasurement,
			strconv.Itoa(p.Quantity),
			formatMoney(p.UnitPriceNoVAT),
			formatMoney(p.TotalValueNoVAT),
		}
		row := make([]cell, len(values))
		for j, v := range values {
			row[j] = cell{text: v, face: body, color: ink, align: aligns[j]}
		}
		bg := color.Color(white)
		if i%2 == 1 {
			bg = stripe
		}
		c.tableRow(widths, row, bg)
		total += p.TotalValueNoVAT
	}

	labelWidth := 0.0
	for _, w := range widths[:len(widths)-1] {
		labelWidth += w
	}
	c.tableRow([]float64{labelWidth, widths[len(widths)-1]}, []cell{
		{text: l.ProductsTotalText, face: head, color: ink, align: alignRight},
		{text: formatMoney(math.Round(total*100) / 100), face: head, color: ink, align: alignRight},
	}, stripe)
}

func (r *Rasterizer) drawOffer(ctx context.Context, c *canvas, page compose.Page) {
	md, content := page.Offer.Metadata, page.Offer.Content
	l := r.cfg.Labels
	ink, primary, secondary := r.cfg.Text(), r.cfg.Primary(), r.cfg.Secondary()
	body := c.face(regular, 10.5)

	// header: company on the left, date and reference on the right
	top := c.y
	brand := c.face(bold, 16)
	c.text(c.margin, top, md.CompanyName, brand, primary)
	meta := c.face(regular, 9)
	var refs []string
	if md.OfferDate != "" {
		refs = append(refs, l.DateLabel+" "+md.OfferDate)
	}
	if md.OfferReference != "" {
		refs = append(refs, l.RefLabel+" "+md.OfferReference)
	}
	for i, line := range refs {
		c.alignedText(c.margin, c.contentWidth(), top+float64(i)*c.lineHeight(meta), line, meta, muted, alignRight)
	}
	c.y = top + math.Max(c.lineHeight(brand), float64(len(refs))*c.lineHeight(meta)) + 3
	c.rect(c.margin, c.y, c.contentWidth(), 1.2, primary)
	c.y += 7

	c.paragraph(strings.ToUpper(l.DocumentType), c.face(bold, 9), secondary, alignLeft, 2)
	c.paragraph(content.Title, c.face(bold, 20), ink, alignLeft, 2)
	c.paragraph(content.Subtitle, c.face(regular, 12), muted, alignLeft, 6)
	c.paragraph(l.Salutation, body, ink, alignLeft, 2)
	c.paragraph(content.MainMessage, body, ink, alignLeft, 6)

	if img := r.loadImage(ctx, content.ProductImageURL); img != nil {
		if w, h := fitBox(img, 120, 90); w > 0 && h > 0 {
			c.image(img, c.margin+(c.contentWidth()-w)/2, c.y, w, h)
			c.y += h + 2
			c.paragraph(l.ImageCaption, c.face(italic, 8.5), muted, alignCenter, 6)
		}
	}

	if content.TechnicalDetailsMessage != "" || len(content.TechnicalDetailsTable) > 0 {
		c.paragraph(l.TechDetailsTitle, c.face(bold, 13), primary, alignLeft, 3)
		c.paragraph(content.TechnicalDetailsMessage, body, ink, alignLeft, 4)
		widths := columnWidths(c.contentWidth(), []float64{0.35, 0.65})
		for i, d := range content.TechnicalDetailsTable {
			bg := color.Color(white)
			if i%2 == 0 {
				bg = stripe
			}
			c.tableRow(widths, []cell{
				{text: d.ItemTitle, face: c.face(bold, 9.5), color: ink},
				{text: d.ItemDescription, face: c.face(regular, 9.5), color: ink},
			}, bg)
		}
		c.y += 6
	}

	if strings.TrimSpace(content.ProductPrice) != "" {
		r.drawPriceBox(c, content.ProductPrice)
	}

	c.paragraph(content.ConfidenceMessage, c.face(italic, 10), ink, alignLeft, 5)
	c.paragraph(l.ValidityTitle, c.face(bold, 10), ink, alignLeft, 1.5)
	c.paragraph(l.ValidityText, c.face(regular, 9.5), muted, alignLeft, 4)

	r.setFooter(c, md)
}

func (r *Rasterizer) drawPriceBox(c *canvas, price string) {
	l := r.cfg.Labels
	const pad = 5.0
	inner := c.contentWidth() - 2*pad
	labelFace, priceFace, noteFace := c.face(bold, 10), c.face(bold, 22), c.face(regular, 9)

	height := func(f font.Face, s string) float64 {
		if s == "" {
			return 0
		}
		return float64(len(c.wrap(f, s, inner))) * c.lineHeight(f)
	}
	boxH := 2*pad + height(labelFace, l.SpecialPriceLabel) + height(priceFace, price) + height(noteFace, l.PriceNote) + 2

	top := c.y
	c.rect(c.margin, top, c.contentWidth(), boxH, r.cfg.Secondary())
	y := top + pad
	if l.SpecialPriceLabel != "" {
		y += c.block(c.margin+pad, inner, y, l.SpecialPriceLabel, labelFace, white, alignCenter) + 1
	}
	y += c.block(c.margin+pad, inner, y, price, priceFace, white, alignCenter) + 1
	if l.PriceNote != "" {
		c.block(c.margin+pad, inner, y, l.PriceNote, noteFace, white, alignCenter)
	}
	c.y = top + boxH + 6
}

func (r *Rasterizer) setFooter(c *canvas, md internal.OfferMetadata) {
	var lines []string
	if legal := joinNonEmpty(" | ", md.CompanyLegalName, md.VATNumber, md.RegistrationNumber); legal != "" {
		lines = append(lines, legal)
	}
	for _, s := range []string{r.cfg.Labels.FooterAddress, r.cfg.Labels.FooterNote} {
		if strings.TrimSpace(s) != "" {
			lines = append(lines, s)
		}
	}
	if len(lines) == 0 {
		return
	}

	f := c.face(regular, 8)
	lh := c.lineHeight(f)
	c.footerH = 3 + float64(len(lines))*lh
	c.footer = func(c *canvas, top float64) {
		c.rect(c.margin, top, c.contentWidth(), 0.3, gridColor)
		for i, line := range lines {
			c.alignedText(c.margin, c.contentWidth(), top+3+float64(i)*lh, line, f, muted, alignCenter)
		}
	}
}

func (r *Rasterizer) drawBlank(c *canvas, html string) {
	ink := r.cfg.Text()
	for _, b := range htmlBlocks(html) {
		switch b.kind {
		case blockHeading:
			size := 16.0 - 2*float64(b.level-1)
			c.paragraph(b.text, c.face(bold, math.Max(size, 11)), ink, alignLeft, 3)
		case blockListItem:
			f := c.face(regular, 11)
			bullet := "• "
			indent := c.measure(f, bullet)
			c.text(c.margin+2, c.y, bullet, f, ink)
			c.y += c.block(c.margin+2+indent, c.contentWidth()-2-indent, c.y, b.text, f, ink, alignLeft) + 1.5
		default:
			c.paragraph(b.text, c.face(regular, 11), ink, alignLeft, 4)
		}
	}
}

func formatMoney(v float64) string {
	return strings.Replace(strconv.FormatFloat(v, 'f', 2, 64), ".", ",", 1)
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
