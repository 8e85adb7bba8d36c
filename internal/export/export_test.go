package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/klauspost/compress/zip"
	pdf "github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"offerdesk/internal"
	"offerdesk/internal/compose"
	"offerdesk/internal/merge"
)

func onePagePDF(t *testing.T, text string) []byte {
	t.Helper()
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetFont("Helvetica", "", 12)
	doc.AddPage()
	doc.Text(20, 20, text)
	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))
	return buf.Bytes()
}

type fakeRenderer struct {
	t    *testing.T
	fail map[int]bool
}

func (r fakeRenderer) GenerateAll(_ context.Context, offers []internal.Offer) []compose.Document {
	out := make([]compose.Document, 0, len(offers))
	for i, offer := range offers {
		doc := compose.Document{Index: i, Offer: offer}
		if r.fail[i] {
			doc.Err = compose.ErrNoPages
		} else {
			doc.PDF = onePagePDF(r.t, offer.Content.Title)
			doc.Pages = 1
		}
		out = append(out, doc)
	}
	return out
}

func titled(titles ...string) []internal.Offer {
	out := make([]internal.Offer, 0, len(titles))
	for _, title := range titles {
		out = append(out, internal.Offer{Content: internal.OfferContent{Title: title}})
	}
	return out
}

func readZIP(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	files := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		var buf bytes.Buffer
		_, err = buf.ReadFrom(rc)
		require.NoError(t, err)
		rc.Close()
		files[f.Name] = buf.Bytes()
	}
	return files
}

var drawTemplate = regexp.MustCompile(`/(\w+) Do`)

// pageTemplates returns, per page, the content of the first form XObject
// the page draws.
func pageTemplates(t *testing.T, blob []byte) []string {
	t.Helper()
	r, err := pdf.NewReader(bytes.NewReader(blob), int64(len(blob)))
	require.NoError(t, err)

	read := func(v pdf.Value) string {
		rc := v.Reader()
		defer rc.Close()
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		return string(data)
	}
	out := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		m := drawTemplate.FindStringSubmatch(read(page.V.Key("Contents")))
		require.NotNil(t, m, "page %d draws no template", i)
		out = append(out, read(page.Resources().Key("XObject").Key(m[1])))
	}
	return out
}

func fixedBuilder(t *testing.T, fail map[int]bool) *Builder {
	b := NewBuilder(fakeRenderer{t: t, fail: fail})
	b.now = func() time.Time { return time.Date(2025, 12, 18, 9, 0, 0, 0, time.UTC) }
	return b
}

func TestDocumentName(t *testing.T) {
	assert.Equal(t, "oferta_comerciala__scaun.pdf", DocumentName(titled("Oferta Comerciala: Scaun")[0], 0, 1))
	assert.Equal(t, "a___b_2.pdf", DocumentName(titled("A - B")[0], 1, 2))
	assert.Equal(t, "offer_2.pdf", DocumentName(titled("")[0], 1, 3))
	assert.Equal(t, "___.pdf", DocumentName(titled("!!!")[0], 0, 1))

	long := DocumentName(titled("abcdefghij abcdefghij abcdefghij abcdefghij abcdefghij abcdefghij")[0], 0, 1)
	assert.LessOrEqual(t, len(long), 50+len(".pdf"))
}

func TestBuildZIPSingleOffer(t *testing.T) {
	archive, err := fixedBuilder(t, nil).BuildZIP(context.Background(), titled("Scaun"))
	require.NoError(t, err)
	assert.Equal(t, "oferte_2025-12-18.zip", archive.Name)

	files := readZIP(t, archive.Data)
	assert.Len(t, files, 1)
	assert.Contains(t, files, "scaun.pdf")
}

func TestBuildZIPAddsMergedDocument(t *testing.T) {
	archive, err := fixedBuilder(t, nil).BuildZIP(context.Background(), titled("Scaun", "Masa", "Lampa"))
	require.NoError(t, err)

	files := readZIP(t, archive.Data)
	assert.Contains(t, files, "scaun_1.pdf")
	assert.Contains(t, files, "masa_2.pdf")
	assert.Contains(t, files, "lampa_3.pdf")
	require.Contains(t, files, mergedName)

	n, err := merge.PageCount(files[mergedName])
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	pages := pageTemplates(t, files[mergedName])
	require.Len(t, pages, 3)
	for i, title := range []string{"Scaun", "Masa", "Lampa"} {
		assert.Contains(t, pages[i], "("+title+") Tj", "page %d", i+1)
	}
	assert.NotContains(t, pages[0], "(Lampa) Tj")
}

func TestBuildZIPSkipsFailedOffers(t *testing.T) {
	archive, err := fixedBuilder(t, map[int]bool{1: true}).BuildZIP(context.Background(), titled("Scaun", "Masa"))
	require.NoError(t, err)
	assert.Len(t, archive.Failures, 1)
	assert.Equal(t, []string{"scaun_1.pdf"}, archive.Files)
}

func TestBuildZIPWithNothingRendered(t *testing.T) {
	_, err := fixedBuilder(t, map[int]bool{0: true}).BuildZIP(context.Background(), titled("Scaun"))
	assert.True(t, errors.Is(err, ErrNoDocuments))
}

func TestExportProductsToXLSX(t *testing.T) {
	offers := []internal.Offer{
		{
			Metadata: internal.OfferMetadata{CompanyName: "Green Land", OfferReference: "REF-1"},
			Content: internal.OfferContent{Title: "Scaun", Products: []internal.Product{
				{ItemNumber: 1, ProductName: "Scaun", UnitOfMeasurement: "BUC", Quantity: 2, UnitPriceNoVAT: 5, TotalValueNoVAT: 10},
				{ItemNumber: 2, ProductName: "Perna", UnitOfMeasurement: "BUC", Quantity: 1, UnitPriceNoVAT: 3, TotalValueNoVAT: 3},
			}},
		},
		{Content: internal.OfferContent{Title: "Gol"}},
	}
	path := filepath.Join(t.TempDir(), "out", "produse.xlsx")
	require.NoError(t, ExportProductsToXLSX(offers, path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, productHeaders, rows[0])
	assert.Equal(t, "REF-1", rows[1][2])
	assert.Equal(t, "Perna", rows[2][6])
	assert.Equal(t, "10", rows[1][10])
}
