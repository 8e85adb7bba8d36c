// Package merge concatenates generated PDFs into one A4 document.
package merge

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/jung-kurt/gofpdf"
	"github.com/jung-kurt/gofpdf/contrib/gofpdi"
	pdf "github.com/ledongthuc/pdf"
)

// A4 portrait in points.
const (
	a4WidthPt  = 595.28
	a4HeightPt = 841.89
)

var ErrNoInput = errors.New("merge: no input documents")

// PageCount returns the number of pages in a PDF blob.
func PageCount(blob []byte) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("merge: malformed pdf: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return 0, fmt.Errorf("merge: read pdf: %w", err)
	}
	return r.NumPage(), nil
}

// Merge places every page of every source, in source order, on its own
// A4 portrait page. Each source page is scaled to fit and centred, so the
// output page count is the sum of the input page counts.
func Merge(blobs [][]byte) ([]byte, error) {
	if len(blobs) == 0 {
		return nil, ErrNoInput
	}

	counts := make([]int, len(blobs))
	for i, blob := range blobs {
		n, err := PageCount(blob)
		if err != nil {
			return nil, fmt.Errorf("merge: source %d: %w", i, err)
		}
		if n == 0 {
			return nil, fmt.Errorf("merge: source %d has no pages", i)
		}
		counts[i] = n
	}

	// gofpdi keys imported objects by source file name: every source gets
	// its own file and one importer serves them all.
	dir, err := os.MkdirTemp("", "offerdesk-merge-*")
	if err != nil {
		return nil, fmt.Errorf("merge: temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	out := gofpdf.New("P", "pt", "A4", "")
	out.SetAutoPageBreak(false, 0)
	imp := gofpdi.NewImporter()

	for i, blob := range blobs {
		path := filepath.Join(dir, fmt.Sprintf("source-%03d.pdf", i))
		if err := os.WriteFile(path, blob, 0o600); err != nil {
			return nil, fmt.Errorf("merge: source %d: %w", i, err)
		}
		if err := appendSource(out, imp, path, counts[i]); err != nil {
			return nil, fmt.Errorf("merge: source %d: %w", i, err)
		}
	}

	var buf bytes.Buffer
	if err := out.Output(&buf); err != nil {
		return nil, fmt.Errorf("merge: write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func appendSource(out *gofpdf.Fpdf, imp *gofpdi.Importer, path string, pages int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("import failed: %v", r)
		}
	}()

	for page := 1; page <= pages; page++ {
		tplID := imp.ImportPage(out, path, page, "/MediaBox")
		w, h := a4WidthPt, a4HeightPt
		if dims, ok := imp.GetPageSizes()[page]; ok {
			if mb, ok := dims["/MediaBox"]; ok && mb["w"] > 0 && mb["h"] > 0 {
				w, h = mb["w"], mb["h"]
			}
		}

		x, y, sw, sh := fitCentered(w, h, a4WidthPt, a4HeightPt)
		out.AddPageFormat("P", gofpdf.SizeType{Wd: a4WidthPt, Ht: a4HeightPt})
		imp.UseImportedTemplate(out, tplID, x, y, sw, sh)
		if err := out.Error(); err != nil {
			return fmt.Errorf("page %d: %w", page, err)
		}
	}
	return nil
}

func fitCentered(w, h, pageW, pageH float64) (x, y, sw, sh float64) {
	scale := math.Min(pageW/w, pageH/h)
	sw, sh = w*scale, h*scale
	return (pageW - sw) / 2, (pageH - sh) / 2, sw, sh
}
