// Package export packages rendered offers for download.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zip"

	"offerdesk/internal"
	"offerdesk/internal/compose"
	"offerdesk/internal/logger"
	"offerdesk/internal/merge"
	"offerdesk/internal/util"
)

const mergedName = "_TOATE_OFERTELE_UNITE.pdf"

var ErrNoDocuments = errors.New("export: no offer document could be generated")

// Renderer produces one PDF per offer.
type Renderer interface {
	GenerateAll(ctx context.Context, offers []internal.Offer) []compose.Document
}

// Archive is a finished ZIP export. Failures lists the offers and steps
// that were left out.
type Archive struct {
	Name     string
	Data     []byte
	Files    []string
	Failures []string
}

type Builder struct {
	renderer Renderer
	now      func() time.Time
}

func NewBuilder(renderer Renderer) *Builder {
	return &Builder{renderer: renderer, now: time.Now}
}

// DocumentName is the archive entry name of offer i out of total.
func DocumentName(offer internal.Offer, i, total int) string {
	name := util.Slugify(offer.Content.Title, "_", 50)
	if name == "" {
		name = "offer"
	}
	if total > 1 {
		return fmt.Sprintf("%s_%d.pdf", name, i+1)
	}
	return name + ".pdf"
}

// BuildZIP renders every offer and zips the results. With more than one
// rendered PDF the archive also carries all of them merged into one file.
func (b *Builder) BuildZIP(ctx context.Context, offers []internal.Offer) (*Archive, error) {
	docs := b.renderer.GenerateAll(ctx, offers)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	archive := &Archive{Name: fmt.Sprintf("oferte_%s.zip", b.now().Format("2006-01-02"))}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	var pdfs [][]byte
	for _, doc := range docs {
		if doc.Err != nil || len(doc.PDF) == 0 {
			archive.Failures = append(archive.Failures, fmt.Sprintf("offer %d: %v", doc.Index+1, doc.Err))
			continue
		}
		name := DocumentName(doc.Offer, doc.Index, len(offers))
		if err := addFile(zw, name, doc.PDF); err != nil {
			return nil, err
		}
		archive.Files = append(archive.Files, name)
		pdfs = append(pdfs, doc.PDF)
	}
	if len(pdfs) == 0 {
		return nil, ErrNoDocuments
	}

	if len(pdfs) > 1 {
		merged, err := merge.Merge(pdfs)
		if err != nil {
			logger.Warn("export: merge for archive failed err=%v", err)
			archive.Failures = append(archive.Failures, "merge: "+err.Error())
		} else {
			if err := addFile(zw, mergedName, merged); err != nil {
				return nil, err
			}
			archive.Files = append(archive.Files, mergedName)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	archive.Data = buf.Bytes()
	logger.Info("export: %s files=%d failures=%d", archive.Name, len(archive.Files), len(archive.Failures))
	return archive, nil
}

func addFile(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: time.Now()})
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
