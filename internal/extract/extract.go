// Package extract turns local upload files into the base64 payloads sent
// to the offer webhook.
package extract

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"offerdesk/internal"
	"offerdesk/internal/compose"
	"offerdesk/internal/logger"
)

const (
	MimePDF  = "application/pdf"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
)

var ErrUnsupportedType = errors.New("extract: unsupported file type")

var extensionTypes = map[string]string{
	".pdf":  MimePDF,
	".docx": MimeDOCX,
	".jpg":  MimeJPEG,
	".jpeg": MimeJPEG,
	".png":  MimePNG,
}

var docxSuffix = regexp.MustCompile(`(?i)\.docx?$`)

// DetectMIME resolves the MIME type of an upload from its declared type,
// falling back to the file extension. It returns "" for unsupported files.
func DetectMIME(name, declared string) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	for _, allowed := range extensionTypes {
		if declared == allowed {
			return declared
		}
	}
	return extensionTypes[strings.ToLower(filepath.Ext(name))]
}

func Allowed(name, declared string) bool {
	return DetectMIME(name, declared) != ""
}

// PageRenderer renders finalized pages into a PDF.
type PageRenderer interface {
	RenderPages(ctx context.Context, pages []compose.Page) ([]byte, int, error)
}

type Extractor struct {
	renderer PageRenderer
}

// NewExtractor builds an Extractor. renderer is required for DOCX input.
func NewExtractor(renderer PageRenderer) *Extractor {
	return &Extractor{renderer: renderer}
}

func (e *Extractor) ExtractFile(ctx context.Context, path, name, declared string) (internal.ExtractedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return internal.ExtractedFile{}, fmt.Errorf("extract: read %s: %w", path, err)
	}
	if name == "" {
		name = filepath.Base(path)
	}
	return e.Extract(ctx, name, declared, raw)
}

// Extract encodes one upload. DOCX documents are converted to PDF first and
// renamed accordingly; everything else is passed through unchanged.
func (e *Extractor) Extract(ctx context.Context, name, declared string, raw []byte) (internal.ExtractedFile, error) {
	mime := DetectMIME(name, declared)
	switch mime {
	case "":
		return internal.ExtractedFile{}, fmt.Errorf("%w: %s", ErrUnsupportedType, name)
	case MimeDOCX:
		pdf, err := e.convertDOCX(ctx, raw)
		if err != nil {
			return internal.ExtractedFile{}, fmt.Errorf("extract: convert docx %s: %w", name, err)
		}
		name = docxSuffix.ReplaceAllString(name, ".pdf")
		logger.Debug("extract: converted %s to pdf bytes=%d", name, len(pdf))
		return encoded(name, MimePDF, pdf), nil
	default:
		return encoded(name, mime, raw), nil
	}
}

func (e *Extractor) convertDOCX(ctx context.Context, raw []byte) ([]byte, error) {
	if e.renderer == nil {
		return nil, errors.New("no page renderer configured")
	}
	paragraphs, err := DOCXParagraphs(raw)
	if err != nil {
		return nil, err
	}
	pages := DOCXPages(paragraphs)
	if len(pages) == 0 {
		return nil, errors.New("document has no text")
	}
	pdf, _, err := e.renderer.RenderPages(ctx, pages)
	return pdf, err
}

func encoded(name, mime string, blob []byte) internal.ExtractedFile {
	return internal.ExtractedFile{
		Filename: name,
		Data:     base64.StdEncoding.EncodeToString(blob),
		Size:     int64(len(blob)),
		MimeType: mime,
		Raw:      blob,
	}
}
