package extract

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"

	"offerdesk/internal/compose"
)

// Paragraph is one block of DOCX body text.
type Paragraph struct {
	Heading  int
	ListItem bool
	Text     string
}

const docxPageChars = 2800

// DOCXParagraphs reads the body paragraphs of a .docx package in order.
// Formatting other than headings and list membership is dropped.
func DOCXParagraphs(raw []byte) ([]Paragraph, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return nil, fmt.Errorf("open docx: word/document.xml missing")
	}
	rc, err := doc.Open()
	if err != nil {
		return nil, fmt.Errorf("open docx body: %w", err)
	}
	defer rc.Close()
	return parseDocumentXML(rc)
}

func parseDocumentXML(r io.Reader) ([]Paragraph, error) {
	dec := xml.NewDecoder(r)
	var (
		out     []Paragraph
		current *Paragraph
		text    strings.Builder
		inText  bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse docx body: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				current = &Paragraph{}
				text.Reset()
			case "pStyle":
				if current != nil {
					current.Heading = headingLevel(attr(t, "val"))
				}
			case "numPr":
				if current != nil {
					current.ListItem = true
				}
			case "t":
				inText = true
			case "tab":
				text.WriteByte(' ')
			case "br", "cr":
				text.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				text.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if current != nil {
					current.Text = strings.TrimSpace(text.String())
					if current.Text != "" {
						out = append(out, *current)
					}
				}
				current = nil
			}
		}
	}
	return out, nil
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func headingLevel(style string) int {
	s := strings.ToLower(style)
	switch {
	case s == "title":
		return 1
	case strings.HasPrefix(s, "heading"), strings.HasPrefix(s, "titlu"):
		last := s[len(s)-1]
		if last >= '1' && last <= '4' {
			return int(last - '0')
		}
	}
	return 0
}

// DOCXPages lays the paragraphs out as blank pages, starting a new page
// once the running text passes a page's worth of characters.
func DOCXPages(paragraphs []Paragraph) []compose.Page {
	var (
		pages []compose.Page
		body  strings.Builder
		chars int
	)
	flush := func() {
		if body.Len() == 0 {
			return
		}
		pages = append(pages, compose.Page{
			Kind:  compose.PageBlank,
			Label: fmt.Sprintf("docx[%d]", len(pages)),
			Text:  body.String(),
		})
		body.Reset()
		chars = 0
	}

	for _, p := range paragraphs {
		if chars > 0 && chars+len(p.Text) > docxPageChars {
			flush()
		}
		escaped := strings.ReplaceAll(html.EscapeString(p.Text), "\n", "<br>")
		switch {
		case p.Heading > 0:
			fmt.Fprintf(&body, "<h%d>%s</h%d>", p.Heading, escaped, p.Heading)
		case p.ListItem:
			fmt.Fprintf(&body, "<li>%s</li>", escaped)
		default:
			fmt.Fprintf(&body, "<p>%s</p>", escaped)
		}
		chars += len(p.Text)
	}
	flush()
	return pages
}
