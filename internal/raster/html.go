package raster

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"offerdesk/internal/util"
)

type blockKind int

const (
	blockParagraph blockKind = iota
	blockHeading
	blockListItem
)

type textBlock struct {
	kind  blockKind
	level int
	text  string
}

const blockSelector = "h1,h2,h3,h4,p,li,pre,blockquote"

// htmlBlocks flattens the free-text HTML of a custom page into paragraphs,
// headings and list items. Input without block markup is split on blank
// lines.
func htmlBlocks(src string) []textBlock {
	if strings.TrimSpace(src) == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return plainBlocks(src)
	}
	doc.Find("br").ReplaceWithHtml("\n")

	var blocks []textBlock
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		if s.ParentsFiltered("p,li,pre,blockquote").Length() > 0 {
			return
		}
		text := blockText(s.Text())
		if text == "" {
			return
		}
		b := textBlock{kind: blockParagraph, text: text}
		switch tag := goquery.NodeName(s); tag {
		case "h1", "h2", "h3", "h4":
			b.kind = blockHeading
			b.level = int(tag[1] - '0')
		case "li":
			b.kind = blockListItem
		}
		blocks = append(blocks, b)
	})
	if len(blocks) == 0 {
		return plainBlocks(doc.Text())
	}
	return blocks
}

func plainBlocks(src string) []textBlock {
	var blocks []textBlock
	for _, chunk := range strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n\n") {
		if text := blockText(chunk); text != "" {
			blocks = append(blocks, textBlock{kind: blockParagraph, text: text})
		}
	}
	return blocks
}

func blockText(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = util.NormalizeSpaces(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
