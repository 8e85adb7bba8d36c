package extract

import (
	"bytes"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	pdf "github.com/ledongthuc/pdf"

	"offerdesk/internal"
	"offerdesk/internal/util"
)

var (
	rowStart     = regexp.MustCompile(`^(\d+)\s+(.+)`)
	unitToken    = regexp.MustCompile(`(?i)\b(BUC|SET|KG|M|L)\b`)
	nameBefore   = regexp.MustCompile(`^(.+?)\s+(?:BUC|buc|SET|set|KG|kg|M|m|L|l)\s`)
	firstDigitRe = regexp.MustCompile(`\d`)
)

// ExtractProductsFromPDF reads the product table of an offer PDF from its
// text layer. It returns nil when no table is recognised.
func ExtractProductsFromPDF(blob []byte) (products []internal.Product, err error) {
	defer func() {
		if r := recover(); r != nil {
			products, err = nil, fmt.Errorf("extract: malformed pdf: %v", r)
		}
	}()
	lines, err := pdfLines(blob)
	if err != nil {
		return nil, err
	}
	return ParseProductRows(lines), nil
}

func pdfLines(blob []byte) ([]string, error) {
	r, err := pdf.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return nil, fmt.Errorf("extract: read pdf: %w", err)
	}
	var lines []string
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		rows, err := p.GetTextByRow()
		if err != nil {
			continue
		}
		sort.SliceStable(rows, func(a, b int) bool { return rows[a].Position > rows[b].Position })
		for _, row := range rows {
			if line := joinRow(row.Content); line != "" {
				lines = append(lines, line)
			}
		}
	}
	return lines, nil
}

// joinRow rebuilds the text of one row. Some producers emit one text item
// per glyph, spaces included; those are concatenated as-is.
func joinRow(texts []pdf.Text) string {
	sorted := append([]pdf.Text(nil), texts...)
	sort.SliceStable(sorted, func(a, b int) bool { return sorted[a].X < sorted[b].X })

	perGlyph := true
	parts := make([]string, 0, len(sorted))
	for _, t := range sorted {
		if utf8.RuneCountInString(t.S) > 1 {
			perGlyph = false
		}
		parts = append(parts, t.S)
	}
	sep := " "
	if perGlyph {
		sep = ""
	}
	return util.NormalizeSpaces(strings.Join(parts, sep))
}

// ParseProductRows scans text lines for a product table. The table opens
// on a header line ("Nr. crt." or "Denumire produs") and closes on the
// "Total fara TVA" line. A row is an item number followed by a name, an
// optional unit and at least three numbers: quantity, unit price, total.
func ParseProductRows(lines []string) []internal.Product {
	var out []internal.Product
	inTable := false
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		lower := strings.ToLower(line)

		if (strings.Contains(lower, "nr") && strings.Contains(lower, "crt")) ||
			(strings.Contains(lower, "denumire") && strings.Contains(lower, "produs")) {
			inTable = true
			continue
		}
		if strings.Contains(lower, "total") && strings.Contains(lower, "fara") && strings.Contains(lower, "tva") {
			inTable = false
			continue
		}
		if !inTable || line == "" {
			continue
		}
		if p, ok := parseProductRow(line); ok {
			out = append(out, p)
		}
	}
	return out
}

func parseProductRow(line string) (internal.Product, bool) {
	m := rowStart.FindStringSubmatch(line)
	if m == nil {
		return internal.Product{}, false
	}
	itemNumber, err := strconv.Atoi(m[1])
	if err != nil {
		return internal.Product{}, false
	}
	rest := m[2]

	values := util.NumberTokens(rest)
	if len(values) < 3 {
		return internal.Product{}, false
	}

	name := ""
	if nm := nameBefore.FindStringSubmatch(rest); nm != nil {
		name = strings.TrimSpace(nm[1])
	} else if loc := firstDigitRe.FindStringIndex(rest); loc != nil {
		name = strings.TrimSpace(rest[:loc[0]])
	} else {
		name = strings.TrimSpace(rest)
	}
	if name == "" {
		return internal.Product{}, false
	}

	unit := "BUC"
	if um := unitToken.FindStringSubmatch(rest); um != nil {
		unit = strings.ToUpper(um[1])
	}

	return internal.Product{
		ItemNumber:        itemNumber,
		ProductName:       name,
		UnitOfMeasurement: unit,
		Quantity:          int(math.Round(values[0])),
		UnitPriceNoVAT:    values[1],
		TotalValueNoVAT:   values[2],
	}, true
}
