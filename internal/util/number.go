package util

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	leadingNumberPattern = regexp.MustCompile(`\d+(?:[.,]\d+)*`)
	numberTokenPattern   = regexp.MustCompile(`\b\d+(?:[.,]\d+)*\b`)
)

// ParseLeadingNumber parses the first numeric token found in input.
// A single separator, comma or dot, is the decimal point.
func ParseLeadingNumber(input string) (float64, bool) {
	line := strings.ReplaceAll(input, "\u00A0", " ")
	token := leadingNumberPattern.FindString(line)
	if token == "" {
		return 0, false
	}
	return ParseDecimal(token)
}

// NumberTokens returns every numeric token in input, in order.
func NumberTokens(input string) []float64 {
	matches := numberTokenPattern.FindAllString(input, -1)
	out := make([]float64, 0, len(matches))
	for _, m := range matches {
		if v, ok := ParseDecimal(m); ok {
			out = append(out, v)
		}
	}
	return out
}

// ParseDecimal parses tokens such as "5,98", "5.98", "1.234,56" and "1,234,567".
func ParseDecimal(token string) (float64, bool) {
	compact := strings.ReplaceAll(strings.TrimSpace(token), " ", "")
	if compact == "" {
		return 0, false
	}
	parsed, err := strconv.ParseFloat(normalizeNumericToken(compact), 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func normalizeNumericToken(token string) string {
	commas := strings.Count(token, ",")
	dots := strings.Count(token, ".")
	switch {
	case commas == 0 && dots == 0:
		return token
	case commas > 0 && dots > 0:
		last := strings.LastIndexAny(token, ",.")
		head := strings.NewReplacer(",", "", ".", "").Replace(token[:last])
		return head + "." + token[last+1:]
	case commas+dots == 1:
		return strings.ReplaceAll(token, ",", ".")
	default:
		return strings.NewReplacer(",", "", ".", "").Replace(token)
	}
}
