package util

import (
	"regexp"
	"strings"
)

var (
	reSpaces      = regexp.MustCompile(`\s+`)
	reNonAlnum    = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

func NormalizeSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

// Slugify replaces every character outside [a-zA-Z0-9] with sep, lowercases
// the result and truncates it to max characters. Separators are neither
// collapsed nor trimmed, so "A - B" becomes "a___b".
func Slugify(input, sep string, max int) string {
	s := strings.ToLower(reNonAlnum.ReplaceAllString(input, sep))
	if max > 0 {
		s = Truncate(s, max)
	}
	return s
}

func Truncate(input string, max int) string {
	r := []rune(input)
	if len(r) <= max {
		return input
	}
	return string(r[:max])
}

func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
