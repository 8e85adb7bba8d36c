package normalize

import (
	"html"
	"strings"

	"github.com/tidwall/gjson"
)

// ParseImageURLs splits the auxiliary image list from offer metadata. The
// service has sent it as a JSON array, as a JSON string holding an array
// and as a plain comma separated list, sometimes HTML-escaped.
func ParseImageURLs(value string) []string {
	s := strings.TrimSpace(html.UnescapeString(value))
	if s == "" {
		return nil
	}

	if gjson.Valid(s) {
		parsed := gjson.Parse(s)
		if parsed.Type == gjson.String {
			inner := strings.TrimSpace(parsed.Str)
			if gjson.Valid(inner) && gjson.Parse(inner).IsArray() {
				parsed = gjson.Parse(inner)
			} else {
				s = inner
			}
		}
		if parsed.IsArray() {
			out := []string{}
			for _, item := range parsed.Array() {
				if u := strings.TrimSpace(item.String()); u != "" {
					out = append(out, u)
				}
			}
			return out
		}
	}

	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if u := strings.Trim(strings.TrimSpace(part), `"'[]`); u != "" {
			out = append(out, u)
		}
	}
	return out
}
