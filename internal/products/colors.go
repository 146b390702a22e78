package product

import (
	"regexp"
	"strings"
)

// SearchColors is the palette the search understands, inside free text or as a filter.
var SearchColors = []string{
	"black", "white", "grey", "gray", "red", "green", "blue", "navy", "yellow",
	"orange", "purple", "pink", "brown", "beige", "multi-color",
}

var colorPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(SearchColors, "|") + `)\b`)

// detectColors returns the palette colors mentioned in text, lower-cased and de-duplicated.
func detectColors(text string) []string {
	matches := colorPattern.FindAllString(text, -1)
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		c := strings.ToLower(m)
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
