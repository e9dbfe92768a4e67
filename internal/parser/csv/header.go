package csv

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// utf8BOM is stripped from the first header cell if present.
const utf8BOM = "\uFEFF"

// FoldHeader maps a source header cell onto the canonical column name:
// lower-cased, accents removed, and runs of space, '-', '.' or '_' collapsed
// into a single '_'. Other punctuation is dropped. "Listed In" and
// "listed-in" both fold to "listed_in".
func FoldHeader(h string) string {
	h = strings.TrimPrefix(h, utf8BOM)
	h = strings.ToLower(strings.TrimSpace(h))

	// Decompose, remove nonspacing marks, recompose.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, h); err == nil {
		h = folded
	}

	var b strings.Builder
	prevUnderscore := false
	for _, r := range h {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		case r == '_' || r == ' ' || r == '-' || r == '.':
			if !prevUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				prevUnderscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// FoldHeaders folds every cell of a header row. The input is not modified.
func FoldHeaders(hdr []string) []string {
	out := make([]string, len(hdr))
	for i, h := range hdr {
		out[i] = FoldHeader(h)
	}
	return out
}
