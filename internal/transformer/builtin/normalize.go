// Package builtin contains the field-level normalizers used by the catalog
// transformer. Every function is pure: it never fails a row, it only maps raw
// text onto a canonical value or onto "absent" (nil / empty slice).
package builtin

import "strings"

// unratedAliases are source ratings that mean "no rating assigned".
var unratedAliases = map[string]struct{}{
	"UR": {},
	"0+": {},
}

// Unrated is the canonical rating for unrated titles.
const Unrated = "Unrated"

// CleanScalar trims raw and returns nil when nothing is left. Whitespace-only
// input (including U+00A0 NO-BREAK SPACE) never yields an empty string.
func CleanScalar(raw string) *string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	return &s
}

// SplitList splits a comma-delimited field, trims every part and drops the
// empty ones. Empty input yields an empty, non-nil slice.
func SplitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NormalizeRating maps the unrated aliases onto Unrated, then cleans the
// value like any other scalar.
func NormalizeRating(raw string) *string {
	if _, ok := unratedAliases[strings.TrimSpace(raw)]; ok {
		return CleanScalar(Unrated)
	}
	return CleanScalar(raw)
}
