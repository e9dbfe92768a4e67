package builtin

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// ParseDate parses free-form human dates such as "September 9, 2019" or
// "2019-09-09". The result is the calendar date at UTC midnight. Anything
// that does not parse yields nil; a bad date is a data-quality signal, not a
// row failure.
func ParseDate(raw string) *time.Time {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return nil
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

// NormalizeYear coerces raw to an integer year. Spreadsheet style values with
// a zero fraction ("2019.0") are accepted; anything else non-numeric is nil.
func NormalizeYear(raw string) *int {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return &n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return nil
	}
	n := int(f)
	return &n
}
