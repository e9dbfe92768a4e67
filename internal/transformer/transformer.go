// Package transformer turns raw catalog rows into canonical titles. It applies
// the builtin field normalizers to every column and removes duplicate natural
// keys with the keep-first policy. It performs no cross-field validation.
package transformer

import (
	"catalogetl/internal/catalog"
	"catalogetl/internal/transformer/builtin"
)

// Normalize maps one raw row onto its canonical form.
func Normalize(r catalog.RawRecord) catalog.CanonicalTitle {
	return catalog.CanonicalTitle{
		ShowID:      builtin.CleanScalar(r.ShowID),
		Type:        builtin.CleanScalar(r.Type),
		Title:       builtin.CleanScalar(r.Title),
		Director:    builtin.CleanScalar(r.Director),
		CountryRaw:  builtin.CleanScalar(r.Country),
		DateAdded:   builtin.ParseDate(r.DateAdded),
		ReleaseYear: builtin.NormalizeYear(r.ReleaseYear),
		Rating:      builtin.NormalizeRating(r.Rating),
		Duration:    builtin.CleanScalar(r.Duration),
		Description: builtin.CleanScalar(r.Description),
		Genres:      builtin.SplitList(r.ListedIn),
		Countries:   builtin.SplitList(r.Country),
		Cast:        builtin.SplitList(r.Cast),
		Directors:   builtin.SplitList(r.Director),
		Line:        r.Line,
	}
}

// Transform normalizes a single batch and collapses duplicate show_ids inside
// it (first occurrence wins). It keeps no state between calls, so repeated
// calls with the same input return equal output.
func Transform(batch []catalog.RawRecord) []catalog.CanonicalTitle {
	out, _ := New().Apply(batch)
	return out
}

// Stats describes what one Apply call did.
type Stats struct {
	In         int // raw rows received
	Out        int // canonical titles emitted
	Duplicates int // rows dropped by keep-first
}

// Transformer is the run-scoped transformer. It remembers every natural key it
// has emitted, so a key that reappears in a later batch is dropped just like a
// duplicate inside one batch. A Transformer is not safe for concurrent use.
type Transformer struct {
	dedup *builtin.DeDup
	total Stats
}

// New returns a Transformer with an empty key set.
func New() *Transformer {
	return &Transformer{dedup: builtin.NewDeDup()}
}

// Apply normalizes batch and drops natural keys already seen in this or an
// earlier batch. The input slice is not modified.
func (t *Transformer) Apply(batch []catalog.RawRecord) ([]catalog.CanonicalTitle, Stats) {
	canon := make([]catalog.CanonicalTitle, len(batch))
	for i, r := range batch {
		canon[i] = Normalize(r)
	}
	out, dropped := t.dedup.Apply(canon)

	st := Stats{In: len(batch), Out: len(out), Duplicates: dropped}
	t.total.In += st.In
	t.total.Out += st.Out
	t.total.Duplicates += st.Duplicates
	return out, st
}

// Totals returns the stats accumulated over every Apply call.
func (t *Transformer) Totals() Stats { return t.total }

// DistinctKeys is the number of natural keys emitted so far.
func (t *Transformer) DistinctKeys() int { return t.dedup.Len() }
