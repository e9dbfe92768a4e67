package builtin

import (
	"github.com/zeebo/xxh3"

	"catalogetl/internal/catalog"
)

// DeDup collapses records that share a natural key (show_id) using the
// keep-first policy: the earliest occurrence in input order wins and every
// later duplicate is dropped.
//
// Keep-first is chosen over keep-last because it can be decided while
// streaming: once a key has been emitted it never has to be revisited, so a
// DeDup that lives for a whole run gives the same result for any batch size.
// The set stores 128-bit xxh3 digests of the keys (16 bytes per key) rather
// than the keys themselves.
//
// Records without a key are passed through untouched and in place; they are
// not part of the de-dup domain.
type DeDup struct {
	seen map[xxh3.Uint128]struct{}
}

// NewDeDup returns an empty DeDup.
func NewDeDup() *DeDup {
	return &DeDup{seen: make(map[xxh3.Uint128]struct{})}
}

// Apply returns the records of in that survive the policy, in input order,
// plus the number of duplicates dropped. The input slice is not modified.
func (d *DeDup) Apply(in []catalog.CanonicalTitle) ([]catalog.CanonicalTitle, int) {
	if d.seen == nil {
		d.seen = make(map[xxh3.Uint128]struct{})
	}
	out := make([]catalog.CanonicalTitle, 0, len(in))
	dropped := 0
	for _, rec := range in {
		if !rec.HasKey() {
			out = append(out, rec)
			continue
		}
		h := xxh3.HashString128(rec.Key())
		if _, dup := d.seen[h]; dup {
			dropped++
			continue
		}
		d.seen[h] = struct{}{}
		out = append(out, rec)
	}
	return out, dropped
}

// Len reports how many distinct keys have been emitted so far.
func (d *DeDup) Len() int { return len(d.seen) }
