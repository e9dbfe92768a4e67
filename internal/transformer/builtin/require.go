package builtin

import "catalogetl/internal/catalog"

// RequireKey partitions in into records that carry a natural key and records
// that do not. Both outputs keep input order; in is not modified.
func RequireKey(in []catalog.CanonicalTitle) (keyed, keyless []catalog.CanonicalTitle) {
	keyed = make([]catalog.CanonicalTitle, 0, len(in))
	for _, rec := range in {
		if rec.HasKey() {
			keyed = append(keyed, rec)
			continue
		}
		keyless = append(keyless, rec)
	}
	return keyed, keyless
}
