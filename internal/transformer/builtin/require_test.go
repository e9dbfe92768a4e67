package builtin

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"catalogetl/internal/catalog"
)

func TestRequireKey(t *testing.T) {
	in := []catalog.CanonicalTitle{
		mk("s1", "A"),
		mk("", "B"),
		mk("s2", "C"),
		{Title: CleanScalar("D")},
	}
	keyed, keyless := RequireKey(in)
	assert.Equal(t, []string{"A", "C"}, titles(keyed))
	assert.Equal(t, []string{"B", "D"}, titles(keyless))
}

func TestRequireKey_Empty(t *testing.T) {
	keyed, keyless := RequireKey(nil)
	assert.Empty(t, keyed)
	assert.Empty(t, keyless)
}
