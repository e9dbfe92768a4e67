package datasource

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type readerSource struct{ body string }

func (r readerSource) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(r.body)), nil
}

func TestDescribeFallsBackToType(t *testing.T) {
	assert.Equal(t, "datasource.readerSource", Describe(readerSource{}))
}
