// Package datasource defines where the pipeline reads the catalog export
// from. Only local files exist today; the interface keeps the loader
// independent of that.
package datasource

import (
	"context"
	"fmt"
	"io"
)

// Source opens a fresh reader over a catalog export. Every call starts a new
// pass from the first byte; callers close the reader.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Named is implemented by sources that can say where they read from.
type Named interface {
	Name() string
}

// Describe returns a label for src suitable for logs.
func Describe(src Source) string {
	if n, ok := src.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", src)
}
