// Package file implements a local filesystem-backed data source.
package file

import (
	"context"
	"io"
	"os"

	"github.com/go-faster/errors"
)

// Local opens a catalog export from the local disk.
type Local struct{ path string }

// NewLocal returns a Local bound to path.
func NewLocal(path string) *Local { return &Local{path: path} }

// Name returns the configured path.
func (l *Local) Name() string { return l.path }

// Open opens the file for a single sequential pass.
//
// A canceled context short-circuits before the filesystem is touched.
// Filesystem errors keep their cause so callers can test
// errors.Is(err, os.ErrNotExist). Directories are rejected.
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.path == "" {
		return nil, errors.New("open source: empty path")
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", l.path)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "stat %s", l.path)
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, errors.Errorf("open %s: is a directory", l.path)
	}
	adviseSequential(f)
	return f, nil
}
