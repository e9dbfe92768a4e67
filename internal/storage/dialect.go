// Package storage contains the storage-agnostic contracts of the catalog
// loader: the Dialect each SQL backend implements, the Store that wraps an
// open connection pool, scoped transactions, schema migration and the
// batched load loop.
//
// Backends register a Dialect for their kind from init(); importing
// catalogetl/internal/storage/all enables every built-in backend.
package storage

import (
	"context"
	"io/fs"
	"sort"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
)

// Dialect captures everything that differs between SQL backends. Statements
// it returns use '?' placeholders; callers rebind them with BindType.
type Dialect interface {
	// Kind is the storage kind this dialect is registered under.
	Kind() string
	// DriverName is the database/sql driver to open.
	DriverName() string
	// BindType is the sqlx bind type for placeholders.
	BindType() int
	// GooseDialect names the dialect for schema migrations.
	GooseDialect() goose.Dialect
	// Migrations holds the versioned schema files at its root.
	Migrations() fs.FS

	// PrepareDSN validates dsn and adds any driver options the loader
	// depends on.
	PrepareDSN(dsn string) (string, error)
	// Configure tunes a freshly opened pool.
	Configure(ctx context.Context, db *sqlx.DB) error

	// InsertIfAbsent returns a statement that inserts the row (cols, vals)
	// into table unless a row with the same values already exists.
	InsertIfAbsent(table string, cols []string, vals []any) (string, []any)
	// UpsertTitle returns a single-statement insert-or-update of the titles
	// row keyed by key. Arguments follow cols order.
	UpsertTitle(cols []string, key string) string
	// SelectTop limits a "SELECT <rest>" query to n rows.
	SelectTop(n int, rest string) string
	// DateValue converts a calendar date to the value stored in DATE columns.
	DateValue(t time.Time) any

	Savepoint(name string) string
	RollbackToSavepoint(name string) string
	// ReleaseSavepoint returns "" when the backend has no release step.
	ReleaseSavepoint(name string) string

	// IsConstraintViolation reports whether err is a row-level integrity or
	// data error (unique, not null, foreign key, type mismatch) as opposed
	// to a connection or syntax failure.
	IsConstraintViolation(err error) bool

	// Lock takes the exclusive run lock for the target database. The
	// returned function releases it.
	Lock(ctx context.Context, db *sqlx.DB, dsn string) (func() error, error)
}

var (
	mu       sync.RWMutex
	dialects = map[string]Dialect{}
)

// Register makes a dialect available under d.Kind(). Registering the same
// kind again replaces the previous dialect.
func Register(d Dialect) {
	mu.Lock()
	defer mu.Unlock()
	dialects[d.Kind()] = d
}

// Lookup returns the dialect registered for kind.
func Lookup(kind string) (Dialect, error) {
	mu.RLock()
	d, ok := dialects[kind]
	mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("unsupported storage.kind=%s", kind)
	}
	return d, nil
}

// ListKinds returns the registered kinds in sorted order.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(dialects))
	for k := range dialects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
