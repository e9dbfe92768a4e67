// Package sqlite registers the SQLite dialect, the default backend of the
// catalog loader. It uses the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"embed"
	"io/fs"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"catalogetl/internal/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Kind is the storage kind of this dialect.
const Kind = "sqlite"

// Dialect implements storage.Dialect for SQLite.
type Dialect struct{}

var _ storage.Dialect = Dialect{}

func init() { storage.Register(Dialect{}) }

func (Dialect) Kind() string                { return Kind }
func (Dialect) DriverName() string          { return "sqlite" }
func (Dialect) BindType() int               { return sqlx.QUESTION }
func (Dialect) GooseDialect() goose.Dialect { return goose.DialectSQLite3 }

func (Dialect) Migrations() fs.FS {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// PrepareDSN turns foreign keys on and sets a busy timeout for every
// connection unless the DSN already says otherwise.
func (Dialect) PrepareDSN(dsn string) (string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", errors.New("sqlite: DSN must not be empty")
	}
	var add []string
	if !strings.Contains(dsn, "foreign_keys") {
		add = append(add, "_pragma=foreign_keys(1)")
	}
	if !strings.Contains(dsn, "busy_timeout") {
		add = append(add, "_pragma=busy_timeout(5000)")
	}
	if len(add) == 0 {
		return dsn, nil
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(add, "&"), nil
}

// Configure pins the pool to one connection. SQLite has a single writer, and
// an in-memory database only lives as long as its connection.
func (Dialect) Configure(ctx context.Context, db *sqlx.DB) error {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	_, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON")
	return err
}

func (Dialect) InsertIfAbsent(table string, cols []string, vals []any) (string, []any) {
	return storage.InsertOnConflictNothing(table, cols, vals)
}

func (Dialect) UpsertTitle(cols []string, key string) string {
	return storage.UpsertOnConflict("titles", cols, key, "excluded")
}

func (Dialect) SelectTop(n int, rest string) string { return storage.LimitSuffix(n, rest) }

// DateValue stores dates as ISO-8601 text, SQLite's native date format.
func (Dialect) DateValue(t time.Time) any { return t.Format(time.DateOnly) }

func (Dialect) Savepoint(name string) string           { return "SAVEPOINT " + name }
func (Dialect) RollbackToSavepoint(name string) string { return "ROLLBACK TO SAVEPOINT " + name }
func (Dialect) ReleaseSavepoint(name string) string    { return "RELEASE SAVEPOINT " + name }

// IsConstraintViolation matches SQLITE_CONSTRAINT and SQLITE_MISMATCH,
// including their extended codes.
func (Dialect) IsConstraintViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_CONSTRAINT, sqlite3.SQLITE_MISMATCH:
		return true
	}
	return false
}

// Lock takes an exclusive flock on "<database file>.lock". In-memory
// databases are private to the process and need no lock.
func (Dialect) Lock(_ context.Context, _ *sqlx.DB, dsn string) (func() error, error) {
	path := DatabasePath(dsn)
	if path == "" {
		return func() error { return nil }, nil
	}
	return lockFile(path + ".lock")
}

// DatabasePath extracts the database file from a DSN. It returns "" for
// in-memory databases.
func DatabasePath(dsn string) string {
	p := strings.TrimSpace(dsn)
	query := ""
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p, query = p[:i], p[i+1:]
	}
	p = strings.TrimPrefix(p, "file:")
	if p == "" || p == ":memory:" || strings.Contains(query, "mode=memory") {
		return ""
	}
	return p
}
