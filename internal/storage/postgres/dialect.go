// Package postgres registers the Postgres dialect. Connections go through the
// pgx v5 database/sql adapter so the loader can stay on sqlx.
package postgres

import (
	"context"
	"embed"
	"io/fs"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"catalogetl/internal/logging"
	"catalogetl/internal/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Kind is the storage kind of this dialect.
const Kind = "postgres"

// lockKey is the advisory lock key of the run lock ("catalogetl" as bytes).
const lockKey int64 = 0x636174616c6f67

// Dialect implements storage.Dialect for Postgres.
type Dialect struct{}

var _ storage.Dialect = Dialect{}

func init() { storage.Register(Dialect{}) }

func (Dialect) Kind() string                { return Kind }
func (Dialect) DriverName() string          { return "pgx" }
func (Dialect) BindType() int               { return sqlx.DOLLAR }
func (Dialect) GooseDialect() goose.Dialect { return goose.DialectPostgres }

func (Dialect) Migrations() fs.FS {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// PrepareDSN checks that the DSN parses; URL and key=value forms are both
// accepted.
func (Dialect) PrepareDSN(dsn string) (string, error) {
	dsn = strings.TrimSpace(dsn)
	if _, err := pgx.ParseConfig(dsn); err != nil {
		// A url.Error inside repeats the DSN with its password.
		msg := strings.ReplaceAll(err.Error(), dsn, logging.RedactDSN(dsn))
		return "", errors.Errorf("postgres: parse DSN: %s", msg)
	}
	return dsn, nil
}

func (Dialect) Configure(_ context.Context, db *sqlx.DB) error {
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return nil
}

func (Dialect) InsertIfAbsent(table string, cols []string, vals []any) (string, []any) {
	return storage.InsertOnConflictNothing(table, cols, vals)
}

func (Dialect) UpsertTitle(cols []string, key string) string {
	return storage.UpsertOnConflict("titles", cols, key, "EXCLUDED")
}

func (Dialect) SelectTop(n int, rest string) string { return storage.LimitSuffix(n, rest) }
func (Dialect) DateValue(t time.Time) any           { return t }

func (Dialect) Savepoint(name string) string           { return "SAVEPOINT " + name }
func (Dialect) RollbackToSavepoint(name string) string { return "ROLLBACK TO SAVEPOINT " + name }
func (Dialect) ReleaseSavepoint(name string) string    { return "RELEASE SAVEPOINT " + name }

// IsConstraintViolation matches SQLSTATE class 23 (integrity constraint
// violation) and class 22 (data exception).
func (Dialect) IsConstraintViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return strings.HasPrefix(pgErr.Code, "23") || strings.HasPrefix(pgErr.Code, "22")
}

// Lock takes a session-level advisory lock without waiting.
func (Dialect) Lock(ctx context.Context, db *sqlx.DB, _ string) (func() error, error) {
	return storage.SessionLock(ctx, db,
		"SELECT CASE WHEN pg_try_advisory_lock($1) THEN 1 ELSE 0 END",
		func(v int64) bool { return v == 1 },
		"SELECT pg_advisory_unlock($1)",
		lockKey,
	)
}
