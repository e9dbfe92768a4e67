// Package mysql registers the MySQL dialect (go-sql-driver/mysql).
package mysql

import (
	"context"
	"embed"
	"io/fs"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"catalogetl/internal/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Kind is the storage kind of this dialect.
const Kind = "mysql"

// constraintErrors are the server error numbers treated as row-level
// failures.
var constraintErrors = map[uint16]struct{}{
	1048: {}, // column cannot be null
	1062: {}, // duplicate entry
	1264: {}, // out of range value
	1292: {}, // incorrect date value
	1366: {}, // incorrect value for column
	1406: {}, // data too long
	1451: {}, // parent row referenced
	1452: {}, // foreign key fails
	3819: {}, // check constraint violated
}

// Dialect implements storage.Dialect for MySQL.
type Dialect struct{}

var _ storage.Dialect = Dialect{}

func init() { storage.Register(Dialect{}) }

func (Dialect) Kind() string                { return Kind }
func (Dialect) DriverName() string          { return "mysql" }
func (Dialect) BindType() int               { return sqlx.QUESTION }
func (Dialect) GooseDialect() goose.Dialect { return goose.DialectMySQL }

func (Dialect) Migrations() fs.FS {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// PrepareDSN forces clientFoundRows so an UPDATE reports matched rather than
// changed rows, and parseTime so DATE columns scan into time.Time.
func (Dialect) PrepareDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(strings.TrimSpace(dsn))
	if err != nil {
		return "", errors.Wrap(err, "mysql: parse DSN")
	}
	cfg.ClientFoundRows = true
	cfg.ParseTime = true
	if cfg.Loc == nil {
		cfg.Loc = time.UTC
	}
	return cfg.FormatDSN(), nil
}

func (Dialect) Configure(_ context.Context, db *sqlx.DB) error {
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(3 * time.Minute)
	return nil
}

func (Dialect) InsertIfAbsent(table string, cols []string, vals []any) (string, []any) {
	return storage.InsertNotExists(table, cols, vals, " FROM DUAL")
}

func (Dialect) UpsertTitle(cols []string, key string) string {
	sets := make([]string, 0, len(cols))
	for _, c := range cols {
		if c != key {
			sets = append(sets, c+" = VALUES("+c+")")
		}
	}
	return "INSERT INTO titles (" + strings.Join(cols, ", ") + ") VALUES (" +
		storage.Placeholders(len(cols)) + ") ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
}

func (Dialect) SelectTop(n int, rest string) string { return storage.LimitSuffix(n, rest) }
func (Dialect) DateValue(t time.Time) any           { return t }

func (Dialect) Savepoint(name string) string           { return "SAVEPOINT " + name }
func (Dialect) RollbackToSavepoint(name string) string { return "ROLLBACK TO SAVEPOINT " + name }
func (Dialect) ReleaseSavepoint(name string) string    { return "RELEASE SAVEPOINT " + name }

func (Dialect) IsConstraintViolation(err error) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	_, ok := constraintErrors[me.Number]
	return ok
}

// Lock takes a named server lock with GET_LOCK, which is held by the
// session that took it.
func (Dialect) Lock(ctx context.Context, db *sqlx.DB, _ string) (func() error, error) {
	return storage.SessionLock(ctx, db,
		"SELECT GET_LOCK(?, 0)",
		func(v int64) bool { return v == 1 },
		"SELECT RELEASE_LOCK(?)",
		storage.LockName,
	)
}
