// Package mssql registers the SQL Server dialect (microsoft/go-mssqldb).
package mssql

import (
	"context"
	"embed"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"
	_ "github.com/microsoft/go-mssqldb" // registers the "sqlserver" driver
	"github.com/microsoft/go-mssqldb/msdsn"
	"github.com/pressly/goose/v3"

	"catalogetl/internal/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Kind is the storage kind of this dialect.
const Kind = "mssql"

// constraintErrors are the server error numbers treated as row-level
// failures.
var constraintErrors = map[int32]struct{}{
	245:  {}, // conversion failed
	515:  {}, // cannot insert NULL
	547:  {}, // foreign key or check constraint
	2601: {}, // duplicate key in unique index
	2627: {}, // unique constraint
	2628: {}, // string would be truncated
	8114: {}, // error converting data type
	8115: {}, // arithmetic overflow
	8152: {}, // string would be truncated (legacy message)
}

// Dialect implements storage.Dialect for SQL Server.
type Dialect struct{}

var _ storage.Dialect = Dialect{}

func init() { storage.Register(Dialect{}) }

func (Dialect) Kind() string                { return Kind }
func (Dialect) DriverName() string          { return "sqlserver" }
func (Dialect) BindType() int               { return sqlx.AT }
func (Dialect) GooseDialect() goose.Dialect { return goose.DialectMSSQL }

func (Dialect) Migrations() fs.FS {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// PrepareDSN validates the DSN early to fail fast on obvious mistakes.
func (Dialect) PrepareDSN(dsn string) (string, error) {
	dsn = strings.TrimSpace(dsn)
	if _, err := msdsn.Parse(dsn); err != nil {
		return "", errors.Wrap(err, "mssql: parse DSN")
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
	return storage.InsertNotExists(table, cols, vals, "")
}

// UpsertTitle uses MERGE with HOLDLOCK; without the hint two sessions can
// both take the NOT MATCHED branch.
func (Dialect) UpsertTitle(cols []string, key string) string {
	src := make([]string, len(cols))
	sets := make([]string, 0, len(cols))
	vals := make([]string, len(cols))
	for i, c := range cols {
		src[i] = "? AS " + c
		vals[i] = "s." + c
		if c != key {
			sets = append(sets, "t."+c+" = s."+c)
		}
	}
	return "MERGE INTO titles WITH (HOLDLOCK) AS t" +
		" USING (SELECT " + strings.Join(src, ", ") + ") AS s" +
		" ON t." + key + " = s." + key +
		" WHEN MATCHED THEN UPDATE SET " + strings.Join(sets, ", ") +
		" WHEN NOT MATCHED THEN INSERT (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(vals, ", ") + ");"
}

func (Dialect) SelectTop(n int, rest string) string {
	return "SELECT TOP (" + strconv.Itoa(n) + ") " + rest
}

func (Dialect) DateValue(t time.Time) any { return t }

func (Dialect) Savepoint(name string) string           { return "SAVE TRANSACTION " + name }
func (Dialect) RollbackToSavepoint(name string) string { return "ROLLBACK TRANSACTION " + name }
func (Dialect) ReleaseSavepoint(string) string         { return "" }

func (Dialect) IsConstraintViolation(err error) bool {
	var se interface{ SQLErrorNumber() int32 }
	if !errors.As(err, &se) {
		return false
	}
	_, ok := constraintErrors[se.SQLErrorNumber()]
	return ok
}

// Lock takes a session-owned application lock without waiting.
// sp_getapplock returns 0 or 1 when granted and a negative value otherwise.
func (Dialect) Lock(ctx context.Context, db *sqlx.DB, _ string) (func() error, error) {
	return storage.SessionLock(ctx, db,
		"DECLARE @r INT; "+
			"EXEC @r = sp_getapplock @Resource = @p1, @LockMode = 'Exclusive', @LockOwner = 'Session', @LockTimeout = 0; "+
			"SELECT @r;",
		func(v int64) bool { return v >= 0 },
		"EXEC sp_releaseapplock @Resource = @p1, @LockOwner = 'Session';",
		storage.LockName,
	)
}
