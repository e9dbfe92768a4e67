package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"
)

// Config selects a backend and the database to connect to.
type Config struct {
	Kind string
	DSN  string
}

// Store is an open connection pool bound to its dialect.
type Store struct {
	DB      *sqlx.DB
	Dialect Dialect
	DSN     string
}

// pingTimeout bounds the connectivity check in Open.
var pingTimeout = 5 * time.Second

// Open connects to cfg.DSN using the dialect registered for cfg.Kind, checks
// connectivity and applies the dialect's pool settings.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	d, err := Lookup(cfg.Kind)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.Errorf("%s: DSN must not be empty", cfg.Kind)
	}
	dsn, err := d.PrepareDSN(cfg.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: dsn", cfg.Kind)
	}
	db, err := sqlx.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: open", cfg.Kind)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "%s: ping", cfg.Kind)
	}
	if err := d.Configure(ctx, db); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "%s: configure", cfg.Kind)
	}
	return &Store{DB: db, Dialect: d, DSN: dsn}, nil
}

// New wraps an already open pool. It is used by tests that drive the store
// through sqlmock.
func New(db *sql.DB, d Dialect) *Store {
	return &Store{DB: sqlx.NewDb(db, d.DriverName()), Dialect: d}
}

// Close closes the pool.
func (s *Store) Close() error { return s.DB.Close() }

// Rebind converts a '?' query to the dialect's placeholder style.
func (s *Store) Rebind(query string) string {
	return sqlx.Rebind(s.Dialect.BindType(), query)
}

// Lock takes the run lock for this store's database.
func (s *Store) Lock(ctx context.Context) (func() error, error) {
	return s.Dialect.Lock(ctx, s.DB, s.DSN)
}

// WithTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back when fn returns an error or panics.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Wrapf(err, "rollback failed (%v)", rbErr)
			}
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}

// Count returns SELECT COUNT(*) FROM table [WHERE where].
func (s *Store) Count(ctx context.Context, table, where string, args ...any) (int64, error) {
	q := "SELECT COUNT(*) FROM " + table
	if where != "" {
		q += " WHERE " + where
	}
	var n int64
	if err := s.DB.GetContext(ctx, &n, s.Rebind(q), args...); err != nil {
		return 0, errors.Wrapf(err, "count %s", table)
	}
	return n, nil
}
