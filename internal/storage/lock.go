package storage

import (
	"context"
	"database/sql"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"
)

// ErrLocked is returned when another run holds the lock on the target.
var ErrLocked = errors.New("storage: another run holds the catalog lock")

// LockName identifies the run lock on servers with named session locks.
const LockName = "catalogetl"

// SessionLock takes a server-side session lock on a dedicated connection.
// acquire must return a single integer; ok decides whether it means the lock
// was granted. The connection stays checked out until the returned function
// runs release and closes it.
func SessionLock(
	ctx context.Context,
	db *sqlx.DB,
	acquire string,
	ok func(int64) bool,
	release string,
	args ...any,
) (func() error, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "lock: conn")
	}
	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, acquire, args...).Scan(&got); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "lock: acquire")
	}
	if !got.Valid || !ok(got.Int64) {
		_ = conn.Close()
		return nil, ErrLocked
	}
	return func() error {
		// Release on a fresh context; the run's context may already be done.
		_, err := conn.ExecContext(context.Background(), release, args...)
		if cerr := conn.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return errors.Wrap(err, "lock: release")
		}
		return nil
	}, nil
}
