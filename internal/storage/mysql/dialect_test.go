package mysql

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-faster/errors"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogetl/internal/storage"
)

func TestRegistered(t *testing.T) {
	d, err := storage.Lookup("mysql")
	require.NoError(t, err)
	assert.Equal(t, Kind, d.Kind())
}

func TestPrepareDSN_ForcesClientFoundRows(t *testing.T) {
	got, err := Dialect{}.PrepareDSN("etl:pw@tcp(localhost:3306)/catalog")
	require.NoError(t, err)

	cfg, err := mysql.ParseDSN(got)
	require.NoError(t, err)
	assert.True(t, cfg.ClientFoundRows)
	assert.True(t, cfg.ParseTime)
	assert.Equal(t, "catalog", cfg.DBName)

	_, err = Dialect{}.PrepareDSN("not a dsn")
	assert.Error(t, err)
}

func TestIsConstraintViolation(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&mysql.MySQLError{Number: 1062}, true},
		{errors.Wrap(&mysql.MySQLError{Number: 1452}, "wrap"), true},
		{&mysql.MySQLError{Number: 1366}, true},
		{&mysql.MySQLError{Number: 1213}, false}, // deadlock
		{&mysql.MySQLError{Number: 1146}, false}, // no such table
		{errors.New("bad conn"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Dialect{}.IsConstraintViolation(tt.err), "%v", tt.err)
	}
}

func TestUpsertTitle(t *testing.T) {
	q := Dialect{}.UpsertTitle([]string{"show_id", "title", "rating"}, "show_id")
	assert.Equal(t,
		"INSERT INTO titles (show_id, title, rating) VALUES (?, ?, ?)"+
			" ON DUPLICATE KEY UPDATE title = VALUES(title), rating = VALUES(rating)", q)
}

func TestInsertIfAbsent(t *testing.T) {
	q, args := Dialect{}.InsertIfAbsent("genres", []string{"name"}, []any{"Dramas"})
	assert.Equal(t, "INSERT INTO genres (name) SELECT ? FROM DUAL WHERE NOT EXISTS (SELECT 1 FROM genres WHERE name = ?)", q)
	assert.Equal(t, []any{"Dramas", "Dramas"}, args)
}

func TestLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`GET_LOCK`).WithArgs(storage.LockName).
		WillReturnRows(sqlmock.NewRows([]string{"l"}).AddRow(1))
	mock.ExpectExec(`RELEASE_LOCK`).WithArgs(storage.LockName).
		WillReturnResult(sqlmock.NewResult(0, 0))

	unlock, err := Dialect{}.Lock(context.Background(), sqlx.NewDb(db, "mysql"), "")
	require.NoError(t, err)
	require.NoError(t, unlock())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLock_NullMeansHeld(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`GET_LOCK`).WithArgs(storage.LockName).
		WillReturnRows(sqlmock.NewRows([]string{"l"}).AddRow(nil))

	_, err = Dialect{}.Lock(context.Background(), sqlx.NewDb(db, "mysql"), "")
	assert.ErrorIs(t, err, storage.ErrLocked)
}
