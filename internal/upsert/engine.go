// Package upsert merges canonical titles into the catalog store. Each batch
// runs in one transaction: the genre, person and country lookups are
// resolved in bulk, then every title is written with its junction rows
// behind a savepoint.
package upsert

import (
	"context"
	"database/sql"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"catalogetl/internal/catalog"
	"catalogetl/internal/logging"
	"catalogetl/internal/storage"
	"catalogetl/internal/transformer/builtin"
)

// Mode selects how a title row is written.
type Mode string

const (
	// ModeUpdateThenInsert updates by show_id, checks whether the row exists
	// and inserts only when it does not. It needs a single writer.
	ModeUpdateThenInsert Mode = "update-then-insert"
	// ModeAtomic uses the backend's native insert-or-update statement.
	ModeAtomic Mode = "atomic"
)

// ParseMode accepts the mode names; "" means ModeUpdateThenInsert.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeUpdateThenInsert:
		return ModeUpdateThenInsert, nil
	case ModeAtomic:
		return ModeAtomic, nil
	}
	return "", errors.Errorf("upsert: unknown mode %q", s)
}

const savepoint = "sp_title"

// titleColumns is the column order used for every titles write.
var titleColumns = []string{
	"show_id", "type", "title", "director", "country",
	"date_added", "release_year", "rating", "duration", "description",
}

// Options configures an Engine.
type Options struct {
	Mode   Mode
	Logger *zap.Logger
}

// Engine writes batches of titles into a Store.
type Engine struct {
	store *storage.Store
	d     storage.Dialect
	mode  Mode
	log   *zap.Logger

	updateSQL string
	upsertSQL string
	insertSQL string
	selectSQL string
}

// New returns an Engine for store.
func New(store *storage.Store, opt Options) (*Engine, error) {
	mode, err := ParseMode(string(opt.Mode))
	if err != nil {
		return nil, err
	}
	d := store.Dialect
	sets := make([]string, 0, len(titleColumns)-1)
	for _, c := range titleColumns[1:] {
		sets = append(sets, c+" = ?")
	}
	return &Engine{
		store: store,
		d:     d,
		mode:  mode,
		log:   logging.OrNop(opt.Logger),

		updateSQL: store.Rebind("UPDATE titles SET " + strings.Join(sets, ", ") + " WHERE show_id = ?"),
		upsertSQL: store.Rebind(d.UpsertTitle(titleColumns, "show_id")),
		insertSQL: store.Rebind("INSERT INTO titles (" + strings.Join(titleColumns, ", ") + ") VALUES (" +
			storage.Placeholders(len(titleColumns)) + ")"),
		selectSQL: store.Rebind("SELECT title_id FROM titles WHERE show_id = ?"),
	}, nil
}

// Mode reports the title write mode in use.
func (e *Engine) Mode() Mode { return e.mode }

// BatchResult counts what LoadBatch did with one batch.
type BatchResult struct {
	Records  int // records handed in
	Inserted int // new titles
	Updated  int // existing titles rewritten in place
	Upserted int // titles written in atomic mode
	Failed   int // records rejected by a constraint, or lost with the batch
	Keyless  int // records without show_id, skipped
	Links    int64

	// FailedKeys lists the show_id of every rejected record.
	FailedKeys []string
}

// Written is the number of titles stored by the batch.
func (r BatchResult) Written() int { return r.Inserted + r.Updated + r.Upserted }

// LoadBatch writes batch in one transaction. Each title and its junction
// rows sit behind one savepoint: a constraint violation, or a lookup name
// the store rejected, fails that record only and the batch goes on. Any
// other error rolls back the whole batch and is returned.
func (e *Engine) LoadBatch(ctx context.Context, batch []catalog.CanonicalTitle) (BatchResult, error) {
	keyed, keyless := builtin.RequireKey(batch)
	for _, rec := range keyless {
		e.log.Warn("upsert: skipping record without show_id", zap.Int("line", rec.Line))
	}

	var res BatchResult
	err := e.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		res = BatchResult{Records: len(batch), Keyless: len(keyless)}

		ids, err := e.resolveAll(ctx, tx, keyed)
		if err != nil {
			return err
		}

		for i := range keyed {
			rec := &keyed[i]
			if table, name, ok := ids.unresolved(rec); ok {
				e.reject(&res, rec, errors.Errorf("%s %q was rejected", table, name))
				continue
			}
			outcome, links, err := e.writeTitle(ctx, tx, rec, ids)
			if err != nil {
				if !e.d.IsConstraintViolation(err) {
					return errors.Wrapf(err, "title %s", rec.Key())
				}
				e.reject(&res, rec, err)
				continue
			}
			switch outcome {
			case outcomeInserted:
				res.Inserted++
			case outcomeUpdated:
				res.Updated++
			default:
				res.Upserted++
			}
			res.Links += links
		}
		return nil
	})
	if err != nil {
		return BatchResult{Records: len(batch), Keyless: len(keyless), Failed: len(keyed)}, err
	}
	return res, nil
}

func (e *Engine) reject(res *BatchResult, rec *catalog.CanonicalTitle, err error) {
	res.Failed++
	res.FailedKeys = append(res.FailedKeys, rec.Key())
	e.log.Warn("upsert: row rejected",
		zap.String("show_id", rec.Key()),
		zap.Int("line", rec.Line),
		zap.Error(err),
	)
}

type outcome int

const (
	outcomeInserted outcome = iota + 1
	outcomeUpdated
	outcomeUpserted
)

// writeTitle writes one title and its junction rows behind a savepoint.
func (e *Engine) writeTitle(ctx context.Context, tx *sqlx.Tx, rec *catalog.CanonicalTitle, ids lookupIDs) (outcome, int64, error) {
	var (
		out   outcome
		links int64
	)
	err := e.guarded(ctx, tx, savepoint, func() error {
		var (
			id  int64
			err error
		)
		if e.mode == ModeAtomic {
			id, out, err = e.upsertAtomic(ctx, tx, rec)
		} else {
			id, out, err = e.updateThenInsert(ctx, tx, rec)
		}
		if err != nil {
			return err
		}
		links, err = e.link(ctx, tx, id, rec, ids)
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	return out, links, nil
}

// guarded runs fn behind the named savepoint. A constraint violation is
// returned after rolling back to the savepoint, so the transaction stays
// usable.
func (e *Engine) guarded(ctx context.Context, tx *sqlx.Tx, name string, fn func() error) error {
	if _, err := tx.ExecContext(ctx, e.d.Savepoint(name)); err != nil {
		return errors.Wrap(err, "savepoint")
	}
	if err := fn(); err != nil {
		if !e.d.IsConstraintViolation(err) {
			return err
		}
		if _, rbErr := tx.ExecContext(ctx, e.d.RollbackToSavepoint(name)); rbErr != nil {
			return errors.Wrap(rbErr, "rollback to savepoint")
		}
		if relErr := e.release(ctx, tx, name); relErr != nil {
			return relErr
		}
		return err
	}
	return e.release(ctx, tx, name)
}

func (e *Engine) release(ctx context.Context, tx *sqlx.Tx, name string) error {
	q := e.d.ReleaseSavepoint(name)
	if q == "" {
		return nil
	}
	if _, err := tx.ExecContext(ctx, q); err != nil {
		return errors.Wrap(err, "release savepoint")
	}
	return nil
}

// updateThenInsert updates the row by show_id, then looks it up. The lookup
// doubles as the existence check: an UPDATE that reports zero rows may have
// matched a row whose values did not change, so only a missing row is
// inserted.
func (e *Engine) updateThenInsert(ctx context.Context, tx *sqlx.Tx, rec *catalog.CanonicalTitle) (int64, outcome, error) {
	vals := e.titleValues(rec)
	args := make([]any, 0, len(vals))
	args = append(args, vals[1:]...)
	args = append(args, vals[0])
	r, err := tx.ExecContext(ctx, e.updateSQL, args...)
	if err != nil {
		return 0, 0, err
	}
	affected, err := r.RowsAffected()
	if err != nil {
		return 0, 0, errors.Wrap(err, "rows affected")
	}

	id, found, err := e.titleID(ctx, tx, rec.Key())
	if err != nil {
		return 0, 0, err
	}
	if found {
		if affected == 0 {
			e.log.Debug("upsert: title unchanged", zap.String("show_id", rec.Key()))
		}
		return id, outcomeUpdated, nil
	}

	if _, err := tx.ExecContext(ctx, e.insertSQL, vals...); err != nil {
		return 0, 0, err
	}
	id, found, err = e.titleID(ctx, tx, rec.Key())
	if err != nil {
		return 0, 0, err
	}
	if !found {
		return 0, 0, errors.Errorf("title %s missing after insert", rec.Key())
	}
	return id, outcomeInserted, nil
}

func (e *Engine) upsertAtomic(ctx context.Context, tx *sqlx.Tx, rec *catalog.CanonicalTitle) (int64, outcome, error) {
	if _, err := tx.ExecContext(ctx, e.upsertSQL, e.titleValues(rec)...); err != nil {
		return 0, 0, err
	}
	id, found, err := e.titleID(ctx, tx, rec.Key())
	if err != nil {
		return 0, 0, err
	}
	if !found {
		return 0, 0, errors.Errorf("title %s missing after upsert", rec.Key())
	}
	return id, outcomeUpserted, nil
}

func (e *Engine) titleID(ctx context.Context, tx *sqlx.Tx, key string) (int64, bool, error) {
	var id int64
	err := tx.GetContext(ctx, &id, e.selectSQL, key)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "select title_id")
	}
	return id, true, nil
}

// titleValues returns the values of rec in titleColumns order.
func (e *Engine) titleValues(rec *catalog.CanonicalTitle) []any {
	var date any
	if rec.DateAdded != nil {
		date = e.d.DateValue(*rec.DateAdded)
	}
	return []any{
		rec.Key(),
		nullable(rec.Type),
		nullable(rec.Title),
		nullable(rec.Director),
		nullable(rec.CountryRaw),
		date,
		nullable(rec.ReleaseYear),
		nullable(rec.Rating),
		nullable(rec.Duration),
		nullable(rec.Description),
	}
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
