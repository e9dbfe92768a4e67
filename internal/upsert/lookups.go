package upsert

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"catalogetl/internal/catalog"
)

// inChunk bounds the IN list of one lookup query; SQL Server caps a
// statement at 2100 parameters.
const inChunk = 500

const lookupSavepoint = "sp_lookup"

// lookup describes a name -> id table.
type lookup struct {
	table string
	id    string
}

var (
	genres    = lookup{table: catalog.TableGenres, id: "genre_id"}
	people    = lookup{table: catalog.TablePeople, id: "person_id"}
	countries = lookup{table: catalog.TableCountries, id: "country_id"}
)

// lookupIDs holds the ids resolved for one batch. A referenced name with no
// id was rejected by the store.
type lookupIDs struct {
	genres    map[string]int64
	people    map[string]int64
	countries map[string]int64
}

// resolveAll resolves every genre, person and country the batch references.
func (e *Engine) resolveAll(ctx context.Context, tx *sqlx.Tx, batch []catalog.CanonicalTitle) (lookupIDs, error) {
	var genreNames, personNames, countryNames []string
	for i := range batch {
		rec := &batch[i]
		genreNames = append(genreNames, rec.Genres...)
		personNames = append(personNames, rec.Cast...)
		personNames = append(personNames, rec.Directors...)
		countryNames = append(countryNames, rec.Countries...)
	}

	var (
		ids lookupIDs
		err error
	)
	if ids.genres, err = e.resolve(ctx, tx, genres, genreNames); err != nil {
		return ids, err
	}
	if ids.people, err = e.resolve(ctx, tx, people, personNames); err != nil {
		return ids, err
	}
	if ids.countries, err = e.resolve(ctx, tx, countries, countryNames); err != nil {
		return ids, err
	}
	return ids, nil
}

// unresolved reports the first name of rec that has no id.
func (ids lookupIDs) unresolved(rec *catalog.CanonicalTitle) (table, name string, ok bool) {
	check := func(m map[string]int64, names []string) (string, bool) {
		for _, n := range names {
			if _, found := m[n]; !found {
				return n, true
			}
		}
		return "", false
	}
	if n, bad := check(ids.genres, rec.Genres); bad {
		return catalog.TableGenres, n, true
	}
	if n, bad := check(ids.people, rec.Cast); bad {
		return catalog.TablePeople, n, true
	}
	if n, bad := check(ids.people, rec.Directors); bad {
		return catalog.TablePeople, n, true
	}
	if n, bad := check(ids.countries, rec.Countries); bad {
		return catalog.TableCountries, n, true
	}
	return "", "", false
}

// link adds the missing junction rows of one title and returns the number
// inserted.
func (e *Engine) link(ctx context.Context, tx *sqlx.Tx, id int64, rec *catalog.CanonicalTitle, ids lookupIDs) (int64, error) {
	var total int64
	add := func(table string, cols []string, vals ...any) error {
		q, args := e.d.InsertIfAbsent(table, cols, vals)
		r, err := tx.ExecContext(ctx, e.store.Rebind(q), args...)
		if err != nil {
			return errors.Wrapf(err, "insert %s", table)
		}
		if n, err := r.RowsAffected(); err == nil {
			total += n
		}
		return nil
	}

	for _, g := range rec.Genres {
		if err := add(catalog.TableTitleGenres, []string{"title_id", "genre_id"}, id, ids.genres[g]); err != nil {
			return total, err
		}
	}
	for _, p := range rec.Cast {
		if err := add(catalog.TableTitleCast, []string{"title_id", "person_id", "role_type"}, id, ids.people[p], string(catalog.RoleCast)); err != nil {
			return total, err
		}
	}
	for _, p := range rec.Directors {
		if err := add(catalog.TableTitleCast, []string{"title_id", "person_id", "role_type"}, id, ids.people[p], string(catalog.RoleDirector)); err != nil {
			return total, err
		}
	}
	for _, c := range rec.Countries {
		if err := add(catalog.TableTitleCountries, []string{"title_id", "country_id"}, id, ids.countries[c]); err != nil {
			return total, err
		}
	}
	return total, nil
}

// resolve maps every name to its id, creating the rows that do not exist
// yet: select existing, insert the missing ones, select again. A name the
// store rejects is logged and left out of the map.
func (e *Engine) resolve(ctx context.Context, tx *sqlx.Tx, lk lookup, names []string) (map[string]int64, error) {
	uniq := distinct(names)
	ids := make(map[string]int64, len(uniq))
	if len(uniq) == 0 {
		return ids, nil
	}
	if err := e.selectIDs(ctx, tx, lk, uniq, ids); err != nil {
		return nil, err
	}

	var missing []string
	for _, n := range uniq {
		if _, ok := ids[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) == 0 {
		return ids, nil
	}
	rejected := make(map[string]struct{})
	for _, n := range missing {
		q, args := e.d.InsertIfAbsent(lk.table, []string{"name"}, []any{n})
		err := e.guarded(ctx, tx, lookupSavepoint, func() error {
			_, err := tx.ExecContext(ctx, e.store.Rebind(q), args...)
			return err
		})
		if err == nil {
			continue
		}
		if !e.d.IsConstraintViolation(err) {
			return nil, errors.Wrapf(err, "insert %s %q", lk.table, n)
		}
		rejected[n] = struct{}{}
		e.log.Warn("upsert: lookup rejected",
			zap.String("table", lk.table),
			zap.String("name", n),
			zap.Error(err),
		)
	}
	if err := e.selectIDs(ctx, tx, lk, missing, ids); err != nil {
		return nil, err
	}
	for _, n := range missing {
		if _, ok := ids[n]; ok {
			continue
		}
		if _, ok := rejected[n]; !ok {
			return nil, errors.Errorf("%s %q not found after insert", lk.table, n)
		}
	}
	return ids, nil
}

func (e *Engine) selectIDs(ctx context.Context, tx *sqlx.Tx, lk lookup, names []string, into map[string]int64) error {
	for start := 0; start < len(names); start += inChunk {
		end := min(start+inChunk, len(names))
		q, args, err := sqlx.In("SELECT "+lk.id+" AS id, name FROM "+lk.table+" WHERE name IN (?)", names[start:end])
		if err != nil {
			return errors.Wrapf(err, "select %s", lk.table)
		}
		var rows []struct {
			ID   int64  `db:"id"`
			Name string `db:"name"`
		}
		if err := tx.SelectContext(ctx, &rows, e.store.Rebind(q), args...); err != nil {
			return errors.Wrapf(err, "select %s", lk.table)
		}
		for _, r := range rows {
			into[r.Name] = r.ID
		}
	}
	return nil
}

// distinct returns names without duplicates, in first-seen order.
func distinct(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
