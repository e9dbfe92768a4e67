// Package quality runs the post-load data-quality gate. The gate only reads
// the store; it reports violations and never repairs them.
package quality

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"catalogetl/internal/catalog"
	"catalogetl/internal/logging"
	"catalogetl/internal/storage"
)

// ErrCheckFailed is wrapped by the error Gate.Run returns when a check fails.
var ErrCheckFailed = errors.New("quality: check failed")

// Status is the outcome of one check.
type Status string

const (
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusSkipped Status = "skipped"
)

// Check names, in the order the gate runs them.
const (
	CheckTitlesNotEmpty   = "titles_not_empty"
	CheckShowIDNotNull    = "show_id_not_null"
	CheckTitleGenresFK    = "title_genres_fk"
	CheckTitleCastFK      = "title_cast_fk"
	CheckTitleCountriesFK = "title_countries_fk"
)

// CheckResult is one line of a Report. Count is the measured value: the
// titles row count for titles_not_empty, the number of offending rows for
// every other check.
type CheckResult struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Count  int64  `json:"count"`
}

// Report lists every check in run order.
type Report struct {
	Checks []CheckResult `json:"checks"`
}

// Passed reports whether no check failed.
func (r Report) Passed() bool { return r.FirstFailure() == nil }

// FirstFailure returns the failed check, or nil.
func (r Report) FirstFailure() *CheckResult {
	for i := range r.Checks {
		if r.Checks[i].Status == StatusFail {
			return &r.Checks[i]
		}
	}
	return nil
}

func (r Report) String() string {
	var b strings.Builder
	for _, c := range r.Checks {
		fmt.Fprintf(&b, "  %-20s %-8s count=%d\n", c.Name, c.Status, c.Count)
	}
	return b.String()
}

// LoadStats carries what the load observed but could not store.
type LoadStats struct {
	// KeylessRows is the number of records skipped for lacking a show_id.
	KeylessRows int64
}

type check struct {
	name string
	// measure returns the check's count and whether it passes.
	measure func(ctx context.Context, s *storage.Store, st LoadStats) (int64, bool, error)
}

// orphanQuery counts junction rows whose title or lookup row is missing.
func orphanQuery(junction, lookupTable, lookupID string) string {
	return "SELECT COUNT(*) FROM " + junction + " j" +
		" LEFT JOIN " + catalog.TableTitles + " t ON t.title_id = j.title_id" +
		" LEFT JOIN " + lookupTable + " l ON l." + lookupID + " = j." + lookupID +
		" WHERE t.title_id IS NULL OR l." + lookupID + " IS NULL"
}

func orphans(junction, lookupTable, lookupID string) func(context.Context, *storage.Store, LoadStats) (int64, bool, error) {
	q := orphanQuery(junction, lookupTable, lookupID)
	return func(ctx context.Context, s *storage.Store, _ LoadStats) (int64, bool, error) {
		var n int64
		if err := s.DB.GetContext(ctx, &n, q); err != nil {
			return 0, false, errors.Wrapf(err, "count orphans in %s", junction)
		}
		return n, n == 0, nil
	}
}

var checks = []check{
	{
		name: CheckTitlesNotEmpty,
		measure: func(ctx context.Context, s *storage.Store, _ LoadStats) (int64, bool, error) {
			n, err := s.Count(ctx, catalog.TableTitles, "")
			return n, n > 0, err
		},
	},
	{
		name: CheckShowIDNotNull,
		measure: func(ctx context.Context, s *storage.Store, st LoadStats) (int64, bool, error) {
			n, err := s.Count(ctx, catalog.TableTitles, "show_id IS NULL OR show_id = ''")
			n += st.KeylessRows
			return n, n == 0, err
		},
	},
	{name: CheckTitleGenresFK, measure: orphans(catalog.TableTitleGenres, catalog.TableGenres, "genre_id")},
	{name: CheckTitleCastFK, measure: orphans(catalog.TableTitleCast, catalog.TablePeople, "person_id")},
	{name: CheckTitleCountriesFK, measure: orphans(catalog.TableTitleCountries, catalog.TableCountries, "country_id")},
}

// Gate runs the checks against a store.
type Gate struct {
	store *storage.Store
	log   *zap.Logger
}

// NewGate returns a Gate reading from store.
func NewGate(store *storage.Store, log *zap.Logger) *Gate {
	return &Gate{store: store, log: logging.OrNop(log)}
}

// Run executes the checks in order and stops at the first failure; the
// remaining checks are reported as skipped. A failed check yields an error
// wrapping ErrCheckFailed; a query failure is returned as is.
func (g *Gate) Run(ctx context.Context, st LoadStats) (Report, error) {
	rep := Report{Checks: make([]CheckResult, 0, len(checks))}
	var failed error
	for _, c := range checks {
		if failed != nil {
			rep.Checks = append(rep.Checks, CheckResult{Name: c.name, Status: StatusSkipped})
			continue
		}
		n, ok, err := c.measure(ctx, g.store, st)
		if err != nil {
			return rep, errors.Wrapf(err, "quality: %s", c.name)
		}
		res := CheckResult{Name: c.name, Status: StatusPass, Count: n}
		if !ok {
			res.Status = StatusFail
			failed = errors.Wrapf(ErrCheckFailed, "%s (count=%d)", c.name, n)
			g.log.Error("quality: check failed", zap.String("check", c.name), zap.Int64("count", n))
		} else {
			g.log.Info("quality: check passed", zap.String("check", c.name), zap.Int64("count", n))
		}
		rep.Checks = append(rep.Checks, res)
	}
	return rep, failed
}
