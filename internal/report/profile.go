// Package report builds read-only profiles of a loaded catalog store and
// renders them as text, JSON or XLSX.
package report

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"catalogetl/internal/catalog"
	"catalogetl/internal/storage"
)

// DefaultTopN is the number of top categories listed when Options.TopN is
// not set.
const DefaultTopN = 5

// profiledColumns are the nullable titles columns whose null counts are
// reported.
var profiledColumns = []string{
	"type", "title", "director", "country", "date_added",
	"release_year", "rating", "duration", "description",
}

// categoricalColumns get a distinct-value count.
var categoricalColumns = []string{"type", "rating", "release_year", "country", "director"}

// Options tunes Build.
type Options struct {
	TopN int
}

// ColumnCount pairs a column or table with a count.
type ColumnCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Category is one entry of a top-N list.
type Category struct {
	Name  string `db:"name" json:"name"`
	Count int64  `db:"n" json:"count"`
}

// TopList is a ranked list of categories by title count.
type TopList struct {
	Name  string     `json:"name"`
	Items []Category `json:"items"`
}

// Profile is a snapshot of the store's content.
type Profile struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Titles      int64         `json:"titles"`
	Nulls       []ColumnCount `json:"null_counts"`
	Distinct    []ColumnCount `json:"distinct_counts"`
	Tables      []ColumnCount `json:"table_sizes"`
	Top         []TopList     `json:"top"`
}

// topQuery describes one top-N list: rest is a SELECT body without the
// SELECT keyword returning (name, n).
type topQuery struct {
	name string
	rest string
}

func joinedTop(junction, lookup, id, where string) string {
	q := "l.name AS name, COUNT(*) AS n FROM " + junction + " j JOIN " + lookup + " l ON l." + id + " = j." + id
	if where != "" {
		q += " WHERE " + where
	}
	return q + " GROUP BY l.name ORDER BY n DESC, l.name"
}

func columnTop(col string) string {
	return col + " AS name, COUNT(*) AS n FROM " + catalog.TableTitles +
		" WHERE " + col + " IS NOT NULL GROUP BY " + col + " ORDER BY n DESC, " + col
}

var topQueries = []topQuery{
	{name: "genres", rest: joinedTop(catalog.TableTitleGenres, catalog.TableGenres, "genre_id", "")},
	{name: "countries", rest: joinedTop(catalog.TableTitleCountries, catalog.TableCountries, "country_id", "")},
	{name: "ratings", rest: columnTop("rating")},
	{name: "types", rest: columnTop("type")},
	{name: "cast", rest: joinedTop(catalog.TableTitleCast, catalog.TablePeople, "person_id", "j.role_type = 'cast'")},
}

// Build reads the profile from s. It issues only SELECT statements.
func Build(ctx context.Context, s *storage.Store, opt Options) (*Profile, error) {
	topN := opt.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}
	p := &Profile{GeneratedAt: time.Now().UTC()}

	// COUNT(col) skips NULLs, so total - COUNT(col) is the null count.
	counts := make([]string, 0, len(profiledColumns)+1)
	counts = append(counts, "COUNT(*)")
	for _, c := range profiledColumns {
		counts = append(counts, "COUNT("+c+")")
	}
	ints := make([]int64, len(counts))
	dest := make([]any, len(ints))
	for i := range ints {
		dest[i] = &ints[i]
	}
	q := "SELECT " + strings.Join(counts, ", ") + " FROM " + catalog.TableTitles
	if err := s.DB.QueryRowContext(ctx, q).Scan(dest...); err != nil {
		return nil, errors.Wrap(err, "report: column counts")
	}
	p.Titles = ints[0]
	for i, c := range profiledColumns {
		p.Nulls = append(p.Nulls, ColumnCount{Name: c, Count: p.Titles - ints[i+1]})
	}

	for _, c := range categoricalColumns {
		var n int64
		if err := s.DB.GetContext(ctx, &n, "SELECT COUNT(DISTINCT "+c+") FROM "+catalog.TableTitles); err != nil {
			return nil, errors.Wrapf(err, "report: distinct %s", c)
		}
		p.Distinct = append(p.Distinct, ColumnCount{Name: c, Count: n})
	}

	for _, t := range catalog.Tables[1:] {
		n, err := s.Count(ctx, t, "")
		if err != nil {
			return nil, errors.Wrap(err, "report")
		}
		p.Tables = append(p.Tables, ColumnCount{Name: t, Count: n})
	}

	for _, tq := range topQueries {
		var items []Category
		q := s.Dialect.SelectTop(topN, tq.rest)
		if err := s.DB.SelectContext(ctx, &items, q); err != nil {
			return nil, errors.Wrapf(err, "report: top %s", tq.name)
		}
		if items == nil {
			items = []Category{}
		}
		p.Top = append(p.Top, TopList{Name: tq.name, Items: items})
	}
	return p, nil
}
