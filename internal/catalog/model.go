// Package catalog holds the record types that flow through the catalog
// pipeline: the raw CSV row as read from the export and the canonical title
// produced by the transformer.
package catalog

import "time"

// RawRecord is one source row. Every field is untyped text; a column that is
// missing from the file and a blank cell both decode to "".
type RawRecord struct {
	ShowID      string `csv:"show_id"`
	Type        string `csv:"type"`
	Title       string `csv:"title"`
	Director    string `csv:"director"`
	Cast        string `csv:"cast"`
	Country     string `csv:"country"`
	DateAdded   string `csv:"date_added"`
	ReleaseYear string `csv:"release_year"`
	Rating      string `csv:"rating"`
	Duration    string `csv:"duration"`
	ListedIn    string `csv:"listed_in"`
	Description string `csv:"description"`

	// Line is the 1-based line number in the source file (header is line 1).
	Line int `csv:"-"`
}

// ExpectedColumns lists the header names a source file is expected to carry.
var ExpectedColumns = []string{
	"show_id", "type", "title", "director", "cast", "country",
	"date_added", "release_year", "rating", "duration", "listed_in", "description",
}

// CanonicalTitle is a RawRecord after normalization. Nil pointers mean the
// value was absent or unparseable.
type CanonicalTitle struct {
	ShowID      *string
	Type        *string
	Title       *string
	Director    *string
	CountryRaw  *string
	DateAdded   *time.Time
	ReleaseYear *int
	Rating      *string
	Duration    *string
	Description *string

	Genres    []string
	Countries []string
	Cast      []string
	Directors []string

	Line int
}

// Key returns the natural key, or "" when the record has none.
func (t CanonicalTitle) Key() string {
	if t.ShowID == nil {
		return ""
	}
	return *t.ShowID
}

// HasKey reports whether the record carries a usable natural key.
func (t CanonicalTitle) HasKey() bool { return t.ShowID != nil && *t.ShowID != "" }

// Role discriminates the title_cast junction rows.
type Role string

const (
	RoleCast     Role = "cast"
	RoleDirector Role = "director"
)

// Table names of the target schema.
const (
	TableTitles         = "titles"
	TableGenres         = "genres"
	TablePeople         = "people"
	TableCountries      = "countries"
	TableTitleGenres    = "title_genres"
	TableTitleCast      = "title_cast"
	TableTitleCountries = "title_countries"
)

// Tables lists every table the pipeline owns, lookups before junctions.
var Tables = []string{
	TableTitles,
	TableGenres,
	TablePeople,
	TableCountries,
	TableTitleGenres,
	TableTitleCast,
	TableTitleCountries,
}
