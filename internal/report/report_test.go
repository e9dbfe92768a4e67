package report_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"catalogetl/internal/catalog"
	"catalogetl/internal/report"
	"catalogetl/internal/storage"
	"catalogetl/internal/storage/sqlite"
	"catalogetl/internal/transformer"
	"catalogetl/internal/upsert"
)

func loadedStore(t *testing.T) *storage.Store {
	t.Helper()
	ctx := context.Background()
	s, err := storage.Open(ctx, storage.Config{Kind: sqlite.Kind, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.EnsureSchema(ctx, zap.NewNop()))

	e, err := upsert.New(s, upsert.Options{})
	require.NoError(t, err)
	_, err = e.LoadBatch(ctx, transformer.Transform([]catalog.RawRecord{
		{ShowID: "s1", Type: "Movie", Rating: "TV-MA", ListedIn: "Dramas, Thrillers", Cast: "Ana, Bo", Country: "India", ReleaseYear: "2020"},
		{ShowID: "s2", Type: "Movie", Rating: "TV-MA", ListedIn: "Dramas", Cast: "Ana", Country: "India, Peru", ReleaseYear: "2020"},
		{ShowID: "s3", Type: "TV Show", ListedIn: "Comedies", Director: "Ana"},
	}))
	require.NoError(t, err)
	return s
}

func byName(rows []report.ColumnCount) map[string]int64 {
	m := make(map[string]int64, len(rows))
	for _, r := range rows {
		m[r.Name] = r.Count
	}
	return m
}

func topList(p *report.Profile, name string) []report.Category {
	for _, t := range p.Top {
		if t.Name == name {
			return t.Items
		}
	}
	return nil
}

func TestBuild(t *testing.T) {
	s := loadedStore(t)
	p, err := report.Build(context.Background(), s, report.Options{TopN: 2})
	require.NoError(t, err)

	assert.EqualValues(t, 3, p.Titles)

	nulls := byName(p.Nulls)
	assert.EqualValues(t, 1, nulls["rating"])
	assert.EqualValues(t, 2, nulls["director"])
	assert.EqualValues(t, 3, nulls["date_added"])
	assert.EqualValues(t, 3, nulls["title"])

	distinct := byName(p.Distinct)
	assert.EqualValues(t, 2, distinct["type"])
	assert.EqualValues(t, 1, distinct["rating"])
	assert.EqualValues(t, 1, distinct["release_year"])
	assert.EqualValues(t, 2, distinct["country"])

	tables := byName(p.Tables)
	assert.EqualValues(t, 3, tables[catalog.TableGenres])
	assert.EqualValues(t, 2, tables[catalog.TablePeople])
	assert.EqualValues(t, 2, tables[catalog.TableCountries])

	assert.Equal(t, []report.Category{{Name: "Dramas", Count: 2}, {Name: "Comedies", Count: 1}}, topList(p, "genres"))
	assert.Equal(t, []report.Category{{Name: "India", Count: 2}, {Name: "Peru", Count: 1}}, topList(p, "countries"))
	assert.Equal(t, []report.Category{{Name: "TV-MA", Count: 2}}, topList(p, "ratings"))
	assert.Equal(t, []report.Category{{Name: "Movie", Count: 2}, {Name: "TV Show", Count: 1}}, topList(p, "types"))
	assert.Equal(t, []report.Category{{Name: "Ana", Count: 2}, {Name: "Bo", Count: 1}}, topList(p, "cast"), "directors are not cast")
}

func TestBuild_EmptyStore(t *testing.T) {
	ctx := context.Background()
	s, err := storage.Open(ctx, storage.Config{Kind: sqlite.Kind, DSN: ":memory:"})
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.EnsureSchema(ctx, zap.NewNop()))

	p, err := report.Build(ctx, s, report.Options{})
	require.NoError(t, err)
	assert.Zero(t, p.Titles)
	require.Len(t, p.Top, 5)
	assert.NotNil(t, p.Top[0].Items)
	assert.Empty(t, p.Top[0].Items)
}

func TestRender(t *testing.T) {
	s := loadedStore(t)
	p, err := report.Build(context.Background(), s, report.Options{})
	require.NoError(t, err)

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, report.Render(&buf, p, ""))
		out := buf.String()
		assert.Contains(t, out, "titles  3")
		assert.Contains(t, out, "top genres")
		assert.Contains(t, out, "1. Dramas")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, report.Render(&buf, p, "json"))
		var back report.Profile
		require.NoError(t, json.Unmarshal(buf.Bytes(), &back))
		assert.Equal(t, p.Titles, back.Titles)
		assert.Equal(t, p.Top, back.Top)
	})

	t.Run("xlsx", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, report.Render(&buf, p, "XLSX"))
		f, err := excelize.OpenReader(&buf)
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, []string{report.SheetSummary, report.SheetTop}, f.GetSheetList())

		rows, err := f.GetRows(report.SheetSummary)
		require.NoError(t, err)
		assert.Equal(t, []string{"section", "name", "count"}, rows[0])
		assert.Equal(t, []string{"titles", "titles", "3"}, rows[1])

		top, err := f.GetRows(report.SheetTop)
		require.NoError(t, err)
		assert.Equal(t, []string{"genres", "1", "Dramas", "2"}, top[1])
	})

	t.Run("unknown", func(t *testing.T) {
		assert.Error(t, report.Render(&bytes.Buffer{}, p, "pdf"))
	})
}
