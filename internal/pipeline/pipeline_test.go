package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"catalogetl/internal/catalog"
	"catalogetl/internal/metrics"
	"catalogetl/internal/quality"
	"catalogetl/internal/storage"
	"catalogetl/internal/storage/sqlite"
	"catalogetl/internal/upsert"
)

const header = "show_id,type,title,director,cast,country,date_added,release_year,rating,duration,listed_in,description\n"

// catalogCSV has one intra-file duplicate (s1) and one short line.
const catalogCSV = header +
	`s1,Movie,Dick Johnson Is Dead,Kirsten Johnson,,United States,"September 25, 2021",2020,PG-13,90 min,Documentaries,A doc.` + "\n" +
	`s2,TV Show,Blood & Water,,"Ama Qamata, Khosi Ngema",South Africa,"September 24, 2021",2021,TV-MA,2 Seasons,"International TV Shows, TV Dramas",A drama.` + "\n" +
	`s4,Movie,Too Short` + "\n" +
	`s1,Movie,Duplicate,Someone,,,,2020,UR,1 min,Comedies,dup` + "\n" +
	`s3,Movie,Sankofa,Haile Gerima,"Kofi Ghanaba, Oyafunmike Ogunlano","United States, Ghana","September 24, 2021",1993,TV-MA,125 min,"Dramas, Independent Movies",A film.` + "\n"

func writeCSV(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "titles.csv")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func sqliteStore(t *testing.T) storage.Config {
	t.Helper()
	return storage.Config{Kind: sqlite.Kind, DSN: "file:" + filepath.Join(t.TempDir(), "catalog.db")}
}

func reopen(t *testing.T, cfg storage.Config) *storage.Store {
	t.Helper()
	s, err := storage.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRunLoadsCatalog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	cfg := sqliteStore(t)

	sum, err := Run(context.Background(), Options{
		SourcePath: writeCSV(t, catalogCSV),
		Store:      cfg,
		BatchSize:  2,
		Logger:     zap.New(core),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, sum.RunID)
	assert.EqualValues(t, 4, sum.RowsProcessed)
	assert.EqualValues(t, 3, sum.RowsLoaded)
	assert.EqualValues(t, 3, sum.Inserted)
	assert.EqualValues(t, 0, sum.RowsFailed)
	assert.EqualValues(t, 0, sum.KeylessRows)
	assert.EqualValues(t, 1, sum.Duplicates)
	assert.EqualValues(t, 1, sum.ParseErrors)
	assert.EqualValues(t, 3, sum.DistinctKeys)
	assert.EqualValues(t, 15, sum.Links)
	assert.Equal(t, 2, sum.BatchesCommitted)
	assert.Equal(t, 0, sum.BatchesFailed)
	assert.True(t, sum.Quality.Passed())
	require.NotNil(t, sum.Profile)
	assert.EqualValues(t, 3, sum.Profile.Titles)
	assert.Positive(t, sum.Elapsed)

	s := reopen(t, cfg)
	want := map[string]int64{
		catalog.TableTitles:         3,
		catalog.TableGenres:         5,
		catalog.TablePeople:         6,
		catalog.TableCountries:      3,
		catalog.TableTitleGenres:    5,
		catalog.TableTitleCast:      6,
		catalog.TableTitleCountries: 4,
	}
	for table, n := range want {
		got, err := s.Count(context.Background(), table, "")
		require.NoError(t, err)
		assert.Equal(t, n, got, table)
	}

	var title string
	require.NoError(t, s.DB.Get(&title, "SELECT title FROM titles WHERE show_id = 's1'"))
	assert.Equal(t, "Dick Johnson Is Dead", title, "first occurrence wins")

	assert.Equal(t, 1, logs.FilterMessage("csv: skipping malformed line").Len())
	assert.Equal(t, 1, logs.FilterMessage("pipeline: loading").FilterField(zap.String("mode", string(upsert.ModeUpdateThenInsert))).Len())
	for _, e := range logs.All() {
		assert.Equal(t, sum.RunID, e.ContextMap()["run_id"], e.Message)
	}
}

func TestRunKeylessRowFailsQualityGate(t *testing.T) {
	body := header +
		"s1,Movie,One,,,,,2020,PG,90 min,Dramas,x\n" +
		",Movie,No Key,,,,,2020,PG,90 min,Dramas,x\n" +
		"s3,Movie,Three,,,,,2020,PG,90 min,Dramas,x\n"

	sum, err := Run(context.Background(), Options{
		SourcePath: writeCSV(t, body),
		Store:      sqliteStore(t),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, quality.ErrCheckFailed)

	assert.EqualValues(t, 3, sum.RowsProcessed)
	assert.EqualValues(t, 2, sum.RowsLoaded)
	assert.EqualValues(t, 1, sum.KeylessRows)
	f := sum.Quality.FirstFailure()
	require.NotNil(t, f)
	assert.Equal(t, quality.CheckShowIDNotNull, f.Name)
	assert.EqualValues(t, 1, f.Count)
	assert.Nil(t, sum.Profile, "profile is not built after a failed gate")
}

// snapshot renders the store content without surrogate ids.
func snapshot(t *testing.T, cfg storage.Config) []string {
	t.Helper()
	s := reopen(t, cfg)
	queries := []string{
		"SELECT show_id || '|' || COALESCE(title, '') || '|' || COALESCE(rating, '') || '|' || COALESCE(release_year, '') FROM titles",
		"SELECT 'g|' || t.show_id || '|' || g.name FROM title_genres x JOIN titles t ON t.title_id = x.title_id JOIN genres g ON g.genre_id = x.genre_id",
		"SELECT 'p|' || t.show_id || '|' || p.name || '|' || x.role_type FROM title_cast x JOIN titles t ON t.title_id = x.title_id JOIN people p ON p.person_id = x.person_id",
		"SELECT 'c|' || t.show_id || '|' || c.name FROM title_countries x JOIN titles t ON t.title_id = x.title_id JOIN countries c ON c.country_id = x.country_id",
	}
	var out []string
	for _, q := range queries {
		var rows []string
		require.NoError(t, s.DB.Select(&rows, q+" ORDER BY 1"))
		out = append(out, rows...)
	}
	return out
}

func TestRunBatchSizeDoesNotChangeResult(t *testing.T) {
	body := header +
		`s1,Movie,First,Dir A,"Actor A, Actor B",France,"January 1, 2020",2019,UR,90 min,"Dramas, Comedies",x` + "\n" +
		`s2,Movie,Second,,Actor B,"France, Spain",,2018.0,R,80 min,Dramas,x` + "\n" +
		`s3,TV Show,Third,,,,,2021,TV-14,1 Season,Kids' TV,x` + "\n" +
		`s2,Movie,Second Again,Dir Z,Actor Z,Peru,,2000,G,1 min,Horror,x` + "\n" +
		`s1,Movie,First Again,,,,,1999,G,1 min,Horror,x` + "\n" +
		`s4,Movie,Fourth,Dir A,Actor A,Spain,,2022,PG,95 min,Comedies,x` + "\n"
	src := writeCSV(t, body)

	var ref []string
	for _, size := range []int{1, 2, 1000} {
		cfg := sqliteStore(t)
		sum, err := Run(context.Background(), Options{SourcePath: src, Store: cfg, BatchSize: size})
		require.NoError(t, err, "batch size %d", size)
		assert.EqualValues(t, 2, sum.Duplicates, "batch size %d", size)
		assert.EqualValues(t, 4, sum.RowsLoaded, "batch size %d", size)

		got := snapshot(t, cfg)
		if ref == nil {
			ref = got
			require.NotEmpty(t, ref)
			assert.Contains(t, ref, "s1|First|Unrated|2019")
			assert.Contains(t, ref, "s2|Second|R|2018")
			continue
		}
		assert.Equal(t, ref, got, "batch size %d", size)
	}
}

func TestRunTwiceIsIdempotent(t *testing.T) {
	cfg := sqliteStore(t)
	src := writeCSV(t, catalogCSV)

	for _, mode := range []upsert.Mode{upsert.ModeUpdateThenInsert, upsert.ModeAtomic} {
		_, err := Run(context.Background(), Options{SourcePath: src, Store: cfg, Mode: mode})
		require.NoError(t, err)
	}
	first := snapshot(t, cfg)

	sum, err := Run(context.Background(), Options{SourcePath: src, Store: cfg})
	require.NoError(t, err)
	assert.EqualValues(t, 3, sum.Updated)
	assert.EqualValues(t, 0, sum.Inserted)
	assert.Equal(t, first, snapshot(t, cfg))
}

func TestRunFatalErrors(t *testing.T) {
	t.Run("missing source", func(t *testing.T) {
		_, err := Run(context.Background(), Options{
			SourcePath: filepath.Join(t.TempDir(), "nope.csv"),
			Store:      sqliteStore(t),
		})
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("empty source", func(t *testing.T) {
		_, err := Run(context.Background(), Options{SourcePath: writeCSV(t, ""), Store: sqliteStore(t)})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty source")
	})

	t.Run("unknown store kind", func(t *testing.T) {
		_, err := Run(context.Background(), Options{
			SourcePath: writeCSV(t, catalogCSV),
			Store:      storage.Config{Kind: "oracle", DSN: "x"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported storage.kind=oracle")
	})

	t.Run("store unreachable", func(t *testing.T) {
		orig := openStore
		t.Cleanup(func() { openStore = orig })
		boom := errors.New("connection refused")
		openStore = func(context.Context, storage.Config) (*storage.Store, error) { return nil, boom }

		_, err := Run(context.Background(), Options{SourcePath: writeCSV(t, catalogCSV), Store: sqliteStore(t)})
		require.ErrorIs(t, err, boom)
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Run(ctx, Options{SourcePath: writeCSV(t, catalogCSV), Store: sqliteStore(t)})
		require.ErrorIs(t, err, context.Canceled)
	})
}

type recordingBackend struct {
	mu       sync.Mutex
	counters []string
}

func (r *recordingBackend) IncCounter(name string, delta float64, l metrics.Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	parts := []string{name}
	for _, k := range []string{"step", "status", "kind", "check"} {
		if v, ok := l[k]; ok {
			parts = append(parts, k+"="+v)
		}
	}
	r.counters = append(r.counters, strings.Join(parts, " "))
}

func (r *recordingBackend) ObserveHistogram(string, float64, metrics.Labels) {}
func (r *recordingBackend) Flush() error                                    { return nil }

func TestRunRecordsMetrics(t *testing.T) {
	rb := &recordingBackend{}
	metrics.SetBackend(rb)
	t.Cleanup(metrics.Reset)

	_, err := Run(context.Background(), Options{SourcePath: writeCSV(t, catalogCSV), Store: sqliteStore(t)})
	require.NoError(t, err)

	for _, want := range []string{
		metrics.StepTotal + " step=schema status=success",
		metrics.StepTotal + " step=load status=success",
		metrics.StepTotal + " step=quality status=success",
		metrics.StepTotal + " step=profile status=success",
		metrics.RecordsTotal + " kind=processed",
		metrics.RecordsTotal + " kind=duplicate",
		metrics.RecordsTotal + " kind=parse_error",
		metrics.BatchesTotal + " status=committed",
		metrics.ChecksTotal + " status=pass check=" + quality.CheckTitleCastFK,
	} {
		assert.Contains(t, rb.counters, want)
	}
	assert.NotContains(t, rb.counters, metrics.RecordsTotal+" kind=keyless", "zero counts are not sent")
}

func TestCheckAndProfileOnExistingStore(t *testing.T) {
	cfg := sqliteStore(t)
	_, err := Run(context.Background(), Options{SourcePath: writeCSV(t, catalogCSV), Store: cfg})
	require.NoError(t, err)

	rep, err := Check(context.Background(), StoreOptions{Store: cfg})
	require.NoError(t, err)
	assert.True(t, rep.Passed())
	assert.Len(t, rep.Checks, 5)

	p, err := Profile(context.Background(), StoreOptions{Store: cfg, TopN: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 3, p.Titles)
	for _, top := range p.Top {
		assert.LessOrEqual(t, len(top.Items), 1, top.Name)
	}
}

func TestCheckEmptyStoreFails(t *testing.T) {
	cfg := sqliteStore(t)
	s := reopen(t, cfg)
	require.NoError(t, s.EnsureSchema(context.Background(), zap.NewNop()))

	rep, err := Check(context.Background(), StoreOptions{Store: cfg})
	require.ErrorIs(t, err, quality.ErrCheckFailed)
	assert.Equal(t, quality.CheckTitlesNotEmpty, rep.FirstFailure().Name)
}

func TestSummaryWriteText(t *testing.T) {
	sum := Summary{
		RunID:            "r-1",
		RowsProcessed:    3,
		RowsLoaded:       2,
		KeylessRows:      1,
		DistinctKeys:     2,
		BatchesCommitted: 1,
		MissingColumns:   []string{"cast"},
		Quality: quality.Report{Checks: []quality.CheckResult{
			{Name: quality.CheckTitlesNotEmpty, Status: quality.StatusPass, Count: 2},
			{Name: quality.CheckShowIDNotNull, Status: quality.StatusFail, Count: 1},
			{Name: quality.CheckTitleGenresFK, Status: quality.StatusSkipped},
		}},
	}
	var buf bytes.Buffer
	require.NoError(t, sum.WriteText(&buf))
	out := buf.String()

	for _, want := range []string{
		"rows processed      3\n",
		"rows loaded         2\n",
		"rows failed         0\n",
		"keyless rows        1\n",
		"duplicates dropped  0\n",
		"parse errors        0\n",
		"distinct keys       2\n",
		"batches committed   1\n",
		"batches failed      0\n",
		"missing columns     cast\n",
		"data quality        FAIL (show_id_not_null count=1)\n",
		"title_genres_fk",
		"skipped",
	} {
		assert.Contains(t, out, want)
	}

	buf.Reset()
	require.NoError(t, Summary{}.WriteText(&buf))
	assert.Contains(t, buf.String(), "not run")
}
