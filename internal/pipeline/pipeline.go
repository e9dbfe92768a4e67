// Package pipeline runs a catalog load end to end: schema initialization,
// batched transform and upsert, the data-quality gate and the profiling
// report.
//
// Stats reported in Summary obey, for every run that reached the end of the
// input:
//
//	processed == loaded + failed + keyless + duplicates
//
// where processed counts the rows the CSV reader decoded (malformed lines are
// parse errors and never enter the count).
package pipeline

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"catalogetl/internal/catalog"
	"catalogetl/internal/datasource"
	"catalogetl/internal/datasource/file"
	"catalogetl/internal/logging"
	"catalogetl/internal/metrics"
	csvparser "catalogetl/internal/parser/csv"
	"catalogetl/internal/quality"
	"catalogetl/internal/report"
	"catalogetl/internal/storage"
	"catalogetl/internal/transformer"
	"catalogetl/internal/upsert"
)

// Step names used in logs and metrics.
const (
	StepSchema  = "schema"
	StepLoad    = "load"
	StepQuality = "quality"
	StepProfile = "profile"
)

// DefaultBatchSize is used when Options.BatchSize is not positive.
const DefaultBatchSize = 1000

// Function variables used as test seams.
var (
	openStore  = storage.Open
	openSource = func(path string) datasource.Source { return file.NewLocal(path) }
)

// Options configures one run.
type Options struct {
	// SourcePath is the CSV export to load.
	SourcePath string
	// Comma is the field delimiter; zero means ','.
	Comma rune

	Store     storage.Config
	BatchSize int
	Mode      upsert.Mode
	// TopN bounds every top list of the profile; zero means report.DefaultTopN.
	TopN int

	// Job labels metrics. RunID is generated when empty.
	Job    string
	RunID  string
	Logger *zap.Logger
}

func (o *Options) defaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Mode == "" {
		o.Mode = upsert.ModeUpdateThenInsert
	}
	if o.TopN <= 0 {
		o.TopN = report.DefaultTopN
	}
	if o.Job == "" {
		o.Job = "catalogetl"
	}
	if o.RunID == "" {
		o.RunID = uuid.NewString()
	}
}

// Summary is the outcome of a run.
type Summary struct {
	RunID string `json:"run_id"`

	RowsProcessed int64 `json:"rows_processed"`
	RowsLoaded    int64 `json:"rows_loaded"`
	RowsFailed    int64 `json:"rows_failed"`
	KeylessRows   int64 `json:"keyless_rows"`
	Duplicates    int64 `json:"duplicates_dropped"`
	ParseErrors   int64 `json:"parse_errors"`

	// DistinctKeys counts the show_id values that survived keep-first.
	DistinctKeys int64 `json:"distinct_keys"`

	Inserted int64 `json:"inserted"`
	Updated  int64 `json:"updated"`
	Upserted int64 `json:"upserted"`
	Links    int64 `json:"links"`

	BatchesCommitted int `json:"batches_committed"`
	BatchesFailed    int `json:"batches_failed"`

	// MissingColumns lists expected CSV columns the header lacked.
	MissingColumns []string `json:"missing_columns,omitempty"`

	Quality quality.Report  `json:"quality"`
	Profile *report.Profile `json:"profile,omitempty"`

	Elapsed time.Duration `json:"elapsed"`
}

// Run performs schema init, load, quality gate and profile against the
// store. A failed data-quality check returns the Summary gathered so far with
// an error wrapping quality.ErrCheckFailed; the profile is not built then.
// Every other error is fatal for the run.
func Run(ctx context.Context, opt Options) (Summary, error) {
	opt.defaults()
	start := time.Now()
	sum := Summary{RunID: opt.RunID}
	err := run(ctx, opt, &sum)
	sum.Elapsed = time.Since(start)
	return sum, err
}

func run(ctx context.Context, opt Options, sum *Summary) error {
	log := logging.OrNop(opt.Logger).With(zap.String("run_id", opt.RunID))

	src := openSource(opt.SourcePath)
	rc, err := src.Open(ctx)
	if err != nil {
		return errors.Wrap(err, "pipeline: source")
	}
	defer rc.Close()
	log.Info("pipeline: reading", zap.String("source", datasource.Describe(src)))

	rd, err := csvparser.NewReader(rc, csvparser.Options{
		Comma: opt.Comma,
		OnError: func(line int, err error) {
			log.Warn("csv: skipping malformed line", zap.Int("line", line), zap.Error(err))
		},
	})
	if err != nil {
		return errors.Wrapf(err, "pipeline: read %s", opt.SourcePath)
	}
	if missing := rd.Missing(); len(missing) > 0 {
		sum.MissingColumns = missing
		log.Warn("csv: columns missing from header; they load as empty", zap.Strings("columns", missing))
	}

	log.Info("pipeline: connecting",
		zap.String("kind", opt.Store.Kind),
		zap.String("dsn", logging.RedactDSN(opt.Store.DSN)),
	)
	store, err := openStore(ctx, opt.Store)
	if err != nil {
		return errors.Wrap(err, "pipeline: open store")
	}
	defer store.Close()

	unlock, err := store.Lock(ctx)
	if err != nil {
		return errors.Wrap(err, "pipeline: run lock")
	}
	defer func() {
		if err := unlock(); err != nil {
			log.Warn("pipeline: release run lock", zap.Error(err))
		}
	}()

	if err := step(opt.Job, StepSchema, func() error { return store.EnsureSchema(ctx, log) }); err != nil {
		return errors.Wrap(err, "pipeline: schema")
	}

	if err := step(opt.Job, StepLoad, func() error { return load(ctx, log, rd, store, opt, sum) }); err != nil {
		return err
	}

	err = step(opt.Job, StepQuality, func() error {
		var err error
		sum.Quality, err = quality.NewGate(store, log).Run(ctx, quality.LoadStats{KeylessRows: sum.KeylessRows})
		return err
	})
	for _, c := range sum.Quality.Checks {
		metrics.RecordCheck(opt.Job, c.Name, string(c.Status), c.Count)
	}
	if err != nil {
		return errors.Wrap(err, "pipeline: quality")
	}

	err = step(opt.Job, StepProfile, func() error {
		p, err := report.Build(ctx, store, report.Options{TopN: opt.TopN})
		sum.Profile = p
		return err
	})
	if err != nil {
		return errors.Wrap(err, "pipeline: profile")
	}

	log.Info("pipeline: done",
		zap.Int64("processed", sum.RowsProcessed),
		zap.Int64("loaded", sum.RowsLoaded),
		zap.Int64("failed", sum.RowsFailed),
	)
	return nil
}

// load streams the source through the transformer and the upsert engine.
func load(ctx context.Context, log *zap.Logger, rd *csvparser.Reader, store *storage.Store, opt Options, sum *Summary) error {
	eng, err := upsert.New(store, upsert.Options{Mode: opt.Mode, Logger: log})
	if err != nil {
		return errors.Wrap(err, "pipeline: engine")
	}
	tr := transformer.New()
	log.Info("pipeline: loading", zap.String("mode", string(eng.Mode())), zap.Int("batch_size", opt.BatchSize))

	next := func() ([]catalog.RawRecord, error) { return rd.Next(opt.BatchSize) }
	write := func(ctx context.Context, batchNo int, raw []catalog.RawRecord) (int64, error) {
		canon, _ := tr.Apply(raw)
		res, err := eng.LoadBatch(ctx, canon)
		sum.RowsFailed += int64(res.Failed)
		sum.KeylessRows += int64(res.Keyless)
		if err != nil {
			return 0, errors.Wrapf(err, "batch %d", batchNo)
		}
		sum.Inserted += int64(res.Inserted)
		sum.Updated += int64(res.Updated)
		sum.Upserted += int64(res.Upserted)
		sum.Links += res.Links
		return int64(res.Written()), nil
	}

	st, err := storage.LoadBatches(ctx, log, next, write)
	sum.RowsLoaded = st.Rows
	sum.BatchesCommitted = st.Batches - st.FailedBatches
	sum.BatchesFailed = st.FailedBatches
	sum.RowsProcessed = int64(rd.Rows())
	sum.ParseErrors = int64(rd.ParseErrors())
	sum.Duplicates = int64(tr.Totals().Duplicates)
	sum.DistinctKeys = int64(tr.DistinctKeys())

	metrics.RecordRows(opt.Job, metrics.KindProcessed, sum.RowsProcessed)
	metrics.RecordRows(opt.Job, metrics.KindLoaded, sum.RowsLoaded)
	metrics.RecordRows(opt.Job, metrics.KindFailed, sum.RowsFailed)
	metrics.RecordRows(opt.Job, metrics.KindKeyless, sum.KeylessRows)
	metrics.RecordRows(opt.Job, metrics.KindDuplicate, sum.Duplicates)
	metrics.RecordRows(opt.Job, metrics.KindParseError, sum.ParseErrors)
	metrics.RecordBatches(opt.Job, "committed", int64(sum.BatchesCommitted))
	metrics.RecordBatches(opt.Job, "failed", int64(sum.BatchesFailed))

	if err != nil {
		return errors.Wrap(err, "pipeline: load")
	}

	accounted := sum.RowsLoaded + sum.RowsFailed + sum.KeylessRows + sum.Duplicates
	if accounted != sum.RowsProcessed {
		log.Warn("pipeline: row accounting mismatch",
			zap.Int64("processed", sum.RowsProcessed),
			zap.Int64("accounted", accounted),
		)
	}
	return nil
}

// step runs fn and records its duration and outcome.
func step(job, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.RecordStep(job, name, err, time.Since(start))
	return err
}

// StoreOptions configures the store-only commands.
type StoreOptions struct {
	Store  storage.Config
	TopN   int
	Job    string
	Logger *zap.Logger
}

// Check runs the data-quality gate against an existing store. Rows skipped
// by an earlier load are not known here, so keyless input is not counted.
func Check(ctx context.Context, opt StoreOptions) (quality.Report, error) {
	log := logging.OrNop(opt.Logger)
	store, err := openStore(ctx, opt.Store)
	if err != nil {
		return quality.Report{}, errors.Wrap(err, "pipeline: open store")
	}
	defer store.Close()

	var rep quality.Report
	err = step(opt.Job, StepQuality, func() error {
		var err error
		rep, err = quality.NewGate(store, log).Run(ctx, quality.LoadStats{})
		return err
	})
	for _, c := range rep.Checks {
		metrics.RecordCheck(opt.Job, c.Name, string(c.Status), c.Count)
	}
	return rep, err
}

// Profile builds the profiling report of an existing store.
func Profile(ctx context.Context, opt StoreOptions) (*report.Profile, error) {
	store, err := openStore(ctx, opt.Store)
	if err != nil {
		return nil, errors.Wrap(err, "pipeline: open store")
	}
	defer store.Close()

	var p *report.Profile
	err = step(opt.Job, StepProfile, func() error {
		var err error
		p, err = report.Build(ctx, store, report.Options{TopN: opt.TopN})
		return err
	})
	return p, err
}
