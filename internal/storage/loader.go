package storage

import (
	"context"
	"io"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// NextFn returns the next batch of input, or io.EOF once the input is
// drained. Any other error aborts the load.
type NextFn[T any] func() ([]T, error)

// LoadFn writes one batch and returns the number of rows it wrote. An error
// fails that batch only; the loader logs it and moves on.
type LoadFn[T any] func(ctx context.Context, batchNo int, batch []T) (int64, error)

// LoadStats summarizes a LoadBatches run.
type LoadStats struct {
	Batches       int
	FailedBatches int
	Rows          int64
	Elapsed       time.Duration
}

// LoadBatches pulls batches from next and hands each non-empty one to load
// until next reports io.EOF. A progress line with running totals and the
// instantaneous rows/sec is logged after every batch.
//
// Cancellation: returns (stats, ctx.Err()) when ctx is done between batches.
func LoadBatches[T any](ctx context.Context, log *zap.Logger, next NextFn[T], load LoadFn[T]) (LoadStats, error) {
	if next == nil || load == nil {
		return LoadStats{}, errors.New("loader: next and load must not be nil")
	}
	var (
		st        LoadStats
		start     = time.Now()
		lastFlush = start
		lastRows  int64
	)

	for {
		if err := ctx.Err(); err != nil {
			st.Elapsed = time.Since(start)
			return st, err
		}
		batch, err := next()
		if errors.Is(err, io.EOF) {
			st.Elapsed = time.Since(start)
			log.Info("loader: input drained",
				zap.Int("batches", st.Batches),
				zap.Int("failed_batches", st.FailedBatches),
				zap.Int64("total_written", st.Rows),
				zap.Duration("elapsed", st.Elapsed.Truncate(time.Millisecond)),
			)
			return st, nil
		}
		if err != nil {
			st.Elapsed = time.Since(start)
			return st, errors.Wrap(err, "loader: read batch")
		}
		if len(batch) == 0 {
			continue
		}

		st.Batches++
		n, err := load(ctx, st.Batches, batch)
		st.Rows += n
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				st.Elapsed = time.Since(start)
				return st, ctxErr
			}
			st.FailedBatches++
			log.Error("loader: batch failed",
				zap.Int("batch", st.Batches),
				zap.Int("size", len(batch)),
				zap.Error(err),
			)
			continue
		}

		now := time.Now()
		sinceLast := now.Sub(lastFlush)
		rps := float64(0)
		if sinceLast > 0 {
			rps = float64(st.Rows-lastRows) / sinceLast.Seconds()
		}
		log.Info("loader: batch written",
			zap.Int("batch", st.Batches),
			zap.Float64("rps", float64(int64(rps))),
			zap.Int64("written", n),
			zap.Int64("total_written", st.Rows),
			zap.Duration("elapsed", now.Sub(start).Truncate(time.Millisecond)),
			zap.Duration("since_last", sinceLast.Truncate(time.Millisecond)),
		)
		lastFlush = now
		lastRows = st.Rows
	}
}
