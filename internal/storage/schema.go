package storage

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// EnsureSchema applies every pending migration of the store's dialect. It is
// idempotent: on an up-to-date database it changes nothing.
func (s *Store) EnsureSchema(ctx context.Context, log *zap.Logger) error {
	p, err := goose.NewProvider(s.Dialect.GooseDialect(), s.DB.DB, s.Dialect.Migrations())
	if err != nil {
		return errors.Wrapf(err, "%s: migrations", s.Dialect.Kind())
	}
	results, err := p.Up(ctx)
	if err != nil {
		return errors.Wrapf(err, "%s: migrate up", s.Dialect.Kind())
	}
	for _, r := range results {
		log.Info("schema: applied migration",
			zap.Int64("version", r.Source.Version),
			zap.String("file", r.Source.Path),
			zap.Duration("took", r.Duration),
		)
	}
	v, err := p.GetDBVersion(ctx)
	if err != nil {
		return errors.Wrapf(err, "%s: schema version", s.Dialect.Kind())
	}
	log.Debug("schema: ready", zap.Int64("version", v), zap.Int("applied", len(results)))
	return nil
}
