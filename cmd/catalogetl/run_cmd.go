package main

import (
	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"catalogetl/internal/config"
	"catalogetl/internal/pipeline"
	"catalogetl/internal/quality"
	"catalogetl/internal/report"
	"catalogetl/internal/storage"
	"catalogetl/internal/upsert"
)

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Initialize the schema, load the source, run the quality gate and print the profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd)
		},
	}
	cmd.Flags().String("source", "", "catalog CSV export")
	cmd.Flags().String("comma", "", "field delimiter")
	cmd.Flags().Int("batch-size", 0, "rows per transaction")
	cmd.Flags().String("mode", "", "title write mode: update-then-insert or atomic")
	addStoreFlags(cmd)
	addReportFlags(cmd)
	return cmd
}

func (a *app) run(cmd *cobra.Command) error {
	if printIssues(a.stderr, config.Validate(a.cfg)) {
		return withCode(exitFatal, errors.New("invalid configuration"))
	}

	opt := pipeline.Options{
		SourcePath: a.cfg.Source.Path,
		Comma:      a.cfg.Source.CommaRune(),
		Store:      storage.Config{Kind: a.cfg.Store.Kind, DSN: a.cfg.Store.DSN},
		BatchSize:  a.cfg.Load.BatchSize,
		Mode:       upsert.Mode(a.cfg.Load.Mode),
		TopN:       a.cfg.Report.TopN,
		Job:        a.cfg.Metrics.Job,
		Logger:     a.log,
	}
	sum, err := pipeline.Run(cmd.Context(), opt)

	// The summary is printed whatever the outcome so a failed gate still
	// shows what was loaded.
	if werr := sum.WriteText(a.stdout); werr != nil {
		a.log.Warn("run: write summary", zap.Error(werr))
	}
	if err != nil {
		if errors.Is(err, quality.ErrCheckFailed) {
			return withCode(exitQuality, err)
		}
		return withCode(exitFatal, err)
	}
	return a.writeProfile(sum.Profile)
}

func (a *app) writeProfile(p *report.Profile) error {
	w, closeFn, err := a.openOutput()
	if err != nil {
		return err
	}
	if err := report.Render(w, p, a.cfg.Report.Format); err != nil {
		_ = closeFn()
		return err
	}
	if err := closeFn(); err != nil {
		return errors.Wrap(err, "report output")
	}
	if a.cfg.Report.Output != "" {
		a.log.Info("report: written", zap.String("path", a.cfg.Report.Output), zap.String("format", a.cfg.Report.Format))
	}
	return nil
}
