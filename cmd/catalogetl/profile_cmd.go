package main

import (
	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"catalogetl/internal/config"
	"catalogetl/internal/datasource/file"
	"catalogetl/internal/pipeline"
	"catalogetl/internal/probe"
	"catalogetl/internal/report"
	"catalogetl/internal/storage"
)

func newProfileCmd(a *app) *cobra.Command {
	var maxRows int64
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Profile the loaded store, or a raw export when --source is given",
		Long: "Without --source the profile reports counts and top lists from the store.\n" +
			"With --source the CSV is read once and every column is profiled without loading it.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("source") {
				return a.probeSource(cmd, maxRows)
			}
			return a.profileStore(cmd)
		},
	}
	cmd.Flags().String("source", "", "catalog CSV export to probe instead of the store")
	cmd.Flags().String("comma", "", "field delimiter")
	cmd.Flags().Int64Var(&maxRows, "max-rows", 0, "stop probing after this many rows")
	addStoreFlags(cmd)
	addReportFlags(cmd)
	return cmd
}

func (a *app) profileStore(cmd *cobra.Command) error {
	if printIssues(a.stderr, config.ValidateStore(a.cfg.Store)) {
		return withCode(exitFatal, errors.New("invalid configuration"))
	}
	p, err := pipeline.Profile(cmd.Context(), pipeline.StoreOptions{
		Store:  storage.Config{Kind: a.cfg.Store.Kind, DSN: a.cfg.Store.DSN},
		TopN:   a.cfg.Report.TopN,
		Job:    a.cfg.Metrics.Job,
		Logger: a.log,
	})
	if err != nil {
		return err
	}
	return a.writeProfile(p)
}

func (a *app) probeSource(cmd *cobra.Command, maxRows int64) error {
	if printIssues(a.stderr, config.ValidateSource(a.cfg.Source)) {
		return withCode(exitFatal, errors.New("invalid configuration"))
	}
	res, err := probe.Source(cmd.Context(), file.NewLocal(a.cfg.Source.Path), probe.Options{
		Comma:   a.cfg.Source.CommaRune(),
		MaxRows: maxRows,
	})
	if err != nil {
		return err
	}

	w, closeFn, err := a.openOutput()
	if err != nil {
		return err
	}
	switch a.cfg.Report.Format {
	case "", report.FormatText:
		err = res.WriteText(w)
	case report.FormatJSON:
		err = res.WriteJSON(w)
	default:
		err = errors.Errorf("probe: format %q not supported, use text or json", a.cfg.Report.Format)
	}
	if cerr := closeFn(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, "report output")
	}
	return err
}
