package main

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"catalogetl/internal/config"
	"catalogetl/internal/pipeline"
	"catalogetl/internal/quality"
	"catalogetl/internal/storage"
)

func newCheckCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the data-quality checks against an already loaded store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if printIssues(a.stderr, config.ValidateStore(a.cfg.Store)) {
				return withCode(exitFatal, errors.New("invalid configuration"))
			}
			rep, err := pipeline.Check(cmd.Context(), pipeline.StoreOptions{
				Store:  storage.Config{Kind: a.cfg.Store.Kind, DSN: a.cfg.Store.DSN},
				Job:    a.cfg.Metrics.Job,
				Logger: a.log,
			})
			if len(rep.Checks) > 0 {
				fmt.Fprint(a.stdout, rep.String())
			}
			if err != nil {
				if errors.Is(err, quality.ErrCheckFailed) {
					return withCode(exitQuality, err)
				}
				return withCode(exitFatal, err)
			}
			fmt.Fprintln(a.stdout, "data quality: PASS")
			return nil
		},
	}
	addStoreFlags(cmd)
	return cmd
}
