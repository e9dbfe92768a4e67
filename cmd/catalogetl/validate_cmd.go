package main

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"catalogetl/internal/config"
)

func newValidateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the resolved configuration without touching the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if printIssues(a.stdout, config.Validate(a.cfg)) {
				return withCode(exitFatal, errors.New("invalid configuration"))
			}
			fmt.Fprintln(a.stdout, "configuration is valid")
			return nil
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
