package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"catalogetl/internal/config"
	"catalogetl/internal/logging"
	"catalogetl/internal/metrics"
	"catalogetl/internal/metrics/datadog"
	"catalogetl/internal/metrics/prompush"

	// every storage kind the configuration may name
	_ "catalogetl/internal/storage/all"
)

// app is the state shared by the subcommands once the configuration is
// resolved.
type app struct {
	stdout io.Writer
	stderr io.Writer

	cfgPath  string
	envFiles []string

	cfg config.Config
	log *zap.Logger
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "catalogetl",
		Short:         "Load a streaming-catalog CSV export into a relational store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "YAML configuration file")
	pf.StringSliceVar(&a.envFiles, "env-file", []string{".env", ".env.local"}, "dotenv files to load when present")
	pf.String("log-format", "", "log format: console or json")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("metrics-backend", "", "metrics backend: none, pushgateway or datadog")

	cmd.AddCommand(newRunCmd(a))
	cmd.AddCommand(newCheckCmd(a))
	cmd.AddCommand(newProfileCmd(a))
	cmd.AddCommand(newValidateCmd(a))
	return cmd
}

// setup resolves the configuration (defaults, file, environment, flags) and
// builds the logger and the metrics backend.
func (a *app) setup(cmd *cobra.Command) error {
	if _, err := config.LoadDotEnv(a.envFiles...); err != nil {
		return err
	}
	cfg, err := config.Load(a.cfgPath, nil)
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, &cfg); err != nil {
		return err
	}
	a.cfg = cfg

	log, err := logging.New(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return err
	}
	a.log = log

	return setupMetrics(cfg.Metrics, log)
}

// flagTargets maps flag names onto the configuration fields they override.
func flagTargets(cfg *config.Config) map[string]any {
	return map[string]any{
		"source":          &cfg.Source.Path,
		"comma":           &cfg.Source.Comma,
		"store-kind":      &cfg.Store.Kind,
		"dsn":             &cfg.Store.DSN,
		"batch-size":      &cfg.Load.BatchSize,
		"mode":            &cfg.Load.Mode,
		"top":             &cfg.Report.TopN,
		"format":          &cfg.Report.Format,
		"output":          &cfg.Report.Output,
		"metrics-backend": &cfg.Metrics.Backend,
		"log-format":      &cfg.Log.Format,
		"log-level":       &cfg.Log.Level,
	}
}

// applyFlags copies every flag the user set explicitly onto cfg. Flags left
// at their zero default never override the file or the environment.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	fs := cmd.Flags()
	for name, target := range flagTargets(cfg) {
		f := fs.Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		switch p := target.(type) {
		case *string:
			*p = f.Value.String()
		case *int:
			v, err := fs.GetInt(name)
			if err != nil {
				return errors.Wrapf(err, "flag --%s", name)
			}
			*p = v
		}
	}
	return nil
}

func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().String("store-kind", "", "store kind: sqlite, postgres, mysql or mssql")
	cmd.Flags().String("dsn", "", "store DSN")
}

func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().Int("top", 0, "entries per top list")
	cmd.Flags().String("format", "", "report format: text, json or xlsx")
	cmd.Flags().String("output", "", "report file (default stdout)")
}

func setupMetrics(m config.Metrics, log *zap.Logger) error {
	switch m.Backend {
	case "", "none":
		return nil
	case "pushgateway":
		b, err := prompush.NewBackend(m.Job, m.PushgatewayURL)
		if err != nil {
			return err
		}
		metrics.SetBackend(b)
	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       m.DatadogAddr,
			Namespace:  m.Namespace,
			GlobalTags: m.Tags,
		})
		if err != nil {
			return err
		}
		metrics.SetBackend(b)
	default:
		return errors.Errorf("metrics: unknown backend %q", m.Backend)
	}
	log.Info("metrics: enabled", zap.String("backend", m.Backend), zap.String("job", m.Job))
	return nil
}

// printIssues writes each issue on its own line and reports whether any of
// them blocks the run.
func printIssues(w io.Writer, issues []config.Issue) bool {
	for _, iss := range issues {
		fmt.Fprintf(w, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	return config.HasErrors(issues)
}

// openOutput returns the report destination. The returned close function is
// a no-op for stdout.
func (a *app) openOutput() (io.Writer, func() error, error) {
	if a.cfg.Report.Output == "" {
		return a.stdout, func() error { return nil }, nil
	}
	f, err := os.Create(a.cfg.Report.Output)
	if err != nil {
		return nil, nil, errors.Wrap(err, "report output")
	}
	return f, f.Close, nil
}

// execute runs the CLI and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := newRootCmd(a)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)

	if ferr := metrics.Flush(); ferr != nil && a.log != nil {
		a.log.Warn("metrics: flush", zap.Error(ferr))
	}
	metrics.Reset()
	if a.log != nil {
		_ = a.log.Sync()
	}

	if err != nil {
		fmt.Fprintln(stderr, "catalogetl:", err.Error())
	}
	return exitCode(err)
}
