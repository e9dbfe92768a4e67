package config

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap/zapcore"

	"catalogetl/internal/logging"
	"catalogetl/internal/report"
	"catalogetl/internal/storage"
	"catalogetl/internal/upsert"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks the run.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is printed but does not block.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding. Path is the dotted YAML path
// of the offending value, e.g. "load.batch_size".
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate lints the whole configuration. It never mutates cfg. Store kinds
// are checked against the dialects registered with the storage package.
func Validate(cfg Config) []Issue {
	var issues []Issue
	issues = append(issues, ValidateSource(cfg.Source)...)
	issues = append(issues, ValidateStore(cfg.Store)...)
	issues = append(issues, validateLoad(cfg.Load)...)
	issues = append(issues, validateReport(cfg.Report)...)
	issues = append(issues, validateMetrics(cfg.Metrics)...)
	issues = append(issues, validateLog(cfg.Log)...)
	return issues
}

// ValidateSource checks the input settings.
func ValidateSource(s Source) []Issue {
	var issues []Issue
	if strings.TrimSpace(s.Path) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.path",
			Message:  "source.path must not be empty",
		})
	} else if st, err := os.Stat(s.Path); err != nil {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.path",
			Message:  fmt.Sprintf("cannot read source: %v", err),
		})
	} else if st.IsDir() {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.path",
			Message:  fmt.Sprintf("%s is a directory", s.Path),
		})
	}

	if s.Comma != "" {
		r, size := utf8.DecodeRuneInString(s.Comma)
		switch {
		case size != len(s.Comma):
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.comma",
				Message:  fmt.Sprintf("delimiter must be a single character, got %q", s.Comma),
			})
		case r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError:
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.comma",
				Message:  fmt.Sprintf("%q cannot be used as a delimiter", s.Comma),
			})
		}
	}
	return issues
}

// ValidateStore checks the backend selection and lets the dialect parse the
// DSN.
func ValidateStore(s Store) []Issue {
	var issues []Issue
	d, err := storage.Lookup(s.Kind)
	if err != nil {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "store.kind",
			Message:  fmt.Sprintf("unknown store kind %q; registered: %s", s.Kind, strings.Join(storage.ListKinds(), ", ")),
		})
	}
	if strings.TrimSpace(s.DSN) == "" {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "store.dsn",
			Message:  "store.dsn must not be empty",
		})
	}
	if _, err := d.PrepareDSN(s.DSN); err != nil {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "store.dsn",
			Message:  fmt.Sprintf("invalid %s DSN %s: %v", s.Kind, logging.RedactDSN(s.DSN), err),
		})
	}
	if s.Kind == "sqlite" && strings.Contains(s.DSN, ":memory:") {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "store.dsn",
			Message:  "in-memory database is discarded when the run ends",
		})
	}
	return issues
}

func validateLoad(l LoadOptions) []Issue {
	var issues []Issue
	if l.BatchSize <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "load.batch_size",
			Message:  fmt.Sprintf("batch_size must be positive, got %d", l.BatchSize),
		})
	} else if l.BatchSize > 100_000 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "load.batch_size",
			Message:  fmt.Sprintf("batch_size=%d keeps one transaction open for a long time", l.BatchSize),
		})
	}
	if _, err := upsert.ParseMode(l.Mode); err != nil {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "load.mode",
			Message:  fmt.Sprintf("%v; want %s or %s", err, upsert.ModeUpdateThenInsert, upsert.ModeAtomic),
		})
	}
	return issues
}

func validateReport(r Report) []Issue {
	var issues []Issue
	if r.TopN <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "report.top_n",
			Message:  fmt.Sprintf("top_n must be positive, got %d", r.TopN),
		})
	}
	switch r.Format {
	case "", report.FormatText, report.FormatJSON:
	case report.FormatXLSX:
		if r.Output == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "report.output",
				Message:  "xlsx reports need an output file",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "report.format",
			Message:  fmt.Sprintf("unknown report format %q", r.Format),
		})
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue
	switch m.Backend {
	case "", "none":
	case "pushgateway":
		if m.PushgatewayURL == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.pushgateway_url",
				Message:  "pushgateway backend requires pushgateway_url",
			})
		}
	case "datadog":
		if m.DatadogAddr == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.datadog_addr",
				Message:  "datadog backend requires datadog_addr",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q", m.Backend),
		})
	}
	if m.Backend != "" && m.Backend != "none" && strings.TrimSpace(m.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "metrics.job",
			Message:  "metrics.job is empty; runs cannot be told apart",
		})
	}
	return issues
}

func validateLog(l Log) []Issue {
	var issues []Issue
	switch strings.ToLower(l.Format) {
	case "", "console", "dev", "json", "prod", "production":
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "log.format",
			Message:  fmt.Sprintf("unknown log format %q; want console or json", l.Format),
		})
	}
	if l.Level != "" {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(strings.ToLower(l.Level))); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "log.level",
				Message:  err.Error(),
			})
		}
	}
	return issues
}
