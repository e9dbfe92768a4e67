package pipeline

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"catalogetl/internal/quality"
)

// WriteText prints the run summary. Every data-quality check is listed with
// its status, including the ones skipped after a failure.
func (s Summary) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "run\t%s\n", s.RunID)
	fmt.Fprintf(tw, "rows processed\t%d\n", s.RowsProcessed)
	fmt.Fprintf(tw, "rows loaded\t%d\n", s.RowsLoaded)
	fmt.Fprintf(tw, "rows failed\t%d\n", s.RowsFailed)
	fmt.Fprintf(tw, "keyless rows\t%d\n", s.KeylessRows)
	fmt.Fprintf(tw, "duplicates dropped\t%d\n", s.Duplicates)
	fmt.Fprintf(tw, "parse errors\t%d\n", s.ParseErrors)
	fmt.Fprintf(tw, "distinct keys\t%d\n", s.DistinctKeys)
	fmt.Fprintf(tw, "batches committed\t%d\n", s.BatchesCommitted)
	fmt.Fprintf(tw, "batches failed\t%d\n", s.BatchesFailed)
	if len(s.MissingColumns) > 0 {
		fmt.Fprintf(tw, "missing columns\t%s\n", strings.Join(s.MissingColumns, ", "))
	}
	fmt.Fprintf(tw, "elapsed\t%s\n", s.Elapsed.Truncate(time.Millisecond))
	fmt.Fprintf(tw, "data quality\t%s\n", qualityVerdict(s.Quality))
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := io.WriteString(w, s.Quality.String())
	return err
}

func qualityVerdict(r quality.Report) string {
	if len(r.Checks) == 0 {
		return "not run"
	}
	if f := r.FirstFailure(); f != nil {
		return fmt.Sprintf("FAIL (%s count=%d)", f.Name, f.Count)
	}
	return "PASS"
}
