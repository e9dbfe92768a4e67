// Package probe profiles a raw catalog export before it is loaded: column
// list, row count, blanks per column, capped distinct counts and an inferred
// value type per column. It streams the file once and keeps memory bounded
// by the distinct cap.
package probe

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/araddon/dateparse"
	"github.com/go-faster/errors"
	"github.com/zeebo/xxh3"

	"catalogetl/internal/catalog"
	"catalogetl/internal/datasource"
	csvparser "catalogetl/internal/parser/csv"
)

// DefaultDistinctCap bounds the distinct values tracked per column.
const DefaultDistinctCap = 10000

// Options control the probe.
type Options struct {
	// Comma is the field delimiter; zero means ','.
	Comma rune
	// DistinctCap bounds the distinct set per column; zero means
	// DefaultDistinctCap.
	DistinctCap int
	// MaxRows stops after this many data rows; zero reads the whole file.
	MaxRows int64
}

// Column is the profile of one source column.
type Column struct {
	Header   string `json:"header"`
	Name     string `json:"name"`
	Expected bool   `json:"expected"`
	Blank    int64  `json:"blank"`
	Distinct int    `json:"distinct"`
	// Capped is set when Distinct hit the cap and is a lower bound.
	Capped bool   `json:"capped"`
	Type   string `json:"type"`
}

// Result is the profile of a source file.
type Result struct {
	Rows        int64    `json:"rows"`
	ParseErrors int64    `json:"parse_errors"`
	Truncated   bool     `json:"truncated"`
	Columns     []Column `json:"columns"`
	Missing     []string `json:"missing_columns"`
}

type columnState struct {
	seen   map[xxh3.Uint128]struct{}
	capped bool
	blank  int64
	types  typeTracker
}

// Source streams src and profiles it.
func Source(ctx context.Context, src datasource.Source, opt Options) (*Result, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return Reader(ctx, rc, opt)
}

// Reader profiles the delimited text read from r.
func Reader(ctx context.Context, r io.Reader, opt Options) (*Result, error) {
	limit := opt.DistinctCap
	if limit <= 0 {
		limit = DefaultDistinctCap
	}
	cr := csv.NewReader(r)
	if opt.Comma != 0 {
		cr.Comma = opt.Comma
	}
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	raw, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, csvparser.ErrEmptySource
	}
	if err != nil {
		return nil, errors.Wrap(err, "probe: read header")
	}
	headers := slices.Clone(raw)
	names := csvparser.FoldHeaders(headers)

	res := &Result{Columns: make([]Column, len(headers))}
	states := make([]columnState, len(headers))
	for i := range headers {
		res.Columns[i] = Column{
			Header:   strings.TrimSpace(strings.TrimPrefix(headers[i], "\uFEFF")),
			Name:     names[i],
			Expected: slices.Contains(catalog.ExpectedColumns, names[i]),
		}
		states[i] = columnState{seen: make(map[xxh3.Uint128]struct{}), types: newTypeTracker()}
	}
	for _, want := range catalog.ExpectedColumns {
		if !slices.Contains(names, want) {
			res.Missing = append(res.Missing, want)
		}
	}

	for {
		if opt.MaxRows > 0 && res.Rows >= opt.MaxRows {
			res.Truncated = true
			break
		}
		if res.Rows%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			res.ParseErrors++
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "probe: read")
		}
		if len(rec) != len(headers) {
			res.ParseErrors++
			continue
		}
		res.Rows++
		for i, v := range rec {
			st := &states[i]
			v = strings.TrimSpace(v)
			if v == "" {
				st.blank++
				continue
			}
			st.types.observe(v)
			if st.capped {
				continue
			}
			st.seen[xxh3.HashString128(v)] = struct{}{}
			if len(st.seen) >= limit {
				st.capped = true
			}
		}
	}

	for i := range res.Columns {
		st := &states[i]
		res.Columns[i].Blank = st.blank
		res.Columns[i].Distinct = len(st.seen)
		res.Columns[i].Capped = st.capped
		res.Columns[i].Type = st.types.result()
	}
	return res, nil
}

// WriteText renders r as an aligned table.
func (r *Result) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "rows\t%d\n", r.Rows)
	fmt.Fprintf(tw, "parse_errors\t%d\n", r.ParseErrors)
	if r.Truncated {
		fmt.Fprintf(tw, "truncated\ttrue\n")
	}
	if len(r.Missing) > 0 {
		fmt.Fprintf(tw, "missing\t%s\n", strings.Join(r.Missing, ", "))
	}
	fmt.Fprintf(tw, "\ncolumn\ttype\tblank\tdistinct\n")
	for _, c := range r.Columns {
		distinct := strconv.Itoa(c.Distinct)
		if c.Capped {
			distinct = ">=" + distinct
		}
		name := c.Name
		if !c.Expected {
			name += " (unexpected)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", name, c.Type, c.Blank, distinct)
	}
	return tw.Flush()
}

// WriteJSON renders r as indented JSON.
func (r *Result) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// typeTracker narrows the type of a column as values stream by. Every
// non-blank value must satisfy a type for it to survive.
type typeTracker struct {
	any       bool
	integer   bool
	boolean   bool
	real      bool
	date      bool
	timestamp bool // at least one date carried a time of day
}

func newTypeTracker() typeTracker {
	return typeTracker{integer: true, boolean: true, real: true, date: true}
}

func (t *typeTracker) observe(v string) {
	t.any = true
	if t.integer && !isInt(v) {
		t.integer = false
	}
	if t.boolean && !isBool(v) {
		t.boolean = false
	}
	if t.real && !isFloat(v) {
		t.real = false
	}
	if t.date {
		ts, err := dateparse.ParseAny(v)
		switch {
		case err != nil:
			t.date = false
		case ts.Hour() != 0 || ts.Minute() != 0 || ts.Second() != 0 || ts.Nanosecond() != 0:
			t.timestamp = true
		}
	}
}

// result picks the narrowest surviving type: integer, boolean, real, date
// or timestamp, else text. Columns with no values are "empty".
func (t *typeTracker) result() string {
	switch {
	case !t.any:
		return "empty"
	case t.integer:
		return "integer"
	case t.boolean:
		return "boolean"
	case t.real:
		return "real"
	case t.date && t.timestamp:
		return "timestamp"
	case t.date:
		return "date"
	}
	return "text"
}

// isBool accepts common textual booleans. 1/0 are caught as integers first.
func isBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false", "t", "f", "yes", "no", "y", "n":
		return true
	}
	return false
}

// isInt requires a signed base-10 integer that fits in int64.
func isInt(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

// isFloat accepts integers too, so a column mixing 1 and 1.5 is real.
func isFloat(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
