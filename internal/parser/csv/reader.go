// Package csv reads a catalog export into raw records in bounded batches.
//
// The reader never buffers the whole file: Next decodes at most n rows per
// call. Header cells are folded (see FoldHeader) before they are matched to
// the RawRecord fields, so exports with "Show ID" or a UTF-8 BOM still line
// up. Columns missing from the file decode to empty values.
//
// Malformed lines (bad quoting, wrong field count) are soft errors: they are
// reported through the OnError hook with their line number, counted, and
// skipped. Any other read error is returned to the caller.
package csv

import (
	"encoding/csv"
	"io"

	"github.com/go-faster/errors"
	"github.com/jszwec/csvutil"

	"catalogetl/internal/catalog"
)

// ErrEmptySource is returned by NewReader when the input has no header row.
var ErrEmptySource = errors.New("csv: empty source (no header row)")

// Options configures the reader. The zero value reads comma-separated input.
type Options struct {
	// Comma is the field delimiter; zero means ','.
	Comma rune

	// LazyQuotes tolerates bare quotes inside unquoted fields.
	LazyQuotes bool

	// OnError receives soft row errors. May be nil.
	OnError func(line int, err error)
}

// Reader decodes catalog rows from a CSV stream.
type Reader struct {
	cr      *csv.Reader
	dec     *csvutil.Decoder
	header  []string
	missing []string
	onErr   func(line int, err error)

	rows        int
	parseErrors int
}

// NewReader reads and folds the header row of r and prepares the decoder.
func NewReader(r io.Reader, opt Options) (*Reader, error) {
	cr := csv.NewReader(r)
	if opt.Comma != 0 {
		cr.Comma = opt.Comma
	}
	cr.LazyQuotes = opt.LazyQuotes
	cr.FieldsPerRecord = -1 // width is checked by the decoder against the header
	cr.ReuseRecord = true

	hdr, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptySource
	}
	if err != nil {
		return nil, errors.Wrap(err, "csv: read header")
	}
	header := FoldHeaders(hdr)

	dec, err := csvutil.NewDecoder(cr, header...)
	if err != nil {
		return nil, errors.Wrap(err, "csv: build decoder")
	}

	present := make(map[string]struct{}, len(header))
	for _, h := range header {
		present[h] = struct{}{}
	}
	var missing []string
	for _, want := range catalog.ExpectedColumns {
		if _, ok := present[want]; !ok {
			missing = append(missing, want)
		}
	}

	return &Reader{cr: cr, dec: dec, header: header, missing: missing, onErr: opt.OnError}, nil
}

// Header returns the folded header row.
func (r *Reader) Header() []string { return r.header }

// Missing returns the expected columns absent from the header.
func (r *Reader) Missing() []string { return r.missing }

// Rows returns how many rows decoded successfully so far.
func (r *Reader) Rows() int { return r.rows }

// ParseErrors returns how many lines were skipped as malformed so far.
func (r *Reader) ParseErrors() int { return r.parseErrors }

// Next decodes up to n rows. It returns io.EOF, with no records, once the
// input is exhausted; a short final batch is returned with a nil error.
func (r *Reader) Next(n int) ([]catalog.RawRecord, error) {
	if n <= 0 {
		return nil, errors.Errorf("csv: batch size must be > 0, got %d", n)
	}
	out := make([]catalog.RawRecord, 0, n)
	for len(out) < n {
		var rec catalog.RawRecord
		err := r.dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line, soft := softError(r.cr, err)
			if !soft {
				return out, errors.Wrap(err, "csv: read")
			}
			r.parseErrors++
			if r.onErr != nil {
				r.onErr(line, err)
			}
			continue
		}
		rec.Line, _ = r.cr.FieldPos(0)
		r.rows++
		out = append(out, rec)
	}
	if len(out) == 0 {
		return nil, io.EOF
	}
	return out, nil
}

// softError reports whether err only affects the current line, and that line.
func softError(cr *csv.Reader, err error) (int, bool) {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return pe.StartLine, true
	}
	if errors.Is(err, csvutil.ErrFieldCount) {
		line, _ := cr.FieldPos(0)
		return line, true
	}
	return 0, false
}
