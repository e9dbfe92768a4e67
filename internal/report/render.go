package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/go-faster/errors"
	"github.com/xuri/excelize/v2"
)

// Formats accepted by Render.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatXLSX = "xlsx"
)

// Render writes p to w in the given format ("" means text).
func Render(w io.Writer, p *Profile, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText:
		return WriteText(w, p)
	case FormatJSON:
		return WriteJSON(w, p)
	case FormatXLSX:
		return WriteXLSX(w, p)
	}
	return errors.Errorf("report: unknown format %q", format)
}

// WriteText renders p as aligned plain text.
func WriteText(w io.Writer, p *Profile) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "titles\t%d\n", p.Titles)

	section := func(title string, rows []ColumnCount) {
		fmt.Fprintf(tw, "\n%s\n", title)
		for _, r := range rows {
			fmt.Fprintf(tw, "  %s\t%d\n", r.Name, r.Count)
		}
	}
	section("null counts", p.Nulls)
	section("distinct counts", p.Distinct)
	section("table sizes", p.Tables)

	for _, t := range p.Top {
		fmt.Fprintf(tw, "\ntop %s\n", t.Name)
		if len(t.Items) == 0 {
			fmt.Fprintf(tw, "  (none)\n")
		}
		for i, c := range t.Items {
			fmt.Fprintf(tw, "  %d. %s\t%d\n", i+1, c.Name, c.Count)
		}
	}
	return tw.Flush()
}

// WriteJSON renders p as indented JSON.
func WriteJSON(w io.Writer, p *Profile) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

// Sheet names of the XLSX export.
const (
	SheetSummary = "Summary"
	SheetTop     = "Top"
)

// WriteXLSX renders p as a workbook with a summary sheet and a top-N sheet.
func WriteXLSX(w io.Writer, p *Profile) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return errors.Wrap(err, "xlsx")
	}
	if _, err := f.NewSheet(SheetTop); err != nil {
		return errors.Wrap(err, "xlsx")
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "xlsx")
	}

	row := 1
	put := func(sheet string, vals ...any) error {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		row++
		return f.SetSheetRow(sheet, cell, &vals)
	}
	header := func(sheet string, vals ...any) error {
		r := row
		if err := put(sheet, vals...); err != nil {
			return err
		}
		first, _ := excelize.CoordinatesToCellName(1, r)
		last, _ := excelize.CoordinatesToCellName(len(vals), r)
		return f.SetCellStyle(sheet, first, last, bold)
	}

	if err := header(SheetSummary, "section", "name", "count"); err != nil {
		return errors.Wrap(err, "xlsx")
	}
	if err := put(SheetSummary, "titles", "titles", p.Titles); err != nil {
		return errors.Wrap(err, "xlsx")
	}
	for _, sec := range []struct {
		name string
		rows []ColumnCount
	}{
		{"null count", p.Nulls},
		{"distinct count", p.Distinct},
		{"table size", p.Tables},
	} {
		for _, r := range sec.rows {
			if err := put(SheetSummary, sec.name, r.Name, r.Count); err != nil {
				return errors.Wrap(err, "xlsx")
			}
		}
	}

	row = 1
	if err := header(SheetTop, "list", "rank", "name", "count"); err != nil {
		return errors.Wrap(err, "xlsx")
	}
	for _, t := range p.Top {
		for i, c := range t.Items {
			if err := put(SheetTop, t.Name, i+1, c.Name, c.Count); err != nil {
				return errors.Wrap(err, "xlsx")
			}
		}
	}
	if err := f.SetColWidth(SheetSummary, "A", "B", 20); err != nil {
		return errors.Wrap(err, "xlsx")
	}
	if err := f.SetColWidth(SheetTop, "C", "C", 32); err != nil {
		return errors.Wrap(err, "xlsx")
	}
	if err := f.Write(w); err != nil {
		return errors.Wrap(err, "xlsx: write")
	}
	return nil
}
