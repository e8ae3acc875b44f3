// Package render writes an assembled pivot table in one of the supported
// output formats.
package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Velocidex/ordereddict"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"clipivot/internal/errs"
	"clipivot/internal/pivot"
)

// Format names an output format.
type Format string

const (
	CSV   Format = "csv"
	TSV   Format = "tsv"
	JSON  Format = "json"
	Table Format = "table"
	XLSX  Format = "xlsx"
)

// Formats lists every supported format.
var Formats = []Format{CSV, TSV, JSON, Table, XLSX}

// ParseFormat maps a flag value to a Format; "" means CSV.
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return CSV, nil
	}
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", errs.Configf("unknown output format %q", s)
}

// Binary reports whether f produces non-text output.
func (f Format) Binary() bool { return f == XLSX }

// SheetName is the worksheet xlsx output is written to.
const SheetName = "pivot"

// Write renders m to w.
func Write(w io.Writer, m *pivot.Matrix, f Format) error {
	switch f {
	case CSV, "":
		return writeDelimited(w, m, ',')
	case TSV:
		return writeDelimited(w, m, '\t')
	case JSON:
		return writeJSON(w, m)
	case Table:
		return writeTable(w, m)
	case XLSX:
		return writeXLSX(w, m)
	default:
		return errs.Configf("unknown output format %q", string(f))
	}
}

func writeDelimited(w io.Writer, m *pivot.Matrix, comma rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma
	if err := cw.Write(m.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(m.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// writeJSON emits one object per row, keyed by the header in column order.
func writeJSON(w io.Writer, m *pivot.Matrix) error {
	keys := jsonKeys(m.Header)
	out := make([]*ordereddict.Dict, 0, len(m.Rows))
	for _, row := range m.Rows {
		d := ordereddict.NewDict()
		for i, cell := range row {
			d.Set(keys[i], cell)
		}
		out = append(out, d)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// jsonKeys makes header cells unique as object keys. A repeated cell, such
// as an empty column key next to the blank row-label header, becomes
// name[k] for its k-th repeat, the same form field selectors use.
func jsonKeys(header []string) []string {
	keys := make([]string, len(header))
	used := make(map[string]bool, len(header))
	repeats := make(map[string]int, len(header))
	for i, h := range header {
		key := h
		for used[key] {
			repeats[h]++
			key = fmt.Sprintf("%s[%d]", h, repeats[h])
		}
		used[key] = true
		keys[i] = key
	}
	return keys
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func writeTable(w io.Writer, m *pivot.Matrix) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(m.Header...).
		Rows(m.Rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	_, err := fmt.Fprintln(w, t.String())
	return err
}

func writeXLSX(w io.Writer, m *pivot.Matrix) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}
	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return err
	}
	if err := sw.SetRow("A1", toCells(m.Header, false)); err != nil {
		return err
	}
	for i, row := range m.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, toCells(row, true)); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}

// toCells converts a text row for the stream writer. Numeric cells after the
// row label become numbers so spreadsheets can sum them.
func toCells(row []string, numeric bool) []any {
	out := make([]any, len(row))
	for i, s := range row {
		out[i] = s
		if !numeric || i == 0 || s == "" {
			continue
		}
		if d, err := decimal.NewFromString(s); err == nil {
			out[i] = d.InexactFloat64()
		}
	}
	return out
}
