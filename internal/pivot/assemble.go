package pivot

import (
	"errors"
	"slices"
	"strings"

	"clipivot/internal/aggregate"
	"clipivot/internal/errs"
)

// Order is the output ordering of one axis.
type Order int

const (
	OrderIndex Order = iota // first-discovery order
	OrderAsc
	OrderDesc
)

func (o Order) String() string {
	switch o {
	case OrderAsc:
		return "asc"
	case OrderDesc:
		return "desc"
	default:
		return "index"
	}
}

// ParseOrder accepts "index", "asc" or "desc"; empty means index.
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "index":
		return OrderIndex, nil
	case "asc":
		return OrderAsc, nil
	case "desc":
		return OrderDesc, nil
	default:
		return 0, errs.Configf("unknown ordering %q (expected index, asc or desc)", s)
	}
}

// Matrix is the finished pivot table. Header[0] is blank; each row starts
// with its row key.
type Matrix struct {
	Header []string
	Rows   [][]string
}

// ColumnKeys returns the header without the leading blank cell.
func (m *Matrix) ColumnKeys() []string {
	if len(m.Header) == 0 {
		return nil
	}
	return m.Header[1:]
}

func ordered(keys []string, o Order) []string {
	out := slices.Clone(keys)
	switch o {
	case OrderAsc:
		slices.Sort(out)
	case OrderDesc:
		slices.Sort(out)
		slices.Reverse(out)
	}
	return out
}

// Assemble finalizes every cell once and lays the results out as a Matrix.
// Pairs without a cell get aggregate.Default; undefined results (for example
// the deviation of a single value) become empty text. The Table must not be
// fed after Assemble.
func (t *Table) Assemble(rowOrder, colOrder Order) (*Matrix, error) {
	rows := ordered(t.rows.order, rowOrder)
	cols := ordered(t.cols.order, colOrder)
	absent := aggregate.Default(t.cfg.Func)

	m := &Matrix{
		Header: append([]string{""}, cols...),
		Rows:   make([][]string, 0, len(rows)),
	}
	for _, r := range rows {
		line := make([]string, 0, len(cols)+1)
		line = append(line, r)
		for _, c := range cols {
			agg, ok := t.cells[cellKey{row: r, col: c}]
			if !ok {
				line = append(line, absent)
				continue
			}
			out, err := agg.Result()
			switch {
			case errors.Is(err, aggregate.ErrTooFewValues):
				out = ""
			case err != nil:
				return nil, err
			}
			line = append(line, out)
		}
		m.Rows = append(m.Rows, line)
	}
	return m, nil
}
