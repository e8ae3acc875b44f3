// Package pivot holds the grouping engine and the output assembler.
//
// A Table is fed one record at a time. For each record it joins the selected
// row and column fields into keys, parses the value field and folds it into
// the cell's aggregator. Keys are remembered in discovery order so that the
// assembler can emit them in "index" order without a second pass.
package pivot

import (
	"fmt"
	"strings"

	"clipivot/internal/aggregate"
	"clipivot/internal/value"
)

// Separator joins the raw values of multi-field keys.
const Separator = "_<sep>_"

// TotalKey is the key used when an axis has no selectors.
const TotalKey = "total"

// Config fixes everything a Table needs before the first record.
type Config struct {
	Func   aggregate.Func
	Kind   value.Kind
	Rows   []int
	Cols   []int
	Val    int
	Parser *value.Parser
}

// Stats are running totals for one pass.
type Stats struct {
	Records     int64 // records handed to Add
	Accumulated int64 // values folded into a cell
	Nulls       int64 // values dropped as null tokens
}

type cellKey struct{ row, col string }

// keyIndex remembers keys in first-seen order.
type keyIndex struct {
	order []string
	seen  map[string]struct{}
}

func newKeyIndex() keyIndex { return keyIndex{seen: map[string]struct{}{}} }

func (k *keyIndex) add(key string) {
	if _, ok := k.seen[key]; ok {
		return
	}
	k.seen[key] = struct{}{}
	k.order = append(k.order, key)
}

// Table is the pivot state for one run. It is not safe for concurrent use;
// a single goroutine feeds it.
type Table struct {
	cfg   Config
	rows  keyIndex
	cols  keyIndex
	cells map[cellKey]aggregate.Aggregator
	stats Stats
	width int // minimum record length required by the selectors
}

// New validates cfg and returns an empty Table.
func New(cfg Config) (*Table, error) {
	if cfg.Parser == nil {
		return nil, fmt.Errorf("pivot: nil value parser")
	}
	if cfg.Parser.Kind() != cfg.Kind {
		return nil, fmt.Errorf("pivot: parser kind %s does not match %s", cfg.Parser.Kind(), cfg.Kind)
	}
	// Fail on unsupported func/kind pairs now rather than on the first cell.
	if _, err := aggregate.New(cfg.Func, cfg.Kind); err != nil {
		return nil, err
	}
	width := cfg.Val + 1
	for _, ix := range append(append([]int{}, cfg.Rows...), cfg.Cols...) {
		if ix+1 > width {
			width = ix + 1
		}
	}
	return &Table{
		cfg:   cfg,
		rows:  newKeyIndex(),
		cols:  newKeyIndex(),
		cells: map[cellKey]aggregate.Aggregator{},
		width: width,
	}, nil
}

// Add processes one record. index is its zero-based position in the input,
// header excluded; it only appears in parse errors.
//
// A null value still registers the record's row and column keys. A parse
// error registers nothing and is returned unchanged.
func (t *Table) Add(rec []string, index int) error {
	if len(rec) < t.width {
		return fmt.Errorf("pivot: record %d has %d fields, need at least %d", index, len(rec), t.width)
	}
	t.stats.Records++

	v, ok, err := t.cfg.Parser.Parse(rec[t.cfg.Val], index)
	if err != nil {
		return err
	}

	row := joinKey(rec, t.cfg.Rows)
	col := joinKey(rec, t.cfg.Cols)
	t.rows.add(row)
	t.cols.add(col)

	if !ok {
		t.stats.Nulls++
		return nil
	}

	k := cellKey{row: row, col: col}
	agg, exists := t.cells[k]
	if !exists {
		// Pair validated in New.
		agg, _ = aggregate.New(t.cfg.Func, t.cfg.Kind)
		t.cells[k] = agg
	}
	agg.Add(v)
	t.stats.Accumulated++
	return nil
}

// Stats returns the running totals.
func (t *Table) Stats() Stats { return t.stats }

// Cells returns the number of materialised cells.
func (t *Table) Cells() int { return len(t.cells) }

func joinKey(rec []string, ixs []int) string {
	switch len(ixs) {
	case 0:
		return TotalKey
	case 1:
		return rec[ixs[0]]
	}
	parts := make([]string, len(ixs))
	for i, ix := range ixs {
		parts[i] = rec[ix]
	}
	return strings.Join(parts, Separator)
}
