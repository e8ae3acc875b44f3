// Package csv reads delimited text into trimmed records for the pivot engine.
//
// Framing problems (bad quoting, a record whose width differs from the first
// line) surface as structural errors carrying the input line. Nothing here
// looks at cell contents; typing is the value package's job.
package csv

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"clipivot/internal/errs"
)

// Options configures a Reader.
type Options struct {
	// Comma is the field delimiter. Zero means ','.
	Comma rune

	// HasHeader treats the first line as field names.
	HasHeader bool
}

// Row is one data record.
type Row struct {
	Line   int      // 1-based input line where the record starts
	Index  int      // zero-based record index, header excluded
	Fields []string // trimmed cells; owned by the receiver
}

// Reader yields the header and then data records.
type Reader struct {
	cr     *csv.Reader
	header []string
	width  int
	next   int
	first  *Row // first data record, buffered when there is no header
}

// NewReader consumes the header line (or, without a header, peeks the first
// record to learn the width). An input with no lines at all is a structural
// error: there is nothing to resolve selectors against.
func NewReader(r io.Reader, opt Options) (*Reader, error) {
	comma := opt.Comma
	if comma == 0 {
		comma = ','
	}

	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.ReuseRecord = true
	cr.FieldsPerRecord = 0 // first line fixes the width

	rd := &Reader{cr: cr}

	rec, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errs.Structural(1, errors.New("input is empty"))
	}
	if err != nil {
		return nil, framingError(err)
	}
	fields := trimAll(StripHeaderBOM(rec))
	rd.width = len(fields)

	if opt.HasHeader {
		rd.header = fields
		return rd, nil
	}
	line, _ := cr.FieldPos(0)
	rd.first = &Row{Line: line, Index: 0, Fields: fields}
	rd.next = 1
	return rd, nil
}

// Header returns the field names, or nil when the input has no header.
func (r *Reader) Header() []string { return r.header }

// Width is the number of fields in every record.
func (r *Reader) Width() int { return r.width }

// Next returns the next data record or io.EOF.
func (r *Reader) Next() (Row, error) {
	if r.first != nil {
		row := *r.first
		r.first = nil
		return row, nil
	}
	rec, err := r.cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Row{}, io.EOF
		}
		return Row{}, framingError(err)
	}
	line, _ := r.cr.FieldPos(0)
	row := Row{Line: line, Index: r.next, Fields: trimAll(rec)}
	r.next++
	return row, nil
}

func trimAll(rec []string) []string {
	out := make([]string, len(rec))
	for i, v := range rec {
		out[i] = strings.TrimSpace(v)
	}
	return out
}

func framingError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return errs.Structural(pe.StartLine, pe.Err)
	}
	return errs.IO(err)
}
