package csv

import (
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	"clipivot/internal/errs"
)

func readAll(t *testing.T, r *Reader) []Row {
	t.Helper()
	var out []Row
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, row)
	}
}

func TestReaderHeaderAndTrim(t *testing.T) {
	t.Parallel()

	in := "\uFEFF id , name\n1,  alice \n2,\"b, c\"\n"
	r, err := NewReader(strings.NewReader(in), Options{HasHeader: true})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if got := r.Header(); !reflect.DeepEqual(got, []string{"id", "name"}) {
		t.Fatalf("header = %q", got)
	}
	if r.Width() != 2 {
		t.Fatalf("width = %d", r.Width())
	}
	rows := readAll(t, r)
	want := []Row{
		{Line: 2, Index: 0, Fields: []string{"1", "alice"}},
		{Line: 3, Index: 1, Fields: []string{"2", "b, c"}},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("rows = %+v, want %+v", rows, want)
	}
}

func TestReaderNoHeader(t *testing.T) {
	t.Parallel()

	r, err := NewReader(strings.NewReader("a\tb\nc\td\n"), Options{Comma: '\t'})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if r.Header() != nil || r.Width() != 2 {
		t.Fatalf("header %q width %d", r.Header(), r.Width())
	}
	rows := readAll(t, r)
	if len(rows) != 2 || rows[0].Index != 0 || rows[1].Index != 1 || rows[1].Fields[1] != "d" {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestReaderStructuralErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		line int
	}{
		{"short record", "a,b\n1,2\n3\n", 3},
		{"long record", "a,b\n1,2,3\n", 2},
		{"bare quote", "a,b\n1,x\"y\n", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, err := NewReader(strings.NewReader(tt.in), Options{HasHeader: true})
			if err != nil {
				t.Fatalf("NewReader: %v", err)
			}
			for {
				_, err = r.Next()
				if err != nil {
					break
				}
			}
			var e *errs.Error
			if !errors.As(err, &e) || e.Kind != errs.KindStructural || e.Line != tt.line {
				t.Fatalf("err = %v, want structural at line %d", err, tt.line)
			}
			if !strings.HasPrefix(err.Error(), "Malformed record on line") {
				t.Fatalf("message = %q", err.Error())
			}
		})
	}
}

func TestReaderEmptyInput(t *testing.T) {
	t.Parallel()

	_, err := NewReader(strings.NewReader(""), Options{HasHeader: true})
	if !errs.Is(err, errs.KindStructural) {
		t.Fatalf("err = %v, want structural", err)
	}
}

func TestStreamRows(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("k,v\n")
	for i := 0; i < 100; i++ {
		b.WriteString("x,1\n")
	}
	r, err := NewReader(strings.NewReader(b.String()), Options{HasHeader: true})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	out := make(chan Row, 200)
	if err := r.StreamRows(context.Background(), out); err != nil {
		t.Fatalf("StreamRows: %v", err)
	}
	if len(out) != 100 {
		t.Fatalf("streamed %d rows, want 100", len(out))
	}
}

func TestStreamRowsCancel(t *testing.T) {
	t.Parallel()

	r, err := NewReader(strings.NewReader("k\n1\n2\n"), Options{HasHeader: true})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.StreamRows(ctx, make(chan Row)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestParseDelimiter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		tab     bool
		delim   string
		path    string
		want    rune
		wantErr bool
	}{
		{path: "data.csv", want: ','},
		{path: "", want: ','},
		{path: "data.tsv", want: '\t'},
		{path: "DATA.TAB", want: '\t'},
		{path: "data.tsv.gz", want: '\t'},
		{path: "data.csv.zst", want: ','},
		{tab: true, path: "x.csv", want: '\t'},
		{delim: `\t`, want: '\t'},
		{delim: ";", path: "x.tsv", want: ';'},
		{tab: true, delim: ";", wantErr: true},
		{delim: "ab", wantErr: true},
		{delim: "é", wantErr: true},
		{delim: `"`, wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDelimiter(tt.tab, tt.delim, tt.path)
		if tt.wantErr {
			if !errs.Is(err, errs.KindConfig) {
				t.Fatalf("ParseDelimiter(%v, %q, %q) err = %v, want config error", tt.tab, tt.delim, tt.path, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("ParseDelimiter(%v, %q, %q) = %q, %v; want %q", tt.tab, tt.delim, tt.path, got, err, tt.want)
		}
	}
}
