package skiplog

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestCreateWritesHeaderAndRows(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "nested", "skipped.csv")
	l, err := Create(p)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := l.Add("parse", 3, "salary", "12,5"); err != nil {
		t.Fatal(err)
	}
	if err := l.Add("parse", 9, "salary", "n.a."); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	want := "reason,record_index,field,raw_value\nparse,3,salary,\"12,5\"\nparse,9,salary,n.a.\n"
	if string(b) != want {
		t.Fatalf("file = %q, want %q", b, want)
	}
	if l.Total() != 2 || !reflect.DeepEqual(l.Reasons(), map[string]int{"parse": 2}) {
		t.Fatalf("counts = %d %v", l.Total(), l.Reasons())
	}
}

func TestCountOnly(t *testing.T) {
	t.Parallel()

	l, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	_ = l.Add("parse", 0, "v", "x")
	if l.Total() != 1 {
		t.Fatalf("total = %d", l.Total())
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNewWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l, err := New(&buf)
	if err != nil {
		t.Fatal(err)
	}
	_ = l.Add("parse", 1, "amount", "abc")
	_ = l.Close()
	if buf.String() != "reason,record_index,field,raw_value\nparse,1,amount,abc\n" {
		t.Fatalf("buf = %q", buf.String())
	}
}
