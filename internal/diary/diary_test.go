package diary

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"clipivot/internal/config"
	"clipivot/internal/storage/sqlite"
)

func entry(msg string, at time.Time) Entry {
	return Entry{
		ID:      uuid.New(),
		Time:    at,
		Message: msg,
		Query:   "clipivot count sales.csv --rows dept --val id",
		Digest:  "00000000deadbeef",
		Records: 5,
	}
}

func TestFileAppend(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "diary.txt")
	f := NewFile(path)
	at := time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)

	if err := f.Append(context.Background(), entry("headcount by dept\n", at)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := f.Append(context.Background(), entry("again", at.Add(time.Hour))); err != nil {
		t.Fatalf("Append: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "Data diary " + path + " was created at 2024-03-09 14:05:07\n" +
		"2024-03-09 14:05:07\n\theadcount by dept\n\tQuery: clipivot count sales.csv --rows dept --val id\n" +
		"2024-03-09 15:05:07\n\tagain\n\tQuery: clipivot count sales.csv --rows dept --val id\n"
	if string(b) != want {
		t.Fatalf("diary =\n%q\nwant\n%q", b, want)
	}
}

func TestFileAppendMissingDirectory(t *testing.T) {
	t.Parallel()

	f := NewFile(filepath.Join(t.TempDir(), "nope", "diary.txt"))
	if err := f.Append(context.Background(), entry("x", time.Now())); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}

func TestDBAppend(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "diary.db")
	w, err := Open(ctx, config.Diary{Kind: "sqlite", DSN: dsn, Table: "clipivot_diary"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := w.Append(ctx, entry("run", time.Now())); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	// Reopening must not recreate or fail on the existing table.
	w, err = Open(ctx, config.Diary{Kind: "sqlite", DSN: dsn, Table: "clipivot_diary"})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = w.Close()

	r, closeFn, err := sqlite.NewRepository(ctx, sqlite.Config{DSN: dsn, Table: "clipivot_diary"})
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()
	if n, err := r.Count(ctx); err != nil || n != 3 {
		t.Fatalf("Count = %d, %v", n, err)
	}
}

func TestOpenRequiresTarget(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), config.Diary{}); err == nil {
		t.Fatalf("expected error without path or kind")
	}
	if _, err := Open(context.Background(), config.Diary{Kind: "nosuchdb", DSN: "x", Table: "t"}); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestReadMessage(t *testing.T) {
	t.Parallel()

	var out strings.Builder
	msg, err := ReadMessage(strings.NewReader("  checks the Q3 totals \nignored\n"), &out)
	if err != nil || msg != "checks the Q3 totals" {
		t.Fatalf("ReadMessage = %q, %v", msg, err)
	}
	if !strings.Contains(out.String(), Prompt) {
		t.Fatalf("prompt not shown: %q", out.String())
	}

	msg, err = ReadMessage(strings.NewReader("no newline"), &out)
	if err != nil || msg != "no newline" {
		t.Fatalf("ReadMessage at EOF = %q, %v", msg, err)
	}
}
