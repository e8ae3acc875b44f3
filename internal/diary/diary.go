// Package diary records each successful run in a data diary: a plain text
// log file or a database table.
package diary

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ncruces/go-strftime"

	"clipivot/internal/config"
	"clipivot/internal/ddl"
	"clipivot/internal/storage"
)

// Prompt is shown when no message was given on the command line.
const Prompt = "Describe what this query does, why you ran it, and what it shows:"

const timePattern = "%Y-%m-%d %H:%M:%S"

// Entry is one diary record.
type Entry struct {
	ID      uuid.UUID
	Time    time.Time
	Message string
	Query   string // the command line, space-joined
	Digest  string // xxh3 of the rendered output, hex
	Records int64
}

// Writer appends entries to a diary.
type Writer interface {
	Append(ctx context.Context, e Entry) error
	Close() error
}

// Open returns the writer cfg selects: a file when Path is set, otherwise a
// database table through the storage registry.
func Open(ctx context.Context, cfg config.Diary) (Writer, error) {
	switch {
	case cfg.Path != "":
		return NewFile(cfg.Path), nil
	case cfg.Kind != "":
		return OpenDB(ctx, cfg.Kind, cfg.DSN, cfg.Table)
	default:
		return nil, errors.New("diary: neither a path nor a database kind is configured")
	}
}

// formatTime renders t the way the diary has always been stamped.
func formatTime(t time.Time) string {
	return strftime.Format(timePattern, t)
}

// File is the plain text diary.
type File struct {
	path string
}

// NewFile returns a diary backed by path. The file is created on first use.
func NewFile(path string) *File {
	return &File{path: path}
}

// Append writes e. A new or empty file first gets a creation line:
//
//	Data diary <path> was created at <time>
func (f *File) Append(_ context.Context, e Entry) error {
	fp, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("diary: open %s: %w", f.path, err)
	}
	st, err := fp.Stat()
	if err != nil {
		_ = fp.Close()
		return fmt.Errorf("diary: stat %s: %w", f.path, err)
	}

	w := bufio.NewWriter(fp)
	stamp := formatTime(e.Time)
	if st.Size() == 0 {
		fmt.Fprintf(w, "Data diary %s was created at %s\n", f.path, stamp)
	}
	fmt.Fprintf(w, "%s\n\t%s\n\tQuery: %s\n", stamp, strings.TrimRight(e.Message, "\r\n"), e.Query)
	if err := w.Flush(); err != nil {
		_ = fp.Close()
		return fmt.Errorf("diary: write %s: %w", f.path, err)
	}
	return fp.Close()
}

func (f *File) Close() error { return nil }

// Table is the diary table layout.
func Table(name string) ddl.TableDef {
	return ddl.TableDef{FQN: name, Columns: []ddl.ColumnDef{
		{Name: "id", Type: ddl.TypeUUID, PrimaryKey: true},
		{Name: "time", Type: ddl.TypeTimestamp},
		{Name: "message", Type: ddl.TypeText},
		{Name: "query", Type: ddl.TypeText},
		{Name: "digest", Type: ddl.TypeText},
		{Name: "records", Type: ddl.TypeBigInt},
	}}
}

// DB is a diary stored in a database table.
type DB struct {
	repo storage.Repository
	def  ddl.TableDef
}

// OpenDB opens kind/dsn through the storage registry and creates the table
// when missing.
func OpenDB(ctx context.Context, kind, dsn, table string) (*DB, error) {
	repo, err := storage.New(ctx, storage.Config{Kind: kind, DSN: dsn, Table: table})
	if err != nil {
		return nil, fmt.Errorf("diary: %w", err)
	}
	return newDB(ctx, kind, repo, table)
}

func newDB(ctx context.Context, kind string, repo storage.Repository, table string) (*DB, error) {
	def := Table(table)
	if err := storage.EnsureTable(ctx, kind, repo, def); err != nil {
		repo.Close()
		return nil, fmt.Errorf("diary: %w", err)
	}
	return &DB{repo: repo, def: def}, nil
}

func (d *DB) Append(ctx context.Context, e Entry) error {
	row := []any{e.ID, e.Time.UTC(), e.Message, e.Query, e.Digest, e.Records}
	if _, err := d.repo.CopyFrom(ctx, d.def.ColumnNames(), [][]any{row}); err != nil {
		return fmt.Errorf("diary: insert: %w", err)
	}
	return nil
}

func (d *DB) Close() error {
	d.repo.Close()
	return nil
}

// ReadMessage shows Prompt on out and reads one line from in.
func ReadMessage(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprintln(out, Prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("diary: read message: %w", err)
	}
	return strings.TrimSpace(line), nil
}
