// Package skiplog records records dropped under the skip parse-error policy.
package skiplog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// Header is the first line of every skip log.
var Header = []string{"reason", "record_index", "field", "raw_value"}

// Log counts skipped records per reason and, when it has a writer, appends
// one CSV line per record.
type Log struct {
	mu      sync.Mutex
	reasons map[string]int
	total   int
	w       *csv.Writer
	closer  io.Closer
}

// New returns a Log writing to w. A nil w only counts.
func New(w io.Writer) (*Log, error) {
	l := &Log{reasons: map[string]int{}}
	if w == nil {
		return l, nil
	}
	l.w = csv.NewWriter(w)
	if err := l.w.Write(Header); err != nil {
		return nil, err
	}
	return l, nil
}

// Create opens (truncating) the CSV file at path, creating parent directories.
func Create(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create dir %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	l, err := New(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	l.closer = f
	return l, nil
}

// Add records one skipped record. index is the zero-based record index.
func (l *Log) Add(reason string, index int, field, raw string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reasons[reason]++
	l.total++
	if l.w == nil {
		return nil
	}
	return l.w.Write([]string{reason, strconv.Itoa(index), field, raw})
}

// Total is the number of records added.
func (l *Log) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Reasons returns a copy of the per-reason counts.
func (l *Log) Reasons() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int, len(l.reasons))
	for k, v := range l.reasons {
		out[k] = v
	}
	return out
}

// Close flushes buffered lines and closes the file opened by Create.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var err error
	if l.w != nil {
		l.w.Flush()
		err = l.w.Error()
	}
	if l.closer != nil {
		if cerr := l.closer.Close(); err == nil {
			err = cerr
		}
		l.closer = nil
	}
	return err
}
