// Package datasource turns the positional input argument into a byte stream:
// a local file, stdin or an HTTP(S) URL, transparently decompressed and
// decoded to UTF-8.
package datasource

import (
	"context"
	"io"
	"strings"

	"clipivot/internal/datasource/file"
	"clipivot/internal/datasource/httpds"
)

// Source opens one input stream.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	// Name is a file name hint ("sales.tsv.gz"), or "" when there is none.
	Name() string
}

// IsURL reports whether arg names an HTTP(S) resource.
func IsURL(arg string) bool {
	a := strings.ToLower(arg)
	return strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://")
}

// IsStdin reports whether arg selects standard input.
func IsStdin(arg string) bool { return arg == "" || arg == "-" }

// Resolve maps the positional argument to a Source. client is only used for
// URLs and may be nil otherwise.
func Resolve(arg string, stdin io.Reader, client *httpds.Client) Source {
	switch {
	case IsStdin(arg):
		return NewStdin(stdin)
	case IsURL(arg):
		if client == nil {
			client = httpds.NewClient(httpds.Config{})
		}
		return httpds.NewSource(client, arg)
	default:
		return file.NewLocal(arg)
	}
}

// Stdin reads from an already-open reader, normally os.Stdin. Closing it is a
// no-op.
type Stdin struct{ r io.Reader }

// NewStdin wraps r.
func NewStdin(r io.Reader) *Stdin { return &Stdin{r: r} }

func (s *Stdin) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return io.NopCloser(s.r), nil
}

func (s *Stdin) Name() string { return "" }

// Open opens src, strips any compression and decodes encoding to UTF-8. The
// returned closer releases every layer.
func Open(ctx context.Context, src Source, encoding string) (io.ReadCloser, error) {
	raw, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	st := &stack{Reader: raw, closers: []io.Closer{raw}}

	dec, err := decompress(raw)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	st.Reader = dec.r
	if dec.c != nil {
		st.closers = append(st.closers, dec.c)
	}

	r, err := decode(st.Reader, encoding)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	st.Reader = r
	return st, nil
}

// stack closes wrapped readers innermost last.
type stack struct {
	io.Reader
	closers []io.Closer
}

func (s *stack) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}
