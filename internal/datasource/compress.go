package datasource

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	xzMagic   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
)

// Compression names a detected stream format.
type Compression string

const (
	None Compression = ""
	Gzip Compression = "gzip"
	Zstd Compression = "zstd"
	XZ   Compression = "xz"
)

// Sniff identifies a compressed stream from its leading bytes.
func Sniff(head []byte) Compression {
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		return Gzip
	case bytes.HasPrefix(head, zstdMagic):
		return Zstd
	case bytes.HasPrefix(head, xzMagic):
		return XZ
	default:
		return None
	}
}

type decompressed struct {
	r io.Reader
	c io.Closer // nil when the decoder holds no resources
}

// decompress peeks at r and wraps it in the matching decoder. Detection is by
// content rather than file name, so stdin and URLs behave like files.
func decompress(r io.Reader) (decompressed, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	head, err := br.Peek(len(xzMagic))
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return decompressed{}, err
	}

	switch Sniff(head) {
	case Gzip:
		zr, err := gzip.NewReader(br)
		if err != nil {
			return decompressed{}, fmt.Errorf("gzip: %w", err)
		}
		return decompressed{r: zr, c: zr}, nil
	case Zstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return decompressed{}, fmt.Errorf("zstd: %w", err)
		}
		rc := zr.IOReadCloser()
		return decompressed{r: rc, c: rc}, nil
	case XZ:
		xr, err := xz.NewReader(br)
		if err != nil {
			return decompressed{}, fmt.Errorf("xz: %w", err)
		}
		return decompressed{r: xr}, nil
	default:
		return decompressed{r: br}, nil
	}
}
