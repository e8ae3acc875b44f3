package csv

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	"clipivot/internal/errs"
)

// compressedExts are stripped before looking at the data extension, so that
// "x.tsv.gz" still means tab.
var compressedExts = []string{".gz", ".zst", ".xz"}

// ParseDelimiter picks the field delimiter from the --tab and --delim flags,
// falling back to the file extension and then to a comma. `\t` written
// literally is accepted for tab.
func ParseDelimiter(tab bool, delim, path string) (rune, error) {
	if delim == `\t` {
		delim = "\t"
	}
	if tab {
		if delim != "" && delim != "\t" {
			return 0, errs.Configf("--tab conflicts with --delim %q", delim)
		}
		return '\t', nil
	}
	if delim != "" {
		if len(delim) != 1 || delim[0] >= utf8.RuneSelf {
			return 0, errs.Configf("delimiter %q must be a single-byte character", delim)
		}
		switch c := rune(delim[0]); c {
		case '"', '\r', '\n':
			return 0, errs.Configf("delimiter %q cannot be a quote or line break", delim)
		default:
			return c, nil
		}
	}
	if isTabFile(path) {
		return '\t', nil
	}
	return ',', nil
}

func isTabFile(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	for _, ext := range compressedExts {
		if strings.HasSuffix(name, ext) {
			name = strings.TrimSuffix(name, ext)
			break
		}
	}
	switch filepath.Ext(name) {
	case ".tsv", ".tab":
		return true
	default:
		return false
	}
}
