// Package fieldsel resolves user field selectors against a header.
//
// A selector is one of:
//
//	2            zero-based column index
//	salary       first column named "salary"
//	name[1]      second column named "name"
//	"2018"       a quoted name; quotes force name lookup and protect commas
//
// Selector lists are comma separated ("a,'b,c',d[1]").
package fieldsel

import (
	"strconv"
	"strings"

	"clipivot/internal/errs"
)

// Split breaks a comma-separated selector list into selectors, honouring
// single and double quotes. Quotes are kept in the returned tokens so that
// Resolve can tell "2" (a name) from 2 (an index).
func Split(list string) ([]string, error) {
	var (
		out   []string
		cur   strings.Builder
		quote rune
		last  rune
	)
	for _, c := range list {
		last = c
		if quote == 0 {
			switch {
			case (c == '\'' || c == '"') && cur.Len() == 0:
				quote = c
				cur.WriteRune(c)
			case c == ',':
				out = append(out, cur.String())
				cur.Reset()
			default:
				cur.WriteRune(c)
			}
			continue
		}
		if c == '\'' || c == '"' {
			if c != quote {
				return nil, errs.Configf("Quotes inside fieldname were not properly closed")
			}
			quote = 0
		}
		cur.WriteRune(c)
	}
	if quote != 0 {
		return nil, errs.Configf("Quotes inside fieldname were not properly closed")
	}
	if last == ',' {
		return nil, errs.Configf("One of the fieldnames ends with an unquoted comma")
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out, nil
}

// SplitAll applies Split to every list and concatenates the results.
func SplitAll(lists []string) ([]string, error) {
	var out []string
	for _, l := range lists {
		sels, err := Split(l)
		if err != nil {
			return nil, err
		}
		out = append(out, sels...)
	}
	return out, nil
}

// Resolver maps selectors to column indices for one header.
type Resolver struct {
	header    []string
	hasHeader bool
	width     int
}

// NewResolver builds a Resolver. With hasHeader false, header may be nil and
// width is the field count of the first record.
func NewResolver(header []string, hasHeader bool, width int) *Resolver {
	if hasHeader {
		width = len(header)
	}
	return &Resolver{header: header, hasHeader: hasHeader, width: width}
}

// Width returns the number of columns selectors are checked against.
func (r *Resolver) Width() int { return r.width }

// Resolve returns the column index for one selector.
func (r *Resolver) Resolve(sel string) (int, error) {
	s := strings.TrimSpace(sel)
	if s == "" {
		return 0, errs.Configf("Empty field selector")
	}
	if isDigits(s) {
		n, err := strconv.Atoi(s)
		if err != nil || n >= r.width {
			return 0, errs.Configf("Column selection `%s` must be between 0 <= selection < %d", s, r.width)
		}
		return n, nil
	}
	if !r.hasHeader {
		return 0, errs.Configf("Field `%s` must be a numeric index when the input has no header row", s)
	}

	name, occurrence, err := splitOccurrence(s)
	if err != nil {
		return 0, err
	}
	seen := 0
	for i, h := range r.header {
		if h != name {
			continue
		}
		if seen == occurrence {
			return i, nil
		}
		seen++
	}
	if occurrence == 0 {
		return 0, errs.Configf("Could not find the fieldname `%s` in the header", name)
	}
	return 0, errs.Configf("There are only %d occurrences of the fieldname `%s`", seen, name)
}

// ResolveAll resolves every selector, dropping repeated indices while keeping
// the order of first appearance. Naming a column twice, directly or by index,
// therefore yields the same keys as naming it once: "dept,dept" groups like
// "dept", never as "dept_<sep>_dept".
func (r *Resolver) ResolveAll(sels []string) ([]int, error) {
	out := make([]int, 0, len(sels))
	seen := make(map[int]struct{}, len(sels))
	for _, s := range sels {
		ix, err := r.Resolve(s)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[ix]; dup {
			continue
		}
		seen[ix] = struct{}{}
		out = append(out, ix)
	}
	return out, nil
}

// splitOccurrence separates `name[k]` into name and k, stripping quotes from
// the name. A bracket inside quotes belongs to the name.
func splitOccurrence(s string) (string, int, error) {
	var (
		quote   rune
		name    strings.Builder
		bracket = -1
	)
	for i, c := range s {
		if quote != 0 {
			if c == quote {
				quote = 0
				continue
			}
			name.WriteRune(c)
			continue
		}
		switch {
		case c == '\'' || c == '"':
			quote = c
		case c == '[':
			bracket = i
		default:
			name.WriteRune(c)
		}
		if bracket >= 0 {
			break
		}
	}
	if bracket < 0 {
		return name.String(), 0, nil
	}

	rest := s[bracket+1:]
	if !strings.HasSuffix(rest, "]") {
		return "", 0, errs.Configf("Could not parse the fieldname %s. You may need to encapsulate the field in quotes", s)
	}
	digits := strings.TrimSuffix(rest, "]")
	if !isDigits(digits) {
		return "", 0, errs.Configf("Could not parse the fieldname %s. You may need to encapsulate the field in quotes", s)
	}
	k, err := strconv.Atoi(digits)
	if err != nil {
		return "", 0, errs.Configf("Could not parse the fieldname %s: %v", s, err)
	}
	return name.String(), k, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
