// Package value converts raw cells into the typed values aggregators consume.
//
// The target Kind is chosen once per run from the aggregation function and
// the type flags; the Parser never guesses a kind per cell.
package value

import (
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	"clipivot/internal/errs"
)

// Kind is the semantic type a cell is parsed into.
type Kind int

const (
	Text Kind = iota
	Number
	Date
)

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case Number:
		return "number"
	case Date:
		return "date"
	default:
		return "unknown"
	}
}

// Value is one parsed cell. Only the field matching Kind is meaningful,
// except Text, which always holds the raw cell.
type Value struct {
	Kind  Kind
	Text  string
	Num   decimal.Decimal
	Time  time.Time
	Clock bool // Time carries a time of day
}

// String renders v in its canonical output form.
func (v Value) String() string {
	switch v.Kind {
	case Number:
		return v.Num.String()
	case Date:
		if v.Clock {
			return v.Time.Format("2006-01-02 15:04:05")
		}
		return v.Time.Format("2006-01-02")
	default:
		return v.Text
	}
}

// Compare orders two values of the same Kind: text ordinally, numbers
// numerically, dates chronologically.
func Compare(a, b Value) int {
	switch a.Kind {
	case Number:
		return a.Num.Cmp(b.Num)
	case Date:
		return a.Time.Compare(b.Time)
	default:
		return strings.Compare(a.Text, b.Text)
	}
}

// nullTokens are compared after trimming and case folding.
var nullTokens = map[string]struct{}{
	"":     {},
	"na":   {},
	"nan":  {},
	"n/a":  {},
	"none": {},
	"null": {},
}

// IsNull reports whether raw is a null token.
func IsNull(raw string) bool {
	_, ok := nullTokens[cases.Fold().String(strings.TrimSpace(raw))]
	return ok
}

// numberLiteral accepts plain decimal and exponent forms only; thousands
// separators and currency symbols never match.
var numberLiteral = regexp.MustCompile(`^[+-]?(?:[0-9]+(?:\.[0-9]*)?|\.[0-9]+)(?:[eE][+-]?[0-9]+)?$`)

// maxExponent bounds the scale of a number. Arithmetic on a larger one
// expands its coefficient to that many digits.
const maxExponent = 1000

var (
	errInvalidNumber = errors.New("invalid numeric literal")
	errExponentRange = errors.New("exponent out of range")
	errInvalidText   = errors.New("invalid UTF-8")
	errNoLayout      = errors.New("no known date layout matched")
)

// Options configure a Parser.
type Options struct {
	Kind        Kind
	DateFormat  string // strftime pattern; empty means infer
	DayFirst    bool
	YearFirst   bool
	IgnoreNulls bool
}

// Parser converts raw cells to Values of one Kind.
type Parser struct {
	kind        Kind
	ignoreNulls bool
	dates       *dateParser
}

// NewParser validates opts and builds a Parser.
func NewParser(opts Options) (*Parser, error) {
	p := &Parser{kind: opts.Kind, ignoreNulls: opts.IgnoreNulls}
	if opts.Kind == Date {
		dp, err := newDateParser(opts.DateFormat, opts.DayFirst, opts.YearFirst)
		if err != nil {
			return nil, err
		}
		p.dates = dp
	}
	return p, nil
}

// Kind returns the target kind.
func (p *Parser) Kind() Kind { return p.kind }

// Parse converts raw. ok is false when null filtering is enabled and raw is a
// null token. index is the zero-based record index used in parse errors.
func (p *Parser) Parse(raw string, index int) (v Value, ok bool, err error) {
	if p.ignoreNulls && IsNull(raw) {
		return Value{}, false, nil
	}

	v = Value{Kind: p.kind, Text: raw}
	switch p.kind {
	case Number:
		s := strings.TrimSpace(raw)
		if !numberLiteral.MatchString(s) {
			return Value{}, false, errs.Parse(raw, index, p.kind.String(), errInvalidNumber)
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return Value{}, false, errs.Parse(raw, index, p.kind.String(), err)
		}
		if e := d.Exponent(); e > maxExponent || e < -maxExponent {
			return Value{}, false, errs.Parse(raw, index, p.kind.String(), errExponentRange)
		}
		v.Num = d
	case Date:
		t, clock, err := p.dates.parse(strings.TrimSpace(raw))
		if err != nil {
			return Value{}, false, errs.Parse(raw, index, p.kind.String(), err)
		}
		v.Time, v.Clock = t, clock
	default:
		if !utf8.ValidString(raw) {
			return Value{}, false, errs.Parse(raw, index, p.kind.String(), errInvalidText)
		}
	}
	return v, true, nil
}
