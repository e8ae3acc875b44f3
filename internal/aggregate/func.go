// Package aggregate implements the eleven streaming accumulators a pivot cell
// can hold. The set is closed: Func enumerates it and New is the only
// constructor.
package aggregate

import (
	"errors"
	"strings"

	"clipivot/internal/errs"
	"clipivot/internal/value"
)

// Func names an aggregation function.
type Func int

const (
	Count Func = iota + 1
	CountUnique
	Sum
	Mean
	Median
	Mode
	StdDev
	Min
	Max
	MinMax
	Range
)

var funcNames = map[Func]string{
	Count:       "count",
	CountUnique: "countunique",
	Sum:         "sum",
	Mean:        "mean",
	Median:      "median",
	Mode:        "mode",
	StdDev:      "stddev",
	Min:         "min",
	Max:         "max",
	MinMax:      "minmax",
	Range:       "range",
}

// Names lists the accepted function names in a stable order.
func Names() []string {
	out := make([]string, 0, len(funcNames))
	for f := Count; f <= Range; f++ {
		out = append(out, funcNames[f])
	}
	return out
}

func (f Func) String() string {
	if s, ok := funcNames[f]; ok {
		return s
	}
	return "unknown"
}

// ParseFunc maps a name (case-insensitive) to a Func.
func ParseFunc(s string) (Func, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for f, n := range funcNames {
		if n == name {
			return f, nil
		}
	}
	return 0, errs.Configf("unknown aggregation function %q (expected one of %s)", s, strings.Join(Names(), ", "))
}

// Default is the text emitted for a (row, column) pair that never received a
// value.
func Default(f Func) string {
	switch f {
	case Count, CountUnique, Sum:
		return "0"
	default:
		return ""
	}
}

// ErrTooFewValues is returned by Result when the statistic is undefined for
// the number of accumulated values.
var ErrTooFewValues = errors.New("aggregate: too few values")

// Aggregator accumulates typed values for one cell.
type Aggregator interface {
	// Add folds one non-null value into the state.
	Add(v value.Value)
	// Result renders the final value. It is called at most once.
	Result() (string, error)
}

// TypeFlags are the user's parsing overrides.
type TypeFlags struct {
	Numeric    bool
	Infer      bool
	DateFormat string
}

func (t TypeFlags) wantsDate() bool { return t.Infer || t.DateFormat != "" }

// KindFor decides, once per run, which kind of value f consumes.
func KindFor(f Func, flags TypeFlags) (value.Kind, error) {
	if flags.Numeric && flags.wantsDate() {
		return 0, errs.Configf("--numeric cannot be combined with date parsing options")
	}
	switch f {
	case Count, CountUnique, Mode:
		return value.Text, nil
	case Sum, Mean, Median, StdDev:
		if flags.wantsDate() {
			return 0, errs.Configf("%s requires numeric values and cannot parse dates", f)
		}
		return value.Number, nil
	case Min, Max, MinMax:
		switch {
		case flags.Numeric:
			return value.Number, nil
		case flags.wantsDate():
			return value.Date, nil
		default:
			return value.Text, nil
		}
	case Range:
		if flags.Numeric {
			return value.Number, nil
		}
		return value.Date, nil
	default:
		return 0, errs.Configf("unknown aggregation function %d", int(f))
	}
}

// New returns a fresh accumulator for f over values of kind k.
func New(f Func, k value.Kind) (Aggregator, error) {
	switch f {
	case Count:
		return &count{}, nil
	case CountUnique:
		return &countUnique{seen: map[string]struct{}{}}, nil
	case Sum:
		return &sum{}, nil
	case Mean:
		return &mean{}, nil
	case Median:
		return newMedian(), nil
	case Mode:
		return &mode{counts: map[string]int{}}, nil
	case StdDev:
		return &stdDev{}, nil
	case Min:
		return &extreme{keepLess: true}, nil
	case Max:
		return &extreme{}, nil
	case MinMax:
		mm := newMinMax()
		return &mm, nil
	case Range:
		if k == value.Text {
			return nil, errs.Configf("range needs numeric or date values; text cannot be subtracted")
		}
		return &valueRange{minMax: newMinMax()}, nil
	default:
		return nil, errs.Configf("unknown aggregation function %d", int(f))
	}
}
