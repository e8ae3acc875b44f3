package aggregate

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"clipivot/internal/value"
)

type count struct{ n int64 }

func (c *count) Add(value.Value)         { c.n++ }
func (c *count) Result() (string, error) { return strconv.FormatInt(c.n, 10), nil }

type countUnique struct{ seen map[string]struct{} }

func (c *countUnique) Add(v value.Value) { c.seen[v.Text] = struct{}{} }
func (c *countUnique) Result() (string, error) {
	return strconv.Itoa(len(c.seen)), nil
}

// sum adds exactly; decimal addition never rounds.
type sum struct{ total decimal.Decimal }

func (s *sum) Add(v value.Value)         { s.total = s.total.Add(v.Num) }
func (s *sum) Result() (string, error) { return s.total.String(), nil }

// meanDigits is how many digits a mean keeps past the finest input scale.
const meanDigits = 28

var half = decimal.RequireFromString("0.5")

type mean struct {
	total decimal.Decimal
	n     int64
}

func (m *mean) Add(v value.Value) {
	m.total = m.total.Add(v.Num)
	m.n++
}

func (m *mean) Result() (string, error) {
	if m.n == 0 {
		return "", ErrTooFewValues
	}
	places := int32(meanDigits)
	if e := m.total.Exponent(); e < 0 {
		places -= e
	}
	return m.total.DivRound(decimal.NewFromInt(m.n), places).String(), nil
}

// stdDev is Welford's online algorithm: running count, mean and sum of
// squared deviations (m2).
type stdDev struct {
	n    float64
	mean float64
	m2   float64
}

func (s *stdDev) Add(v value.Value) {
	x := v.Num.InexactFloat64()
	s.n++
	delta := x - s.mean
	s.mean += delta / s.n
	s.m2 += delta * (x - s.mean)
}

func (s *stdDev) Result() (string, error) {
	if s.n < 2 {
		return "", ErrTooFewValues
	}
	sd := math.Sqrt(s.m2 / (s.n - 1))
	return strconv.FormatFloat(sd, 'f', -1, 64), nil
}

// median keeps one tree entry per distinct value with its occurrence count,
// so memory grows with distinct values rather than rows.
type median struct {
	tree *btree.BTreeG[medianItem]
	n    int64
}

type medianItem struct {
	v     decimal.Decimal
	count int64
}

func newMedian() *median {
	return &median{tree: btree.NewG(16, func(a, b medianItem) bool { return a.v.LessThan(b.v) })}
}

func (m *median) Add(v value.Value) {
	item, ok := m.tree.Get(medianItem{v: v.Num})
	if !ok {
		item = medianItem{v: v.Num}
	}
	item.count++
	m.tree.ReplaceOrInsert(item)
	m.n++
}

func (m *median) Result() (string, error) {
	if m.n == 0 {
		return "", ErrTooFewValues
	}
	// Zero-based order statistics of the central element(s).
	lo, hi := (m.n-1)/2, m.n/2
	var (
		seen         int64
		loVal, hiVal decimal.Decimal
		haveLo       bool
	)
	m.tree.Ascend(func(it medianItem) bool {
		next := seen + it.count
		if !haveLo && lo < next {
			loVal, haveLo = it.v, true
		}
		if hi < next {
			hiVal = it.v
			return false
		}
		seen = next
		return true
	})
	if lo == hi {
		return loVal.String(), nil
	}
	return loVal.Add(hiVal).Mul(half).String(), nil
}

// mode keeps the value that first reached the running maximum count; later
// values only take over by exceeding it.
type mode struct {
	counts map[string]int
	best   string
	max    int
}

func (m *mode) Add(v value.Value) {
	m.counts[v.Text]++
	if c := m.counts[v.Text]; c > m.max {
		m.best, m.max = v.Text, c
	}
}

func (m *mode) Result() (string, error) {
	if m.max == 0 {
		return "", ErrTooFewValues
	}
	return m.best, nil
}

// extreme tracks a minimum (keepLess) or maximum.
type extreme struct {
	keepLess bool
	cur      value.Value
	set      bool
}

func (e *extreme) Add(v value.Value) {
	if !e.set {
		e.cur, e.set = v, true
		return
	}
	c := value.Compare(v, e.cur)
	if (e.keepLess && c < 0) || (!e.keepLess && c > 0) {
		e.cur = v
	}
}

func (e *extreme) Result() (string, error) {
	if !e.set {
		return "", ErrTooFewValues
	}
	return e.cur.String(), nil
}

type minMax struct {
	lo, hi extreme
}

func newMinMax() minMax { return minMax{lo: extreme{keepLess: true}} }

func (m *minMax) Add(v value.Value) {
	m.lo.Add(v)
	m.hi.Add(v)
}

func (m *minMax) Result() (string, error) {
	lo, err := m.lo.Result()
	if err != nil {
		return "", err
	}
	hi, _ := m.hi.Result()
	return lo + "-" + hi, nil
}

// valueRange subtracts the extremes: numerically, or as elapsed time for
// dates (whole days unless either extreme has a time of day).
type valueRange struct {
	minMax
}

func (r *valueRange) Result() (string, error) {
	if !r.lo.set {
		return "", ErrTooFewValues
	}
	lo, hi := r.lo.cur, r.hi.cur
	if lo.Kind == value.Number {
		return hi.Num.Sub(lo.Num).String(), nil
	}
	if lo.Clock || hi.Clock {
		return elapsed(lo.Time, hi.Time), nil
	}
	days := (civilDay(hi.Time) - civilDay(lo.Time)) / 86400
	return strconv.FormatInt(days, 10), nil
}

// maxDurationSeconds is the longest span a time.Duration can hold.
const maxDurationSeconds = int64(math.MaxInt64 / int64(time.Second))

// elapsed renders hi-lo as a Go duration. Spans past the Duration range
// fall back to whole hours, minutes and seconds.
func elapsed(lo, hi time.Time) string {
	secs := hi.Unix() - lo.Unix()
	if secs < maxDurationSeconds && secs > -maxDurationSeconds {
		return hi.Sub(lo).String()
	}
	sign := ""
	if secs < 0 {
		sign, secs = "-", -secs
	}
	return fmt.Sprintf("%s%dh%dm%ds", sign, secs/3600, secs/60%60, secs%60)
}

// civilDay is the Unix time of t's calendar date at midnight UTC.
func civilDay(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix()
}
