package aggregate

import (
	"errors"
	"math"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"clipivot/internal/errs"
	"clipivot/internal/value"
)

// feed parses raws with a parser of kind k and runs them through f.
func feed(t *testing.T, f Func, k value.Kind, raws ...string) (string, error) {
	t.Helper()
	p, err := value.NewParser(value.Options{Kind: k})
	if err != nil {
		t.Fatalf("NewParser: %v", err)
	}
	agg, err := New(f, k)
	if err != nil {
		t.Fatalf("New(%s): %v", f, err)
	}
	for i, raw := range raws {
		v, ok, err := p.Parse(raw, i)
		if err != nil || !ok {
			t.Fatalf("Parse(%q): ok %v err %v", raw, ok, err)
		}
		agg.Add(v)
	}
	return agg.Result()
}

func mustResult(t *testing.T, f Func, k value.Kind, raws ...string) string {
	t.Helper()
	got, err := feed(t, f, k, raws...)
	if err != nil {
		t.Fatalf("%s(%v) Result err: %v", f, raws, err)
	}
	return got
}

func TestAggregators(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		f    Func
		k    value.Kind
		in   []string
		want string
	}{
		{"count", Count, value.Text, []string{"a", "b", "a"}, "3"},
		{"countunique", CountUnique, value.Text, []string{"a", "b", "a", "c"}, "3"},
		{"sum", Sum, value.Number, []string{"1.5", "2", "-0.5"}, "3"},
		{"mean", Mean, value.Number, []string{"1", "2", "3", "4"}, "2.5"},
		{"median odd", Median, value.Number, []string{"5", "1", "3"}, "3"},
		{"median even", Median, value.Number, []string{"4", "1", "3", "2"}, "2.5"},
		{"median duplicates", Median, value.Number, []string{"5", "5", "1"}, "5"},
		{"mode first to reach max", Mode, value.Text, []string{"a", "b", "b", "a"}, "b"},
		{"mode single", Mode, value.Text, []string{"x"}, "x"},
		{"min text", Min, value.Text, []string{"b", "a", "c"}, "a"},
		{"max text ordinal", Max, value.Text, []string{"9", "10"}, "9"},
		{"max numeric", Max, value.Number, []string{"9", "10"}, "10"},
		{"min numeric", Min, value.Number, []string{"9", "10", "-1e2"}, "-100"},
		{"minmax text", MinMax, value.Text, []string{"m", "z", "a"}, "a-z"},
		{"minmax numeric", MinMax, value.Number, []string{"3", "11", "2"}, "2-11"},
		{"range numeric", Range, value.Number, []string{"3", "11.5", "2"}, "9.5"},
		{"range dates", Range, value.Date, []string{"2019-01-01", "2019-01-31", "2019-01-10"}, "30"},
		{"range datetimes", Range, value.Date, []string{"2019-01-01 00:00:00", "2019-01-02 01:30:00"}, "25h30m0s"},
		{"max dates", Max, value.Date, []string{"01/02/2019", "2019-03-01"}, "2019-03-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := mustResult(t, tt.f, tt.k, tt.in...); got != tt.want {
				t.Fatalf("%s(%v) = %q, want %q", tt.f, tt.in, got, tt.want)
			}
		})
	}
}

func TestSumIsExact(t *testing.T) {
	t.Parallel()

	in := make([]string, 0, 1000)
	for i := 0; i < 1000; i++ {
		in = append(in, "0.1")
	}
	if got := mustResult(t, Sum, value.Number, in...); got != "100" {
		t.Fatalf("sum of 1000 x 0.1 = %q, want 100", got)
	}

	// Order must not matter.
	r := rand.New(rand.NewPCG(1, 2))
	vals := make([]string, 200)
	want := decimal.Zero
	for i := range vals {
		d := decimal.New(r.Int64N(2_000_000)-1_000_000, -int32(r.IntN(6)))
		vals[i] = d.String()
		want = want.Add(d)
	}
	first := mustResult(t, Sum, value.Number, vals...)
	r.Shuffle(len(vals), func(i, j int) { vals[i], vals[j] = vals[j], vals[i] })
	second := mustResult(t, Sum, value.Number, vals...)
	if first != want.String() || second != first {
		t.Fatalf("sum not exact/order independent: %s vs %s, want %s", first, second, want)
	}
	mean := mustResult(t, Mean, value.Number, vals...)
	// 200 values: dividing by 200 terminates, so the mean is exact.
	if mean != want.Mul(decimal.RequireFromString("0.005")).String() {
		t.Fatalf("mean = %s", mean)
	}
}

func TestMeanAndMedianKeepSmallScales(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		f    Func
		in   []string
		want string
	}{
		{"mean of one tiny value", Mean, []string{"0.00000000000000001"}, "0.00000000000000001"},
		{"mean of tiny values", Mean, []string{"0.00000000000000003", "0.00000000000000001"}, "0.00000000000000002"},
		{"mean below tiny scale", Mean, []string{"0.00000000000000001", "0"}, "0.000000000000000005"},
		{"mean repeating", Mean, []string{"1", "2", "2"}, "1." + strings.Repeat("6", 27) + "7"},
		{"median of tiny values", Median, []string{"0.00000000000000001", "0.00000000000000003"}, "0.00000000000000002"},
		{"median halves last digit", Median, []string{"0.00000000000000001", "0.00000000000000002"}, "0.000000000000000015"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := mustResult(t, tt.f, value.Number, tt.in...); got != tt.want {
				t.Fatalf("%s(%v) = %s, want %s", tt.f, tt.in, got, tt.want)
			}
		})
	}
}

func TestRangeSpansCenturies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   []string
		want string
	}{
		{[]string{"2019-01-01", "1500-01-01"}, "189561"},
		{[]string{"1500-01-01 00:00:00", "2019-01-01 12:00:00"}, "4549476h0m0s"},
		{[]string{"1900-01-01 00:00:00", "2019-01-01 12:00:00"}, "1043148h0m0s"},
	}
	for _, tt := range tests {
		if got := mustResult(t, Range, value.Date, tt.in...); got != tt.want {
			t.Fatalf("range(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func twoPassStdDev(xs []float64) float64 {
	var m float64
	for _, x := range xs {
		m += x
	}
	m /= float64(len(xs))
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

func TestStdDevMatchesTwoPass(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewPCG(7, 11))
	for trial := 0; trial < 50; trial++ {
		n := 2 + r.IntN(300)
		xs := make([]float64, n)
		raws := make([]string, n)
		for i := range xs {
			xs[i] = math.Round((r.NormFloat64()*1000+5000)*1000) / 1000
			raws[i] = strconv.FormatFloat(xs[i], 'f', -1, 64)
		}
		got, err := strconv.ParseFloat(mustResult(t, StdDev, value.Number, raws...), 64)
		if err != nil {
			t.Fatalf("stddev output not a float: %v", err)
		}
		want := twoPassStdDev(xs)
		if math.Abs(got-want) > 1e-6*math.Max(1, want) {
			t.Fatalf("trial %d: stddev = %v, want %v", trial, got, want)
		}
	}
}

func TestStdDevNeedsTwoValues(t *testing.T) {
	t.Parallel()

	_, err := feed(t, StdDev, value.Number, "5")
	if !errors.Is(err, ErrTooFewValues) {
		t.Fatalf("stddev of one value err = %v, want ErrTooFewValues", err)
	}
}

func TestMedianMatchesSorted(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewPCG(3, 5))
	for trial := 0; trial < 40; trial++ {
		n := 1 + r.IntN(60)
		ds := make([]decimal.Decimal, n)
		raws := make([]string, n)
		for i := range ds {
			ds[i] = decimal.NewFromInt(int64(r.IntN(20)))
			raws[i] = ds[i].String()
		}
		sort.Slice(ds, func(i, j int) bool { return ds[i].LessThan(ds[j]) })
		var want decimal.Decimal
		if n%2 == 1 {
			want = ds[n/2]
		} else {
			want = ds[n/2-1].Add(ds[n/2]).Mul(decimal.RequireFromString("0.5"))
		}
		if got := mustResult(t, Median, value.Number, raws...); got != want.String() {
			t.Fatalf("median(%v) = %s, want %s", raws, got, want)
		}
	}
}

func TestMinMaxFormat(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewPCG(9, 9))
	for trial := 0; trial < 20; trial++ {
		n := 1 + r.IntN(30)
		raws := make([]string, n)
		for i := range raws {
			raws[i] = strconv.Itoa(r.IntN(1000))
		}
		lo := mustResult(t, Min, value.Number, raws...)
		hi := mustResult(t, Max, value.Number, raws...)
		if got := mustResult(t, MinMax, value.Number, raws...); got != lo+"-"+hi {
			t.Fatalf("minmax = %q, want %q", got, lo+"-"+hi)
		}
	}
}

func TestRangeRejectsText(t *testing.T) {
	t.Parallel()

	_, err := New(Range, value.Text)
	if err == nil || !errs.Is(err, errs.KindConfig) {
		t.Fatalf("New(range, text) err = %v, want config error", err)
	}
}

func TestParseFunc(t *testing.T) {
	t.Parallel()

	for _, name := range Names() {
		f, err := ParseFunc(name)
		if err != nil || f.String() != name {
			t.Fatalf("ParseFunc(%q) = %v, %v", name, f, err)
		}
	}
	if f, err := ParseFunc(" StdDev "); err != nil || f != StdDev {
		t.Fatalf("ParseFunc is not case-insensitive: %v %v", f, err)
	}
	if _, err := ParseFunc("avg"); !errs.Is(err, errs.KindConfig) {
		t.Fatalf("ParseFunc(avg) err = %v", err)
	}
}

func TestKindFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		f       Func
		flags   TypeFlags
		want    value.Kind
		wantErr bool
	}{
		{f: Count, want: value.Text},
		{f: CountUnique, flags: TypeFlags{Numeric: true}, want: value.Text},
		{f: Mode, want: value.Text},
		{f: Sum, want: value.Number},
		{f: Mean, want: value.Number},
		{f: Median, want: value.Number},
		{f: StdDev, want: value.Number},
		{f: Sum, flags: TypeFlags{Infer: true}, wantErr: true},
		{f: Min, want: value.Text},
		{f: Max, flags: TypeFlags{Numeric: true}, want: value.Number},
		{f: MinMax, flags: TypeFlags{Infer: true}, want: value.Date},
		{f: Min, flags: TypeFlags{DateFormat: "%Y"}, want: value.Date},
		{f: Range, want: value.Date},
		{f: Range, flags: TypeFlags{Numeric: true}, want: value.Number},
		{f: Max, flags: TypeFlags{Numeric: true, Infer: true}, wantErr: true},
	}
	for _, tt := range tests {
		got, err := KindFor(tt.f, tt.flags)
		if tt.wantErr {
			if !errs.Is(err, errs.KindConfig) {
				t.Fatalf("KindFor(%s, %+v) err = %v, want config error", tt.f, tt.flags, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("KindFor(%s, %+v) = %v, %v; want %v", tt.f, tt.flags, got, err, tt.want)
		}
	}
}

func TestDefault(t *testing.T) {
	t.Parallel()

	for f, want := range map[Func]string{Count: "0", Sum: "0", CountUnique: "0", Min: "", Max: "", Mean: "", StdDev: ""} {
		if got := Default(f); got != want {
			t.Fatalf("Default(%s) = %q, want %q", f, got, want)
		}
	}
}
