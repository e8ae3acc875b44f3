package value

import (
	"strings"
	"time"

	"github.com/ncruces/go-strftime"

	"clipivot/internal/errs"
)

// Layout groups used for inference. Go's "1" and "2" accept one or two
// digits, so a single layout covers 3/4/2020 and 03/04/2020.
var (
	isoLayouts = []string{
		"2006-1-2",
		"2006/1/2",
		"2006.1.2",
		"20060102",
	}
	monthFirstLayouts = []string{
		"1/2/2006",
		"1-2-2006",
		"1.2.2006",
		"1/2/06",
		"1-2-06",
	}
	dayFirstLayouts = []string{
		"2/1/2006",
		"2-1-2006",
		"2.1.2006",
		"2/1/06",
		"2-1-06",
	}
	yearFirstLayouts = []string{
		"06/1/2",
		"06-1-2",
		"06.1.2",
	}
	textualLayouts = []string{
		"2 Jan 2006",
		"2-Jan-2006",
		"2 January 2006",
		"Jan 2 2006",
		"Jan 2, 2006",
		"January 2 2006",
		"January 2, 2006",
	}
	// zoned layouts are tried before any combination below.
	zonedLayouts = []string{
		time.RFC3339Nano,
		time.RFC3339,
		time.RFC1123Z,
		time.RFC1123,
		"2006-01-02 15:04:05 -0700",
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
	}
	clockSuffixes = []string{
		" 15:04:05",
		" 15:04:05.999999999",
		" 15:04",
		" 3:04 PM",
		" 3:04:05 PM",
	}
)

// dateParser parses dates either with one explicit layout or by trying an
// ordered candidate list.
type dateParser struct {
	layouts []string
	clock   []bool // clock[i] reports whether layouts[i] has a time of day
}

func newDateParser(format string, dayFirst, yearFirst bool) (*dateParser, error) {
	if dayFirst && yearFirst {
		return nil, errs.Configf("--dayfirst and --yearfirst cannot be used together")
	}
	if format != "" {
		layout, err := strftime.Layout(format)
		if err != nil {
			return nil, errs.Configf("unsupported date format %q: %v", format, err)
		}
		return &dateParser{layouts: []string{layout}, clock: []bool{hasClock(layout)}}, nil
	}

	// Ambiguous numeric orders go in preference order; ISO and textual forms
	// are unambiguous and always come first.
	var numeric [][]string
	switch {
	case dayFirst:
		numeric = [][]string{dayFirstLayouts, monthFirstLayouts, yearFirstLayouts}
	case yearFirst:
		numeric = [][]string{yearFirstLayouts, monthFirstLayouts, dayFirstLayouts}
	default:
		numeric = [][]string{monthFirstLayouts, dayFirstLayouts, yearFirstLayouts}
	}
	dates := append([]string{}, isoLayouts...)
	for _, group := range numeric {
		dates = append(dates, group...)
	}
	dates = append(dates, textualLayouts...)

	dp := &dateParser{}
	for _, l := range zonedLayouts {
		dp.add(l, true)
	}
	for _, d := range dates {
		dp.add(d, false)
		for _, suffix := range clockSuffixes {
			dp.add(d+suffix, true)
		}
	}
	return dp, nil
}

func (dp *dateParser) add(layout string, clock bool) {
	dp.layouts = append(dp.layouts, layout)
	dp.clock = append(dp.clock, clock)
}

func (dp *dateParser) parse(s string) (time.Time, bool, error) {
	var firstErr error
	for i, layout := range dp.layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, dp.clock[i], nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if len(dp.layouts) == 1 {
		return time.Time{}, false, firstErr
	}
	return time.Time{}, false, errNoLayout
}

// hasClock reports whether a Go layout includes a time-of-day element.
func hasClock(layout string) bool {
	for _, tok := range []string{"15", "03", "3:", ":04", "04:", ":05", "PM", "pm"} {
		if strings.Contains(layout, tok) {
			return true
		}
	}
	return false
}
