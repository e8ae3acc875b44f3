package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"clipivot/internal/aggregate"
	"clipivot/internal/errs"
	"clipivot/internal/pivot"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks the run.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is logged and the run continues.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single validation finding. Path is the JSON path of the offending
// field, e.g. "diary.dsn".
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

var (
	outputFormats  = []string{"csv", "tsv", "json", "table", "xlsx"}
	parsePolicies  = []string{"fail", "skip"}
	metricBackends = []string{"none", "pushgateway", "datadog"}
	// storageKinds are the database backends compiled into the binary.
	storageKinds = []string{"sqlite", "postgres", "mssql", "mysql"}
)

// ValidateRun statically checks r. It does not look at the input data;
// selectors are resolved against the header later.
func ValidateRun(r Run) []Issue {
	var issues []Issue
	add := func(sev IssueSeverity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(r.Func) == "" {
		add(SeverityError, "aggfunc", "aggregation function is required")
	} else if _, err := aggregate.ParseFunc(r.Func); err != nil {
		add(SeverityError, "aggfunc", "unknown function %q; expected one of %s", r.Func, strings.Join(aggregate.Names(), ", "))
	}
	if strings.TrimSpace(r.Val) == "" {
		add(SeverityError, "val", "a value selector is required")
	}

	if r.Numeric && (r.Infer || r.DateFormat != "") {
		add(SeverityError, "numeric", "numeric parsing cannot be combined with date parsing")
	}
	if r.DayFirst && r.YearFirst {
		add(SeverityError, "dayfirst", "dayfirst and yearfirst are mutually exclusive")
	}
	if (r.DayFirst || r.YearFirst) && !r.Infer {
		add(SeverityWarning, "dayfirst", "date hints only apply with infer")
	}

	if _, err := pivot.ParseOrder(r.RowOrder); err != nil {
		add(SeverityError, "row_order", "must be index, asc or desc, got %q", r.RowOrder)
	}
	if _, err := pivot.ParseOrder(r.ColOrder); err != nil {
		add(SeverityError, "col_order", "must be index, asc or desc, got %q", r.ColOrder)
	}

	if !slices.Contains(parsePolicies, r.OnParseError) {
		add(SeverityError, "on_parse_error", "must be fail or skip, got %q", r.OnParseError)
	} else if r.SkipLog != "" && r.OnParseError != "skip" {
		add(SeverityWarning, "skip_log", "skip log is only written with on_parse_error=skip")
	}

	if r.Input.HTTPRetries < 0 {
		add(SeverityError, "input.http_retries", "must be >= 0")
	}

	if !slices.Contains(outputFormats, r.Output.Format) {
		add(SeverityError, "output.format", "unknown format %q; expected one of %s", r.Output.Format, strings.Join(outputFormats, ", "))
	} else if r.Output.Format == "xlsx" && r.Output.Path == "" {
		add(SeverityWarning, "output.path", "xlsx is binary; stdout must be redirected")
	}

	issues = append(issues, validateDiary(r.Diary)...)
	issues = append(issues, validateExport(r.Export)...)
	issues = append(issues, validateMetrics(r.Metrics)...)
	return issues
}

func validateDiary(d Diary) []Issue {
	var issues []Issue
	if d.Path != "" && d.Kind != "" {
		issues = append(issues, Issue{SeverityError, "diary", "set either diary.path or diary.kind, not both"})
	}
	if d.Kind != "" {
		issues = append(issues, validateDB("diary", d.Kind, d.DSN, d.Table)...)
	}
	return issues
}

func validateExport(e Export) []Issue {
	if e.Kind == "" {
		return nil
	}
	issues := validateDB("export", e.Kind, e.DSN, e.Table)
	if e.BatchSize <= 0 {
		issues = append(issues, Issue{SeverityError, "export.batch_size", "must be > 0"})
	}
	return issues
}

func validateDB(prefix, kind, dsn, table string) []Issue {
	var issues []Issue
	if !slices.Contains(storageKinds, kind) {
		issues = append(issues, Issue{SeverityError, prefix + ".kind",
			fmt.Sprintf("unknown database kind %q; expected one of %s", kind, strings.Join(storageKinds, ", "))})
	}
	if strings.TrimSpace(dsn) == "" {
		issues = append(issues, Issue{SeverityError, prefix + ".dsn", "a DSN is required for " + kind})
	}
	if strings.TrimSpace(table) == "" {
		issues = append(issues, Issue{SeverityError, prefix + ".table", "table must not be empty"})
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue
	backend := m.Backend
	if backend == "" {
		backend = "none"
	}
	switch {
	case !slices.Contains(metricBackends, backend):
		issues = append(issues, Issue{SeverityError, "metrics.backend",
			fmt.Sprintf("unknown backend %q; expected one of %s", m.Backend, strings.Join(metricBackends, ", "))})
	case backend == "pushgateway" && m.Options.String("pushgateway_url", "") == "":
		issues = append(issues, Issue{SeverityError, "metrics.options.pushgateway_url", "pushgateway backend needs a URL"})
	case backend == "datadog" && m.Options.String("statsd_addr", "") == "":
		issues = append(issues, Issue{SeverityWarning, "metrics.options.statsd_addr", "no statsd address; using the client default"})
	}
	if backend != "none" && strings.TrimSpace(m.Job) == "" {
		issues = append(issues, Issue{SeverityError, "metrics.job", "job must not be empty; it labels every metric"})
	}
	return issues
}

// Err folds the error-severity issues into one configuration error, or
// returns nil when there are none.
func Err(issues []Issue) error {
	var list []error
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			list = append(list, iss)
		}
	}
	if len(list) == 0 {
		return nil
	}
	e := errs.Configf("invalid run configuration")
	e.Err = errors.Join(list...)
	return e
}
