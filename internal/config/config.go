// Package config defines the JSON-serialisable description of one pivot run.
//
// A Run can be loaded from a file (--config) and is then overlaid with the
// flags the user set explicitly. Free-form backend settings (metrics) live in
// an Options bag read through typed accessors.
//
// Example (trimmed):
//
//	{
//	  "aggfunc": "sum",
//	  "rows": ["department"],
//	  "cols": ["was_fired"],
//	  "val": "salary",
//	  "input":   { "path": "employees.csv" },
//	  "output":  { "format": "table" },
//	  "metrics": { "backend": "pushgateway", "options": { "pushgateway_url": "http://pgw:9091" } }
//	}
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"clipivot/internal/errs"
)

// Run describes one invocation.
type Run struct {
	// Func is the aggregation function name ("count", "sum", ...).
	Func string `json:"aggfunc"`

	// Rows, Cols and Val are field selectors: a name, a zero-based index or
	// name[k] for the k-th duplicate.
	Rows []string `json:"rows"`
	Cols []string `json:"cols"`
	Val  string   `json:"val"`

	Numeric     bool   `json:"numeric"`
	Infer       bool   `json:"infer"`
	DateFormat  string `json:"date_format"`
	DayFirst    bool   `json:"dayfirst"`
	YearFirst   bool   `json:"yearfirst"`
	IgnoreNulls bool   `json:"ignore_nulls"`

	// RowOrder and ColOrder are "index", "asc" or "desc".
	RowOrder string `json:"row_order"`
	ColOrder string `json:"col_order"`

	// OnParseError is "fail" or "skip".
	OnParseError string `json:"on_parse_error"`
	// SkipLog is a CSV file receiving skipped records.
	SkipLog string `json:"skip_log"`

	Input   Input   `json:"input"`
	Output  Output  `json:"output"`
	Diary   Diary   `json:"diary"`
	Export  Export  `json:"export"`
	Metrics Metrics `json:"metrics"`
}

// Input selects and frames the data.
type Input struct {
	// Path is a file, "-" for stdin or an http(s) URL. Empty means stdin.
	Path      string `json:"path"`
	Delimiter string `json:"delimiter"`
	Tab       bool   `json:"tab"`
	NoHeader  bool   `json:"no_header"`
	Encoding  string `json:"encoding"`

	// HTTPRetries and HTTPTimeout tune URL downloads.
	HTTPRetries int      `json:"http_retries"`
	HTTPTimeout Duration `json:"http_timeout"`
}

// Output is where and how the table is written.
type Output struct {
	// Path empty means stdout.
	Path   string `json:"path"`
	Format string `json:"format"`
}

// Diary configures the query log. Path selects the plain-text file backend;
// Kind+DSN select a database backend.
type Diary struct {
	Path    string `json:"path"`
	Kind    string `json:"kind"`
	DSN     string `json:"dsn"`
	Table   string `json:"table"`
	Message string `json:"message"`
}

// Enabled reports whether any diary backend is configured.
func (d Diary) Enabled() bool { return d.Path != "" || d.Kind != "" }

// Export writes the finished cells to a database in long form.
type Export struct {
	Kind      string `json:"kind"`
	DSN       string `json:"dsn"`
	Table     string `json:"table"`
	BatchSize int    `json:"batch_size"`
}

// Enabled reports whether export is configured.
func (e Export) Enabled() bool { return e.Kind != "" }

// Metrics selects the metrics backend. Options carries backend settings:
// "pushgateway_url" and "statsd_addr".
type Metrics struct {
	Backend string  `json:"backend"`
	Job     string  `json:"job"`
	Options Options `json:"options"`
}

// Defaults returns a Run with every optional field at its default.
func Defaults() Run {
	return Run{
		RowOrder:     "index",
		ColOrder:     "index",
		OnParseError: "fail",
		Input:        Input{HTTPRetries: 3},
		Output:       Output{Format: "csv"},
		Diary:        Diary{Table: "clipivot_diary"},
		Export:       Export{Table: "clipivot_cells", BatchSize: 5000},
		Metrics:      Metrics{Backend: "none", Job: "clipivot", Options: Options{}},
	}
}

// Load reads a JSON run description over Defaults. Unknown keys are rejected
// so that a typo does not silently fall back to a default.
func Load(path string) (Run, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Run{}, errs.Configf("read config %s: %v", path, err)
	}
	return Decode(b)
}

// Decode parses a JSON run description over Defaults.
func Decode(b []byte) (Run, error) {
	r := Defaults()
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&r); err != nil {
		return Run{}, errs.Configf("decode config: %v", err)
	}
	if r.Metrics.Options == nil {
		r.Metrics.Options = Options{}
	}
	return r, nil
}

// Duration is a time.Duration that decodes from "30s"-style strings.
type Duration struct{ time.Duration }

func (d Duration) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	if s == "" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Options fetches typed values from a free-form JSON object. It performs only
// minimal coercion and returns the default when a key is absent or of an
// unexpected type.
type Options map[string]any

// String returns the string at key, or def.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// StringMap returns the string-valued entries of the object at key.
// Non-string values are ignored; a missing key yields an empty map.
func (o Options) StringMap(key string) map[string]string {
	res := map[string]string{}
	if v, ok := o[key]; ok {
		if m, ok := v.(map[string]any); ok {
			for k, vv := range m {
				if s, ok := vv.(string); ok {
					res[k] = s
				}
			}
		}
	}
	return res
}

// StringSlice returns the strings of the array at key, or nil when the key
// is missing or not an array.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}

// UnmarshalJSON decodes null to a non-nil empty map.
func (o *Options) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	var tmp map[string]any
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
