package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"clipivot/internal/aggregate"
	"clipivot/internal/config"
	"clipivot/internal/errs"
	"clipivot/internal/logging"
	"clipivot/internal/metrics"
	"clipivot/internal/metrics/datadog"
	"clipivot/internal/metrics/prompush"
	"clipivot/internal/run"
)

// app is the process surface the command talks to.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	argv   []string
	getenv func(string) string

	stdinTerminal  bool
	stdoutTerminal bool
}

// flagValues mirrors config.Run; a value only overrides the --config file
// when its flag was set explicitly.
type flagValues struct {
	configPath string
	validate   bool
	verbose    bool
	logLevel   string
	logFormat  string

	rows, cols  []string
	val         string
	numeric     bool
	infer       bool
	dateFormat  string
	dayFirst    bool
	yearFirst   bool
	ignoreNulls bool
	rowOrder    string
	colOrder    string

	tab         bool
	delim       string
	noHeader    bool
	encoding    string
	httpRetries int
	httpTimeout time.Duration

	output       string
	outputFormat string
	onParseError string
	skipLog      string

	diary      string
	diaryKind  string
	diaryDSN   string
	diaryTable string
	message    string

	exportKind  string
	exportDSN   string
	exportTable string
	exportBatch int

	metricsBackend string
	pushgatewayURL string
	statsdAddr     string
}

func (a *app) execute(ctx context.Context, args []string) error {
	cmd := a.newRootCmd(&flagValues{})
	cmd.SetArgs(args)
	cmd.SetIn(a.stdin)
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)
	return cmd.ExecuteContext(ctx)
}

func (a *app) newRootCmd(fv *flagValues) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clipivot <aggfunc> [file|-|url]",
		Short: "Pivot tables from CSV and TSV in a single streaming pass",
		Long: "clipivot groups records by row and column keys and folds the value field with one of: " +
			strings.Join(aggregate.Names(), ", ") + ".\n" +
			"Input is a file, - for stdin, or an http(s) URL; .gz, .zst and .xz are decompressed.",
		Args:          cobra.RangeArgs(0, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPivot(cmd, fv, args)
		},
	}

	f := cmd.Flags()
	f.SortFlags = false
	f.StringArrayVarP(&fv.rows, "rows", "r", nil, "row selectors (repeatable, comma separated)")
	f.StringArrayVarP(&fv.cols, "cols", "c", nil, "column selectors (repeatable, comma separated)")
	f.StringVarP(&fv.val, "val", "v", "", "value selector")
	f.BoolVarP(&fv.numeric, "numeric", "N", false, "parse values as numbers for min, max, minmax and range")
	f.BoolVarP(&fv.infer, "infer", "i", false, "parse values as dates, inferring the layout")
	f.StringVarP(&fv.dateFormat, "format", "F", "", "strftime pattern for date values, e.g. %Y-%m-%d")
	f.BoolVar(&fv.dayFirst, "dayfirst", false, "read ambiguous dates day first")
	f.BoolVar(&fv.yearFirst, "yearfirst", false, "read ambiguous dates year first")
	f.BoolVarP(&fv.ignoreNulls, "ignore-nulls", "e", false, "skip empty and NA-like values")
	f.StringVar(&fv.rowOrder, "row-order", "index", "row key order: index, asc or desc")
	f.StringVar(&fv.colOrder, "col-order", "index", "column key order: index, asc or desc")

	f.BoolVarP(&fv.tab, "tab", "t", false, "input is tab separated")
	f.StringVarP(&fv.delim, "delim", "d", "", `single-byte field delimiter ("\t" accepted)`)
	f.BoolVar(&fv.noHeader, "no-header", false, "the first line is data; selectors must be indexes")
	f.StringVar(&fv.encoding, "encoding", "", "input encoding: utf-8, utf-16, latin1, windows-1252")
	f.IntVar(&fv.httpRetries, "http-retries", 3, "retries for URL input on 429, 5xx and transport errors")
	f.DurationVar(&fv.httpTimeout, "http-timeout", 30*time.Second, "time to wait for response headers of URL input")

	f.StringVarP(&fv.output, "output", "o", "", "write the table to this file instead of stdout")
	f.StringVar(&fv.outputFormat, "output-format", "csv", "csv, tsv, json, table or xlsx")
	f.StringVar(&fv.onParseError, "on-parse-error", "fail", "fail or skip records whose value does not parse")
	f.StringVar(&fv.skipLog, "skip-log", "", "CSV file listing skipped records")

	f.StringVar(&fv.diary, "diary", "", "append this query to a data diary file")
	f.StringVar(&fv.diaryKind, "diary-kind", "", "keep the data diary in a database: sqlite, postgres, mssql, mysql")
	f.StringVar(&fv.diaryDSN, "diary-dsn", "", "data diary database DSN")
	f.StringVar(&fv.diaryTable, "diary-table", "clipivot_diary", "data diary table")
	f.StringVarP(&fv.message, "message", "m", "", "data diary message; prompted for when omitted")

	f.StringVar(&fv.exportKind, "export-kind", "", "write cells to a database: sqlite, postgres, mssql, mysql")
	f.StringVar(&fv.exportDSN, "export-dsn", "", "export database DSN")
	f.StringVar(&fv.exportTable, "export-table", "clipivot_cells", "export table")
	f.IntVar(&fv.exportBatch, "export-batch-size", 5000, "rows per export batch")

	f.StringVar(&fv.metricsBackend, "metrics-backend", "none", "none, pushgateway or datadog (env METRICS_BACKEND)")
	f.StringVar(&fv.pushgatewayURL, "pushgateway-url", "", "Pushgateway base URL (env PUSHGATEWAY_URL)")
	f.StringVar(&fv.statsdAddr, "statsd-addr", "", "DogStatsD address (env DD_AGENT_ADDR)")

	f.StringVar(&fv.configPath, "config", "", "JSON run configuration; explicit flags override it")
	f.BoolVar(&fv.validate, "validate", false, "validate the configuration and exit")
	f.BoolVar(&fv.verbose, "verbose", false, "enable debug logs (same as --log-level debug)")
	f.StringVar(&fv.logLevel, "log-level", "info", "debug, info, warn or error")
	f.StringVar(&fv.logFormat, "log-format", "text", "log format: text or json")
	return cmd
}

func (a *app) runPivot(cmd *cobra.Command, fv *flagValues, args []string) error {
	level, err := logging.ParseLevel(fv.logLevel)
	if err != nil {
		return errs.Configf("%v", err)
	}
	if fv.verbose {
		level = logging.LevelDebug
	}
	logging.Init(logging.Config{Level: level, Format: fv.logFormat})

	cfg, err := a.buildConfig(cmd, fv, args)
	if err != nil {
		return err
	}

	if fv.validate {
		issues := config.ValidateRun(cfg)
		for _, iss := range issues {
			fmt.Fprintf(a.stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		}
		if err := config.Err(issues); err != nil {
			return err
		}
		fmt.Fprintln(a.stderr, "configuration is valid")
		return nil
	}

	flush := setupMetrics(cfg.Metrics)
	defer flush()

	start := time.Now()
	res, err := run.Execute(cmd.Context(), cfg, run.Env{
		Stdin:          a.stdin,
		Stdout:         a.stdout,
		Stderr:         a.stderr,
		Argv:           a.argv,
		StdinTerminal:  a.stdinTerminal,
		StdoutTerminal: a.stdoutTerminal,
	})
	if err != nil {
		return err
	}
	logging.Debug("completed",
		"run", res.ID,
		"digest", res.Digest,
		"elapsed", time.Since(start).Truncate(time.Millisecond),
	)
	return nil
}

// buildConfig layers defaults, the --config file, the positional arguments,
// explicitly set flags and finally environment fallbacks for metrics.
func (a *app) buildConfig(cmd *cobra.Command, fv *flagValues, args []string) (config.Run, error) {
	cfg := config.Defaults()
	if fv.configPath != "" {
		var err error
		if cfg, err = config.Load(fv.configPath); err != nil {
			return config.Run{}, err
		}
	}
	if len(args) > 0 {
		cfg.Func = args[0]
	}
	if len(args) > 1 {
		cfg.Input.Path = args[1]
	}

	set := cmd.Flags().Changed
	overlay(set("rows"), &cfg.Rows, fv.rows)
	overlay(set("cols"), &cfg.Cols, fv.cols)
	overlay(set("val"), &cfg.Val, fv.val)
	overlay(set("numeric"), &cfg.Numeric, fv.numeric)
	overlay(set("infer"), &cfg.Infer, fv.infer)
	overlay(set("format"), &cfg.DateFormat, fv.dateFormat)
	overlay(set("dayfirst"), &cfg.DayFirst, fv.dayFirst)
	overlay(set("yearfirst"), &cfg.YearFirst, fv.yearFirst)
	overlay(set("ignore-nulls"), &cfg.IgnoreNulls, fv.ignoreNulls)
	overlay(set("row-order"), &cfg.RowOrder, fv.rowOrder)
	overlay(set("col-order"), &cfg.ColOrder, fv.colOrder)

	overlay(set("tab"), &cfg.Input.Tab, fv.tab)
	overlay(set("delim"), &cfg.Input.Delimiter, fv.delim)
	overlay(set("no-header"), &cfg.Input.NoHeader, fv.noHeader)
	overlay(set("encoding"), &cfg.Input.Encoding, fv.encoding)
	overlay(set("http-retries"), &cfg.Input.HTTPRetries, fv.httpRetries)
	overlay(set("http-timeout"), &cfg.Input.HTTPTimeout.Duration, fv.httpTimeout)

	overlay(set("output"), &cfg.Output.Path, fv.output)
	overlay(set("output-format"), &cfg.Output.Format, fv.outputFormat)
	overlay(set("on-parse-error"), &cfg.OnParseError, fv.onParseError)
	overlay(set("skip-log"), &cfg.SkipLog, fv.skipLog)

	overlay(set("diary"), &cfg.Diary.Path, fv.diary)
	overlay(set("diary-kind"), &cfg.Diary.Kind, fv.diaryKind)
	overlay(set("diary-dsn"), &cfg.Diary.DSN, fv.diaryDSN)
	overlay(set("diary-table"), &cfg.Diary.Table, fv.diaryTable)
	overlay(set("message"), &cfg.Diary.Message, fv.message)

	overlay(set("export-kind"), &cfg.Export.Kind, fv.exportKind)
	overlay(set("export-dsn"), &cfg.Export.DSN, fv.exportDSN)
	overlay(set("export-table"), &cfg.Export.Table, fv.exportTable)
	overlay(set("export-batch-size"), &cfg.Export.BatchSize, fv.exportBatch)

	overlay(set("metrics-backend"), &cfg.Metrics.Backend, fv.metricsBackend)
	if cfg.Metrics.Options == nil {
		cfg.Metrics.Options = config.Options{}
	}
	if set("pushgateway-url") {
		cfg.Metrics.Options["pushgateway_url"] = fv.pushgatewayURL
	}
	if set("statsd-addr") {
		cfg.Metrics.Options["statsd_addr"] = fv.statsdAddr
	}
	a.applyMetricsEnv(&cfg.Metrics)
	return cfg, nil
}

// applyMetricsEnv fills metrics settings nobody set from the environment.
func (a *app) applyMetricsEnv(m *config.Metrics) {
	if m.Backend == "" || m.Backend == "none" {
		if v := a.getenv("METRICS_BACKEND"); v != "" {
			m.Backend = v
		}
	}
	envOption := func(key, env string) {
		if m.Options.String(key, "") != "" {
			return
		}
		if v := a.getenv(env); v != "" {
			m.Options[key] = v
		}
	}
	envOption("pushgateway_url", "PUSHGATEWAY_URL")
	envOption("statsd_addr", "DD_AGENT_ADDR")
}

func overlay[T any](changed bool, dst *T, v T) {
	if changed {
		*dst = v
	}
}

// setupMetrics installs the configured backend and returns the function that
// flushes it. A backend that cannot be built leaves metrics disabled.
func setupMetrics(m config.Metrics) func() {
	log := logging.WithComponent("metrics")
	var (
		b   metrics.Backend
		err error
	)
	switch m.Backend {
	case "", "none":
		log.Debug("disabled")
		return func() {}
	case "pushgateway":
		url := m.Options.String("pushgateway_url", "")
		b, err = prompush.NewBackend(m.Job, url, m.Options.StringMap("grouping"))
		if err == nil {
			log.Debug("pushgateway", "url", url, "job", m.Job)
		}
	case "datadog":
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       m.Options.String("statsd_addr", ""),
			Namespace:  m.Options.String("namespace", ""),
			GlobalTags: m.Options.StringSlice("tags"),
		})
	default:
		// Rejected by validation before the run starts.
		return func() {}
	}
	if err != nil {
		logging.WithError(err).Warn("metrics backend unavailable; metrics disabled", "backend", m.Backend)
		return func() {}
	}
	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Warn("flush failed", "backend", m.Backend, "error", err)
		}
	}
}
