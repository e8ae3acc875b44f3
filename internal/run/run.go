// Package run executes one pivot: resolve the configuration, stream the input
// through a pivot table in a single pass, then render, export and log the
// result.
package run

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"

	"clipivot/internal/aggregate"
	"clipivot/internal/config"
	"clipivot/internal/datasource"
	"clipivot/internal/datasource/httpds"
	"clipivot/internal/diary"
	"clipivot/internal/errs"
	"clipivot/internal/export"
	"clipivot/internal/fieldsel"
	"clipivot/internal/logging"
	"clipivot/internal/metrics"
	csvparser "clipivot/internal/parser/csv"
	"clipivot/internal/pivot"
	"clipivot/internal/render"
	"clipivot/internal/skiplog"
	"clipivot/internal/value"
)

// rowBuffer bounds the channel between the reader and the aggregator.
const rowBuffer = 1024

// Env is the process context a run talks to.
type Env struct {
	Stdin  io.Reader
	Stdout io.Writer
	// Stderr receives the diary prompt. Logs go through the logging package.
	Stderr io.Writer

	// Argv is recorded in the diary as the query.
	Argv []string

	// StdinTerminal and StdoutTerminal describe the attached TTYs.
	StdinTerminal  bool
	StdoutTerminal bool

	Now func() time.Time
}

// Result is what a successful run produced.
type Result struct {
	ID      uuid.UUID
	Matrix  *pivot.Matrix
	Stats   pivot.Stats
	Skipped int
	// Digest is the xxh3 hash of the rendered output, hex encoded.
	Digest   string
	Exported export.Result
}

// plan is the resolved, immutable part of a run.
type plan struct {
	fn       aggregate.Func
	kind     value.Kind
	parser   *value.Parser
	rowOrder pivot.Order
	colOrder pivot.Order
	format   render.Format
	skip     bool
}

// Execute performs cfg. Nothing is written to the output before the input
// has been read completely.
func Execute(ctx context.Context, cfg config.Run, env Env) (res *Result, err error) {
	if env.Now == nil {
		env.Now = time.Now
	}
	id := uuid.New()
	job := cfg.Metrics.Job
	log := logging.WithRun(id.String())
	defer func() {
		if err != nil {
			metrics.RecordFailure(job, kindLabel(err))
		}
	}()

	var p plan
	if err := step(job, "resolve", func() error {
		p, err = newPlan(cfg, env)
		return err
	}); err != nil {
		return nil, err
	}

	skips, err := openSkipLog(cfg)
	if err != nil {
		return nil, err
	}
	defer skips.Close()

	var table *pivot.Table
	start := env.Now()
	if err := step(job, "aggregate", func() error {
		table, err = aggregateInput(ctx, cfg, p, env, skips)
		return err
	}); err != nil {
		return nil, err
	}
	stats := table.Stats()
	metrics.RecordRecords(job, "read", stats.Records)
	metrics.RecordRecords(job, "accumulated", stats.Accumulated)
	metrics.RecordRecords(job, "null", stats.Nulls)
	metrics.RecordRecords(job, "skipped", int64(skips.Total()))
	log.Info("input aggregated",
		"records", humanize.Comma(stats.Records),
		"cells", humanize.Comma(int64(table.Cells())),
		"nulls", stats.Nulls,
		"skipped", skips.Total(),
		"elapsed", env.Now().Sub(start).Truncate(time.Millisecond),
	)

	var m *pivot.Matrix
	if err := step(job, "assemble", func() error {
		m, err = table.Assemble(p.rowOrder, p.colOrder)
		return err
	}); err != nil {
		return nil, err
	}
	metrics.RecordShape(job, len(m.Rows), len(m.ColumnKeys()), table.Cells())

	res = &Result{ID: id, Matrix: m, Stats: stats, Skipped: skips.Total()}
	if err := step(job, "render", func() error {
		res.Digest, err = writeOutput(cfg.Output.Path, env.Stdout, m, p.format)
		return err
	}); err != nil {
		return nil, err
	}

	if cfg.Export.Enabled() {
		if err := step(job, "export", func() error {
			res.Exported, err = export.Write(ctx, cfg.Export, id, m)
			return err
		}); err != nil {
			return nil, errs.IO(err)
		}
		metrics.RecordBatches(job, res.Exported.Batches)
		log.Info("cells exported", "kind", cfg.Export.Kind, "table", cfg.Export.Table, "rows", res.Exported.Rows)
	}

	if cfg.Diary.Enabled() {
		if err := step(job, "diary", func() error {
			return appendDiary(ctx, cfg, env, res)
		}); err != nil {
			return nil, errs.IO(err)
		}
	}
	return res, nil
}

// step times fn and records it as one execution of name.
func step(job, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.RecordStep(job, name, err, time.Since(start))
	return err
}

func kindLabel(err error) string {
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return errs.KindOf(err).String()
}

func newPlan(cfg config.Run, env Env) (plan, error) {
	issues := config.ValidateRun(cfg)
	for _, iss := range issues {
		if iss.Severity == config.SeverityWarning {
			logging.Warn("configuration", "path", iss.Path, "issue", iss.Message)
		}
	}
	if err := config.Err(issues); err != nil {
		return plan{}, err
	}

	var p plan
	var err error
	if p.fn, err = aggregate.ParseFunc(cfg.Func); err != nil {
		return plan{}, err
	}
	flags := aggregate.TypeFlags{Numeric: cfg.Numeric, Infer: cfg.Infer, DateFormat: cfg.DateFormat}
	if p.kind, err = aggregate.KindFor(p.fn, flags); err != nil {
		return plan{}, err
	}
	p.parser, err = value.NewParser(value.Options{
		Kind:        p.kind,
		DateFormat:  cfg.DateFormat,
		DayFirst:    cfg.DayFirst,
		YearFirst:   cfg.YearFirst,
		IgnoreNulls: cfg.IgnoreNulls,
	})
	if err != nil {
		return plan{}, err
	}
	if p.rowOrder, err = pivot.ParseOrder(cfg.RowOrder); err != nil {
		return plan{}, err
	}
	if p.colOrder, err = pivot.ParseOrder(cfg.ColOrder); err != nil {
		return plan{}, err
	}
	if p.format, err = render.ParseFormat(cfg.Output.Format); err != nil {
		return plan{}, err
	}
	if p.format.Binary() && cfg.Output.Path == "" && env.StdoutTerminal {
		return plan{}, errs.Configf("%s output cannot be written to a terminal; use --output or redirect stdout", p.format)
	}
	p.skip = cfg.OnParseError == "skip"
	return p, nil
}

func openSkipLog(cfg config.Run) (*skiplog.Log, error) {
	if cfg.OnParseError != "skip" || cfg.SkipLog == "" {
		return skiplog.New(nil)
	}
	l, err := skiplog.Create(cfg.SkipLog)
	if err != nil {
		return nil, errs.IO(err)
	}
	return l, nil
}

// selectors resolves the row, column and value selectors against the header.
func selectors(cfg config.Run, r *csvparser.Reader, hasHeader bool) (rows, cols []int, val int, err error) {
	res := fieldsel.NewResolver(r.Header(), hasHeader, r.Width())
	rowSels, err := fieldsel.SplitAll(cfg.Rows)
	if err != nil {
		return nil, nil, 0, err
	}
	colSels, err := fieldsel.SplitAll(cfg.Cols)
	if err != nil {
		return nil, nil, 0, err
	}
	if rows, err = res.ResolveAll(rowSels); err != nil {
		return nil, nil, 0, err
	}
	if cols, err = res.ResolveAll(colSels); err != nil {
		return nil, nil, 0, err
	}
	if val, err = res.Resolve(cfg.Val); err != nil {
		return nil, nil, 0, err
	}
	return rows, cols, val, nil
}

func httpClient(in config.Input) *httpds.Client {
	return httpds.NewClient(httpds.Config{
		Timeout:    in.HTTPTimeout.Duration,
		MaxRetries: in.HTTPRetries,
		UserAgent:  "clipivot",
	})
}

// aggregateInput reads the whole input into a new pivot table. One goroutine
// reads and frames records; the calling goroutine group's second member is
// the only one touching the table.
func aggregateInput(ctx context.Context, cfg config.Run, p plan, env Env, skips *skiplog.Log) (*pivot.Table, error) {
	src := datasource.Resolve(cfg.Input.Path, env.Stdin, httpClient(cfg.Input))
	if datasource.IsStdin(cfg.Input.Path) && env.StdinTerminal {
		logging.Warn("reading from the terminal; end input with Ctrl-D")
	}
	comma, err := csvparser.ParseDelimiter(cfg.Input.Tab, cfg.Input.Delimiter, nameOf(cfg.Input.Path, src))
	if err != nil {
		return nil, err
	}

	rc, err := datasource.Open(ctx, src, cfg.Input.Encoding)
	if err != nil {
		return nil, errs.IO(err)
	}
	defer rc.Close()

	hasHeader := !cfg.Input.NoHeader
	reader, err := csvparser.NewReader(rc, csvparser.Options{Comma: comma, HasHeader: hasHeader})
	if err != nil {
		return nil, err
	}
	rowIx, colIx, valIx, err := selectors(cfg, reader, hasHeader)
	if err != nil {
		return nil, err
	}
	table, err := pivot.New(pivot.Config{
		Func: p.fn, Kind: p.kind,
		Rows: rowIx, Cols: colIx, Val: valIx,
		Parser: p.parser,
	})
	if err != nil {
		return nil, err
	}
	valName := cfg.Val
	if h := reader.Header(); valIx < len(h) {
		valName = h[valIx]
	}

	g, gctx := errgroup.WithContext(ctx)
	rows := make(chan csvparser.Row, rowBuffer)
	g.Go(func() error {
		defer close(rows)
		return reader.StreamRows(gctx, rows)
	})
	g.Go(func() error {
		for row := range rows {
			err := table.Add(row.Fields, row.Index)
			if err == nil {
				continue
			}
			if !p.skip || !errs.Is(err, errs.KindParse) {
				return err
			}
			if err := skips.Add("parse", row.Index, valName, row.Fields[valIx]); err != nil {
				return errs.IO(err)
			}
			logging.Debug("record skipped", "index", row.Index, "line", row.Line, "error", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return table, nil
}

// nameOf is the name used to detect tab-separated input: the path for
// files and URLs, nothing for stdin.
func nameOf(path string, src datasource.Source) string {
	if datasource.IsURL(path) {
		return src.Name()
	}
	if datasource.IsStdin(path) {
		return ""
	}
	return path
}

// writeOutput renders m and writes it to path (atomically) or to stdout. It
// returns the digest of the rendered bytes.
func writeOutput(path string, stdout io.Writer, m *pivot.Matrix, f render.Format) (string, error) {
	var buf bytes.Buffer
	if err := render.Write(&buf, m, f); err != nil {
		return "", errs.IO(err)
	}
	digest := fmt.Sprintf("%016x", xxh3.Hash(buf.Bytes()))
	if path == "" {
		_, err := stdout.Write(buf.Bytes())
		return digest, errs.IO(err)
	}
	return digest, errs.IO(writeFileAtomic(path, buf.Bytes()))
}

// writeFileAtomic writes b to a temporary file next to path and renames it
// into place.
func writeFileAtomic(path string, b []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func appendDiary(ctx context.Context, cfg config.Run, env Env, res *Result) error {
	msg := cfg.Diary.Message
	// Prompt only when the terminal is not also the data source.
	if msg == "" && env.StdinTerminal && !datasource.IsStdin(cfg.Input.Path) {
		var err error
		if msg, err = diary.ReadMessage(env.Stdin, env.Stderr); err != nil {
			return err
		}
	}
	w, err := diary.Open(ctx, cfg.Diary)
	if err != nil {
		return err
	}
	defer w.Close()
	return w.Append(ctx, diary.Entry{
		ID:      res.ID,
		Time:    env.Now(),
		Message: msg,
		Query:   strings.Join(env.Argv, " "),
		Digest:  res.Digest,
		Records: res.Stats.Records,
	})
}
