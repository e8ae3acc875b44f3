package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipivot/internal/config"
	"clipivot/internal/errs"
)

const employees = `id,was_fired,salary,department
1,true,25000,sales
2,true,75000,engineering
3,false,175000,engineering
4,true,65000,sales
5,false,85000,sales
`

func newTestApp(env map[string]string) (*app, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	return &app{
		stdin:  strings.NewReader(""),
		stdout: &stdout,
		stderr: &stderr,
		argv:   []string{"clipivot"},
		getenv: func(k string) string { return env[k] },
	}, &stdout, &stderr
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestSalaryBreakdown(t *testing.T) {
	t.Parallel()

	a, stdout, _ := newTestApp(nil)
	path := writeFile(t, "employees.csv", employees)
	err := a.execute(context.Background(), []string{
		"sum", path, "-r", "department", "-c", "was_fired", "-v", "salary",
		"--row-order", "asc", "--col-order", "asc",
	})
	require.NoError(t, err)
	assert.Equal(t, ",false,true\nengineering,175000,75000\nsales,85000,90000\n", stdout.String())
}

func TestStdinTableOutput(t *testing.T) {
	t.Parallel()

	a, stdout, _ := newTestApp(nil)
	a.stdin = strings.NewReader(employees)
	err := a.execute(context.Background(), []string{
		"count", "-", "-r", "department", "-v", "id", "--output-format", "table",
	})
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "sales")
	assert.Contains(t, stdout.String(), "total")
}

func TestErrorsAreTyped(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "employees.csv", employees)
	tests := []struct {
		name string
		args []string
		kind errs.Kind
	}{
		{"missing value selector", []string{"sum", path, "-r", "department"}, errs.KindConfig},
		{"unknown function", []string{"total", path, "-v", "salary"}, errs.KindConfig},
		{"unknown column", []string{"sum", path, "-v", "bonus"}, errs.KindConfig},
		{"dates for sum", []string{"sum", path, "-v", "salary", "--infer"}, errs.KindConfig},
		{"bad log level", []string{"sum", path, "-v", "salary", "--log-level", "loud"}, errs.KindConfig},
		{"missing file", []string{"sum", path + ".missing", "-v", "salary"}, errs.KindIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a, stdout, _ := newTestApp(nil)
			err := a.execute(context.Background(), tt.args)
			require.Error(t, err)
			assert.Equal(t, tt.kind, errs.KindOf(err), "err = %v", err)
			assert.Empty(t, stdout.String())
		})
	}
}

func TestTooManyArguments(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestApp(nil)
	err := a.execute(context.Background(), []string{"sum", "a.csv", "b.csv", "-v", "x"})
	require.Error(t, err)
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	t.Parallel()

	cfgPath := writeFile(t, "run.json", `{
  "aggfunc": "count",
  "rows": ["department"],
  "val": "salary",
  "row_order": "desc",
  "input": {"path": "from-config.csv", "http_timeout": "5s"},
  "output": {"format": "tsv"},
  "export": {"kind": "sqlite", "dsn": "cells.db"}
}`)

	a, _, _ := newTestApp(nil)
	fv := &flagValues{}
	cmd := a.newRootCmd(fv)
	require.NoError(t, cmd.ParseFlags([]string{
		"--config", cfgPath, "--output-format", "json", "-c", "was_fired,id", "--export-batch-size", "10",
	}))
	cfg, err := a.buildConfig(cmd, fv, []string{"mean"})
	require.NoError(t, err)

	assert.Equal(t, "mean", cfg.Func, "positional argument wins")
	assert.Equal(t, []string{"department"}, cfg.Rows)
	assert.Equal(t, []string{"was_fired,id"}, cfg.Cols)
	assert.Equal(t, "desc", cfg.RowOrder, "unset flag keeps config value")
	assert.Equal(t, "index", cfg.ColOrder)
	assert.Equal(t, "from-config.csv", cfg.Input.Path)
	assert.Equal(t, 5*time.Second, cfg.Input.HTTPTimeout.Duration)
	assert.Equal(t, "json", cfg.Output.Format)
	assert.Equal(t, config.Export{Kind: "sqlite", DSN: "cells.db", Table: "clipivot_cells", BatchSize: 10}, cfg.Export)
}

func TestMetricsEnvironmentFallbacks(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"METRICS_BACKEND": "pushgateway",
		"PUSHGATEWAY_URL": "http://pgw:9091",
		"DD_AGENT_ADDR":   "127.0.0.1:8125",
	}

	tests := []struct {
		name        string
		args        []string
		wantBackend string
		wantURL     string
	}{
		{"environment only", nil, "pushgateway", "http://pgw:9091"},
		{"flags win", []string{"--metrics-backend", "datadog", "--pushgateway-url", "http://flag:9091"}, "datadog", "http://flag:9091"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a, _, _ := newTestApp(env)
			fv := &flagValues{}
			cmd := a.newRootCmd(fv)
			require.NoError(t, cmd.ParseFlags(tt.args))
			cfg, err := a.buildConfig(cmd, fv, []string{"sum"})
			require.NoError(t, err)
			assert.Equal(t, tt.wantBackend, cfg.Metrics.Backend)
			assert.Equal(t, tt.wantURL, cfg.Metrics.Options.String("pushgateway_url", ""))
			assert.Equal(t, "127.0.0.1:8125", cfg.Metrics.Options.String("statsd_addr", ""))
		})
	}
}

func TestValidateOnly(t *testing.T) {
	t.Parallel()

	a, stdout, stderr := newTestApp(nil)
	err := a.execute(context.Background(), []string{"sum", "-v", "salary", "--validate"})
	require.NoError(t, err)
	assert.Contains(t, stderr.String(), "configuration is valid")
	assert.Empty(t, stdout.String())

	a, _, stderr = newTestApp(nil)
	err = a.execute(context.Background(), []string{"sum", "--validate", "--on-parse-error", "ignore"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindConfig))
	assert.Contains(t, stderr.String(), "error: on_parse_error:")
	assert.Contains(t, stderr.String(), "error: val:")
}

func TestMissingConfigFile(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestApp(nil)
	err := a.execute(context.Background(), []string{"--config", filepath.Join(t.TempDir(), "none.json")})
	assert.True(t, errs.Is(err, errs.KindConfig), "err = %v", err)
}
