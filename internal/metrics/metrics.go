// Package metrics is a backend-agnostic facade for run metrics.
//
// The global backend defaults to a no-op, so instrumentation is always safe
// to call. Concrete systems live in subpackages (prompush, datadog) and are
// installed once at startup with SetBackend.
package metrics

import "time"

// Metric names shared by every backend.
const (
	StepTotal       = "clipivot_step_total"
	StepDuration    = "clipivot_step_duration_seconds"
	RecordsTotal    = "clipivot_records_total"
	ExportBatches   = "clipivot_export_batches_total"
	FailuresTotal   = "clipivot_failures_total"
	Cells           = "clipivot_cells"
	RowKeys         = "clipivot_row_keys"
	ColKeys         = "clipivot_col_keys"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface a metrics system implements.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a duration-style observation.
	ObserveHistogram(name string, value float64, labels Labels)
	// SetGauge records the latest value of a level.
	SetGauge(name string, value float64, labels Labels)
	// Flush pushes or flushes buffered data.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) SetGauge(string, float64, Labels)         {}
func (nopBackend) Flush() error                             { return nil }

var backend Backend = nopBackend{}

// SetBackend installs b. nil keeps the current backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStep counts one execution of a run step and its duration.
// Steps: resolve, aggregate, assemble, render, export, diary.
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"job": job, "step": step, "status": status}
	backend.IncCounter(StepTotal, 1, lbls)
	backend.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRecords counts records by kind: read, accumulated, null, skipped.
func RecordRecords(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RecordsTotal, float64(delta), Labels{"job": job, "kind": kind})
}

// RecordBatches counts export batches written.
func RecordBatches(job string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(ExportBatches, float64(delta), Labels{"job": job})
}

// RecordFailure counts a failed run by error kind (config, structural, ...).
func RecordFailure(job, kind string) {
	backend.IncCounter(FailuresTotal, 1, Labels{"job": job, "kind": kind})
}

// RecordShape records the size of the finished table.
func RecordShape(job string, rows, cols, cells int) {
	l := Labels{"job": job}
	backend.SetGauge(RowKeys, float64(rows), l)
	backend.SetGauge(ColKeys, float64(cols), l)
	backend.SetGauge(Cells, float64(cells), l)
}
