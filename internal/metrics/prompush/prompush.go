// Package prompush pushes run metrics to a Prometheus Pushgateway.
//
// A CLI run is too short-lived to be scraped, so the registry is pushed once
// at exit. The metrics.Labels "job" value is not a Prometheus label; it is the
// Pushgateway job grouping key.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"clipivot/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string
	jobName    string
	grouping   map[string]string
	reg        *prometheus.Registry

	stepCounter   *prometheus.CounterVec // step, status
	stepDuration  *prometheus.SummaryVec // step, status
	recordCounter *prometheus.CounterVec // kind
	failCounter   *prometheus.CounterVec // kind
	batchCounter  prometheus.Counter
	gauges        map[string]prometheus.Gauge
}

// NewBackend builds a backend pushing to gatewayURL under jobName. grouping
// adds extra Pushgateway grouping labels (e.g. {"team": "bi"}).
func NewBackend(jobName, gatewayURL string, grouping map[string]string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "clipivot"
	}

	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		grouping:   grouping,
		reg:        prometheus.NewRegistry(),
		stepCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Executions of each run step by outcome.",
		}, []string{"step", "status"}),
		stepDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.StepDuration,
			Help:       "Duration of each run step in seconds.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"step", "status"}),
		recordCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RecordsTotal,
			Help: "Input records by kind (read, accumulated, null, skipped).",
		}, []string{"kind"}),
		failCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.FailuresTotal,
			Help: "Failed runs by error kind.",
		}, []string{"kind"}),
		batchCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metrics.ExportBatches,
			Help: "Export batches written to the database.",
		}),
		gauges: map[string]prometheus.Gauge{},
	}

	for name, help := range map[string]string{
		metrics.Cells:   "Materialised cells in the last table.",
		metrics.RowKeys: "Distinct row keys in the last table.",
		metrics.ColKeys: "Distinct column keys in the last table.",
	} {
		b.gauges[name] = prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	}

	collectors := []prometheus.Collector{b.stepCounter, b.stepDuration, b.recordCounter, b.failCounter, b.batchCounter}
	for _, g := range b.gauges {
		collectors = append(collectors, g)
	}
	for _, c := range collectors {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register collector: %w", err)
		}
	}
	return b, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.StepTotal:
		b.stepCounter.WithLabelValues(labels["step"], labels["status"]).Add(delta)
	case metrics.RecordsTotal:
		b.recordCounter.WithLabelValues(labels["kind"]).Add(delta)
	case metrics.FailuresTotal:
		b.failCounter.WithLabelValues(labels["kind"]).Add(delta)
	case metrics.ExportBatches:
		b.batchCounter.Add(delta)
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StepDuration {
		return
	}
	b.stepDuration.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

func (b *Backend) SetGauge(name string, value float64, _ metrics.Labels) {
	if g, ok := b.gauges[name]; ok {
		g.Set(value)
	}
}

// Flush pushes the registry, replacing the previous push for this group.
func (b *Backend) Flush() error {
	p := push.New(b.gatewayURL, b.jobName).Gatherer(b.reg)
	for k, v := range b.grouping {
		p = p.Grouping(k, v)
	}
	return p.Push()
}
