package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"clipivot/internal/metrics"
)

func readCounter(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Counter.Write: %v", err)
	}
	return m.GetCounter().GetValue()
}

func readGauge(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("Gauge.Write: %v", err)
	}
	return m.GetGauge().GetValue()
}

func readSummary(t *testing.T, v *prometheus.SummaryVec, labels ...string) (uint64, float64) {
	t.Helper()
	m := &dto.Metric{}
	metric, ok := v.WithLabelValues(labels...).(prometheus.Metric)
	if !ok {
		t.Fatalf("summary does not implement prometheus.Metric")
	}
	if err := metric.Write(m); err != nil {
		t.Fatalf("Summary.Write: %v", err)
	}
	return m.GetSummary().GetSampleCount(), m.GetSummary().GetSampleSum()
}

func TestNewBackend(t *testing.T) {
	t.Parallel()

	if _, err := NewBackend("j", "", nil); err == nil {
		t.Fatalf("missing URL must fail")
	}
	b, err := NewBackend("", "http://pgw:9091", nil)
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	if b.jobName != "clipivot" {
		t.Fatalf("default job = %q", b.jobName)
	}
}

func TestBackendRoutesMetrics(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("clipivot", "http://pgw:9091", nil)
	if err != nil {
		t.Fatal(err)
	}

	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "aggregate", "status": "success"})
	b.IncCounter(metrics.StepTotal, 2, metrics.Labels{"step": "aggregate", "status": "success"})
	b.IncCounter(metrics.RecordsTotal, 10, metrics.Labels{"kind": "read"})
	b.IncCounter(metrics.FailuresTotal, 1, metrics.Labels{"kind": "parse"})
	b.IncCounter(metrics.ExportBatches, 4, nil)
	b.IncCounter("unknown_metric", 1, nil)
	b.ObserveHistogram(metrics.StepDuration, 0.25, metrics.Labels{"step": "render", "status": "success"})
	b.ObserveHistogram(metrics.StepDuration, 0.75, metrics.Labels{"step": "render", "status": "success"})
	b.ObserveHistogram("other", 9, nil)
	b.SetGauge(metrics.Cells, 12, nil)
	b.SetGauge("other", 1, nil)

	if got := readCounter(t, b.stepCounter.WithLabelValues("aggregate", "success")); got != 3 {
		t.Fatalf("step counter = %v", got)
	}
	if got := readCounter(t, b.recordCounter.WithLabelValues("read")); got != 10 {
		t.Fatalf("record counter = %v", got)
	}
	if got := readCounter(t, b.failCounter.WithLabelValues("parse")); got != 1 {
		t.Fatalf("failure counter = %v", got)
	}
	if got := readCounter(t, b.batchCounter); got != 4 {
		t.Fatalf("batch counter = %v", got)
	}
	if n, sum := readSummary(t, b.stepDuration, "render", "success"); n != 2 || sum != 1 {
		t.Fatalf("summary = %d/%v", n, sum)
	}
	if got := readGauge(t, b.gauges[metrics.Cells]); got != 12 {
		t.Fatalf("cells gauge = %v", got)
	}
}

func TestFlushPushesToGroup(t *testing.T) {
	t.Parallel()

	type pushed struct {
		method  string
		path    string
		bodyLen int
	}
	reqCh := make(chan pushed, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		reqCh <- pushed{r.Method, r.URL.Path, len(body)}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	b, err := NewBackend("clipivot", srv.URL, map[string]string{"team": "bi"})
	if err != nil {
		t.Fatal(err)
	}
	b.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{"kind": "read"})
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	select {
	case got := <-reqCh:
		if got.method != http.MethodPut {
			t.Fatalf("method = %s, want PUT", got.method)
		}
		if got.path != "/metrics/job/clipivot/team/bi" {
			t.Fatalf("path = %s", got.path)
		}
		if got.bodyLen == 0 {
			t.Fatalf("empty push body")
		}
	default:
		t.Fatalf("Flush sent no request")
	}
}

func BenchmarkIncCounterRecords(b *testing.B) {
	be, err := NewBackend("clipivot", "http://example.com", nil)
	if err != nil {
		b.Fatal(err)
	}
	lbls := metrics.Labels{"kind": "read"}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		be.IncCounter(metrics.RecordsTotal, 1, lbls)
	}
}
