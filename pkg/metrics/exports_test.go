package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestExportMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewExportMetrics(reg)
	m.IncOutcome("created", "free")
	m.IncOutcome("created", "free")
	m.IncOutcome("denied", "")

	if got := testutil.ToFloat64(m.outcomes.WithLabelValues("created", "free")); got != 2 {
		t.Fatalf("expected created=2, got %f", got)
	}
	if got := testutil.ToFloat64(m.outcomes.WithLabelValues("denied", "unknown")); got != 1 {
		t.Fatalf("expected empty plan normalized to unknown, got %f", got)
	}
}

func TestExportMetricsObserveRender(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewExportMetrics(reg)
	m.ObserveRender(1500*time.Millisecond, true)
	m.ObserveRender(time.Second, false)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if got, err := fetchHistogramSum(mfs, "worksheets_export_render_duration_seconds", "result", "success"); err != nil {
		t.Fatalf("fetch success: %v", err)
	} else if got != 1.5 {
		t.Fatalf("expected success sum 1.5, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "worksheets_export_render_duration_seconds", "result", "failure"); err != nil {
		t.Fatalf("fetch failure: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failure sum 1, got %f", got)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var exports *ExportMetrics
	exports.IncOutcome("created", "pro")
	exports.ObserveRender(time.Second, true)
	NewExportMetrics(nil).IncOutcome("cached", "pro")

	var httpMetrics *HTTPMetrics
	httpMetrics.Observe("GET", "/api/export", 200, time.Millisecond)
	NewHTTPMetrics(nil).Observe("GET", "/api/export", 200, time.Millisecond)
}

func TestHTTPMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	m.Observe("POST", "/api/export", 403, 20*time.Millisecond)
	m.Observe("POST", "", 404, time.Millisecond)

	if got := testutil.ToFloat64(m.requests.WithLabelValues("POST", "/api/export", "403")); got != 1 {
		t.Fatalf("expected one 403, got %f", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("POST", "unknown", "404")); got != 1 {
		t.Fatalf("expected unmatched route labelled unknown, got %f", got)
	}
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if pair.GetName() == label && pair.GetValue() == value {
					return metric.GetHistogram().GetSampleSum(), nil
				}
			}
		}
		return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
	}
	return 0, fmt.Errorf("metric %q not found", name)
}
