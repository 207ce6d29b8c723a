package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ExportMetrics records export outcomes and render latency.
type ExportMetrics struct {
	outcomes *prometheus.CounterVec
	render   *prometheus.HistogramVec
}

// NewExportMetrics registers the export metrics on reg. A nil registerer
// yields a no-op recorder.
func NewExportMetrics(reg prometheus.Registerer) *ExportMetrics {
	if reg == nil {
		return &ExportMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "export",
		Name:      "requests_total",
		Help:      "Export requests by outcome (cached, created, denied, failed).",
	}, []string{"outcome", "plan"})
	render := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "export",
		Name:      "render_duration_seconds",
		Help:      "Time spent rendering and publishing worksheet artifacts.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"result"})
	reg.MustRegister(outcomes, render)
	return &ExportMetrics{outcomes: outcomes, render: render}
}

func (m *ExportMetrics) IncOutcome(outcome, plan string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(outcome), normalizeLabel(plan)).Inc()
}

// ObserveRender records one render attempt; ok reports whether it produced artifacts.
func (m *ExportMetrics) ObserveRender(d time.Duration, ok bool) {
	if m == nil || m.render == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.render.WithLabelValues(result).Observe(d.Seconds())
}
