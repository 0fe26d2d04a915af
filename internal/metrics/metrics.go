// Package metrics exposes prometheus collectors for the code lifecycle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "codehub"

// Metrics is safe to use as a nil pointer; calls become no-ops.
type Metrics struct {
	codesGenerated   prometheus.Counter
	codesDeleted     prometheus.Counter
	renderFailures   prometheus.Counter
	ledgerUnderflows prometheus.Counter
	batchSize        prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		codesGenerated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "codes_generated_total",
			Help:      "QR codes committed by generation batches.",
		}),
		codesDeleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "codes_deleted_total",
			Help:      "QR codes removed by single or batch deletes.",
		}),
		renderFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_failures_total",
			Help:      "Batch items skipped because their image could not be rendered.",
		}),
		ledgerUnderflows: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_underflow_total",
			Help:      "Ledger decrements refused because a counter would go negative.",
		}),
		batchSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generate_batch_size",
			Help:      "Number of codes committed per generation batch.",
			Buckets:   []float64{1, 5, 10, 50, 100, 250, 500, 1000},
		}),
	}
}

func (m *Metrics) Generated(n int) {
	if m == nil {
		return
	}
	m.codesGenerated.Add(float64(n))
	m.batchSize.Observe(float64(n))
}

func (m *Metrics) Deleted(n int) {
	if m == nil {
		return
	}
	m.codesDeleted.Add(float64(n))
}

func (m *Metrics) RenderFailed(n int) {
	if m == nil || n == 0 {
		return
	}
	m.renderFailures.Add(float64(n))
}

func (m *Metrics) LedgerUnderflow() {
	if m == nil {
		return
	}
	m.ledgerUnderflows.Inc()
}
