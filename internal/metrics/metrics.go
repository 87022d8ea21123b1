// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "order_notifications"

// Metrics holds all application metrics
type Metrics struct {
	// Dispatch metrics
	TargetsSent     prometheus.Counter
	TargetsFailed   *prometheus.CounterVec
	TargetsSkipped  prometheus.Counter
	BatchesSent     *prometheus.CounterVec
	BatchLatency    prometheus.Histogram
	BatchesInFlight prometheus.Gauge

	// History metrics
	RecordsWritten prometheus.Counter
	RecordsFailed  prometheus.Counter

	// Retention metrics
	RecordsSwept prometheus.Counter
	SweepErrors  prometheus.Counter
}

// New creates the metrics and registers them with reg.
// Passing nil registers nothing, which keeps tests independent.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TargetsSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "targets_sent_total",
			Help:      "Total number of targets accepted by the push gateway",
		}),
		TargetsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "targets_failed_total",
			Help:      "Total number of targets the push gateway did not deliver",
		}, []string{"kind"}),
		TargetsSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "targets_skipped_total",
			Help:      "Total number of targets without a push address",
		}),
		BatchesSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "batches_total",
			Help:      "Total number of gateway calls by result",
		}, []string{"result"}),
		BatchLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "batch_duration_seconds",
			Help:      "Time spent in a single gateway call",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		BatchesInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "batches_in_flight",
			Help:      "Number of gateway calls currently running",
		}),
		RecordsWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "records_written_total",
			Help:      "Total number of notification records persisted",
		}),
		RecordsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "records_failed_total",
			Help:      "Total number of notification records that could not be persisted",
		}),
		RecordsSwept: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retention",
			Name:      "records_deleted_total",
			Help:      "Total number of notification records deleted by the retention sweep",
		}),
		SweepErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retention",
			Name:      "errors_total",
			Help:      "Total number of failed retention queries or delete batches",
		}),
	}
}
