package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	QueriesServed        prometheus.Counter
	QueryRowsDropped     prometheus.Counter
	QueriesRejected      *prometheus.CounterVec
	ActionsExecuted      *prometheus.CounterVec
	ActionsRejected      *prometheus.CounterVec
	BulkPartialFailures  prometheus.Counter
	EvidenceWriteFailed  *prometheus.CounterVec
	QueryDurationSeconds prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		QueriesServed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "recordgate_queries_served_total",
			Help: "Total number of list queries answered successfully",
		}),
		QueryRowsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "recordgate_query_rows_dropped_total",
			Help: "Rows silently excluded from query results by per-record capability checks",
		}),
		QueriesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "recordgate_queries_rejected_total",
			Help: "List queries rejected before record store access",
		}, []string{"reason"}),
		ActionsExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "recordgate_actions_executed_total",
			Help: "Row-level action executions by action id and outcome",
		}, []string{"action", "outcome"}),
		ActionsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "recordgate_actions_rejected_total",
			Help: "Action requests rejected before any mutation",
		}, []string{"reason"}),
		BulkPartialFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "recordgate_bulk_partial_failures_total",
			Help: "Bulk batches that completed with at least one failed record",
		}),
		EvidenceWriteFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "recordgate_evidence_write_failures_total",
			Help: "Evidence writes that failed, by store tier",
		}, []string{"tier"}),
		QueryDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "recordgate_query_duration_seconds",
			Help:    "End-to-end latency of list queries",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}
