package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	OutcomeSuccess     = "success"
	OutcomeUnavailable = "unavailable"
)

// Prometheus metrics for upstream sync health
var (
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomaly_upstream_requests_total",
			Help: "Upstream calls by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	UpstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "anomaly_upstream_request_duration_seconds",
			Help:    "Duration of upstream calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	ReconcileInsertedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "anomaly_reconcile_inserted_total",
			Help: "Anomalies inserted on first observation",
		},
	)

	ReconcileDuplicatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "anomaly_reconcile_duplicates_total",
			Help: "Inserts that lost a race on external id and were treated as already present",
		},
	)

	ReconcileInvalidTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "anomaly_reconcile_invalid_total",
			Help: "Upstream candidates skipped because they failed validation",
		},
	)

	StatsSourceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomaly_stats_source_total",
			Help: "Stats responses by source",
		},
		[]string{"source"},
	)
)

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		UpstreamRequestsTotal,
		UpstreamRequestDuration,
		ReconcileInsertedTotal,
		ReconcileDuplicatesTotal,
		ReconcileInvalidTotal,
		StatsSourceTotal,
	)
}
