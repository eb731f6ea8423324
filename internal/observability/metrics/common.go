package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OpsRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ops_requests_total",
			Help: "Total number of requests served by the ops endpoint",
		},
		[]string{"method", "path"},
	)

	OpsRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ops_requests_in_flight",
			Help: "Number of ops requests currently being processed",
		},
	)

	OpsRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ops_request_duration_seconds",
			Help:    "Duration of ops requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
