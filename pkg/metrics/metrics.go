package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NotificationsCreated counts durable notification records by type and audience.
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subwatch_notifications_created_total",
			Help: "Total number of notification records created",
		},
		[]string{"type", "audience"},
	)

	// PushDeliveries counts push attempts by outcome (delivered|expired|transient_error).
	PushDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subwatch_push_deliveries_total",
			Help: "Total number of push delivery attempts",
		},
		[]string{"outcome"},
	)

	// SweepRuns counts scheduled sweep executions by job and result (ok|error).
	SweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subwatch_sweep_runs_total",
			Help: "Total number of sweep job executions",
		},
		[]string{"job", "result"},
	)

	// ActiveSubscriptions tracks currently active push endpoints.
	ActiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subwatch_active_push_subscriptions",
			Help: "Number of active push subscriptions",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subwatch_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
