// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliance_sweeps_total",
			Help: "Total number of compliance sweeps by outcome",
		},
		[]string{"status"},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "compliance_sweep_duration_seconds",
			Help:    "Duration of a full compliance sweep in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	AllocationsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliance_allocations_skipped_total",
			Help: "Allocations skipped during a sweep",
		},
		[]string{"reason"},
	)

	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_created_total",
			Help: "Notifications written to the ledger",
		},
		[]string{"type"},
	)

	DispatchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_attempts_total",
			Help: "Dispatch intents processed by outcome",
		},
		[]string{"outcome"},
	)

	DispatchQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_queue_depth",
			Help: "Dispatch intents waiting in the queue after the last drain",
		},
	)

	TicksSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_ticks_skipped_total",
			Help: "Timer ticks skipped because a previous run was still in progress",
		},
		[]string{"timer"},
	)
)
