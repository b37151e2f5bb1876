// Package metrics exposes the process's Prometheus instrumentation,
// following the teacher's promauto-based package-level variable style.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DispatchesTotal counts settled deliveries by queue and outcome
	// (ack, reject_requeue, reject_drop).
	DispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queuerunner_dispatches_total",
			Help: "Total number of settled deliveries by queue and outcome",
		},
		[]string{"queue", "outcome"},
	)

	// DispatchDuration tracks how long the command-execution race takes.
	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queuerunner_dispatch_duration_seconds",
			Help:    "Duration of the command execution race, in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"queue"},
	)

	// WorkersActive tracks the number of currently running worker loops.
	WorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "queuerunner_workers_active",
			Help: "Number of currently active worker loops",
		},
	)

	// ReconnectsTotal counts broker reconnection attempts.
	ReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queuerunner_reconnects_total",
			Help: "Total number of broker reconnection attempts",
		},
	)

	// RegistryErrorsTotal counts registry queries (List or Lookup) that
	// exhausted their retry budget.
	RegistryErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queuerunner_registry_errors_total",
			Help: "Total number of registry lookups that exhausted their retry budget",
		},
	)
)
