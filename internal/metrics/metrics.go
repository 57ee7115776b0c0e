// Package metrics exposes prometheus instrumentation for the SLA engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EvaluationsTotal counts tracker transitions by lifecycle event type.
	EvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "slaengine",
		Name:      "evaluations_total",
		Help:      "Tracker transitions applied, by event type.",
	}, []string{"event_type"})

	// BreachesTotal counts tier breaches as they are detected.
	BreachesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "slaengine",
		Name:      "breaches_total",
		Help:      "SLA tier breaches detected, by tier.",
	}, []string{"tier"})

	// ObligationsFiredTotal counts dispatched obligations by kind.
	ObligationsFiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "slaengine",
		Name:      "obligations_fired_total",
		Help:      "Obligations handed to the notifier and marked fired.",
	}, []string{"kind"})

	// EvaluationDuration observes how long a tracker transition takes.
	EvaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "slaengine",
		Name:      "evaluation_duration_seconds",
		Help:      "Latency of tracker transitions.",
		Buckets:   prometheus.DefBuckets,
	})

	// NoSLATotal counts evaluations that resolved to no applicable policy.
	NoSLATotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "slaengine",
		Name:      "no_sla_total",
		Help:      "Evaluations that found no applicable policy or target.",
	})
)
