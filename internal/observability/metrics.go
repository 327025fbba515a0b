// SPDX-License-Identifier: Apache-2.0

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the orchestration core, exposed on /metrics by the
// serve command.
var (
	StepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kestrel_steps_total",
		Help: "Steps executed, by tool and final status.",
	}, []string{"tool", "status"})

	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kestrel_step_duration_seconds",
		Help:    "Wall-clock duration of step execution.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"tool"})

	PlansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kestrel_plans_total",
		Help: "Plans executed, by outcome.",
	}, []string{"status"})

	ReplansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kestrel_replans_total",
		Help: "Replan attempts triggered by step failures.",
	})
)
