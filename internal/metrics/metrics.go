// Package metrics exposes the engine's Prometheus instrumentation. All
// collectors are registered on the default registry and served from
// /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SweepsTotal counts completed asset sweeps by outcome.
	SweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "research_sweeps_total",
		Help: "Completed asset sweeps by outcome.",
	}, []string{"outcome"})

	// SweepDuration observes end-to-end sweep latency per asset.
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "research_sweep_duration_seconds",
		Help:    "End-to-end duration of one asset sweep.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
	})

	// BotRuns counts bot invocations by bot name and status.
	BotRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "research_bot_runs_total",
		Help: "Bot invocations by bot and status.",
	}, []string{"bot", "status"})

	// DeltasDetected counts sweeps whose payload changed materially.
	DeltasDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "research_deltas_detected_total",
		Help: "Sweeps that produced a significant data change.",
	})

	// ReadRequests counts read-endpoint hits by how they were served.
	ReadRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "research_read_requests_total",
		Help: "GET /research hits by serve path.",
	}, []string{"served_from"})

	// ScheduledJobs counts scheduler job executions by job and outcome.
	ScheduledJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "research_scheduled_jobs_total",
		Help: "Scheduler job executions by job name and outcome.",
	}, []string{"job", "outcome"})
)
