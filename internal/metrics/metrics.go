// Package metrics declares the Prometheus instruments shared across the
// pipeline. Collectors register on the default registry at init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsIngested counts events accepted into the store, by source.
	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "venwatch_events_ingested_total",
		Help: "Events accepted into the event store.",
	}, []string{"source"})

	// EventsDuplicate counts events dropped by duplicate detection.
	EventsDuplicate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "venwatch_events_duplicate_total",
		Help: "Events dropped as duplicates.",
	}, []string{"source"})

	// EventsRejected counts events failing canonical validation.
	EventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "venwatch_events_rejected_total",
		Help: "Events rejected by validation.",
	}, []string{"source"})

	// PipelineErrors counts stage failures by stage and class.
	PipelineErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "venwatch_pipeline_errors_total",
		Help: "Pipeline stage failures.",
	}, []string{"stage", "class"})

	// StageDuration observes per-stage processing latency.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "venwatch_stage_duration_seconds",
		Help:    "Pipeline stage processing time.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	// LLMCalls counts analyzer calls by tier and outcome.
	LLMCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "venwatch_llm_calls_total",
		Help: "LLM analyzer calls.",
	}, []string{"tier", "outcome"})

	// AdapterRuns counts adapter executions by source and outcome.
	AdapterRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "venwatch_adapter_runs_total",
		Help: "Adapter fetch runs.",
	}, []string{"source", "outcome"})

	// AdapterEvents observes events produced per adapter run.
	AdapterEvents = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "venwatch_adapter_events",
		Help:    "Events produced per adapter run.",
		Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
	}, []string{"source"})

	// SanctionsMatches counts watchlist hits recorded.
	SanctionsMatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "venwatch_sanctions_matches_total",
		Help: "Sanctions watchlist matches recorded.",
	})

	// AlertsGenerated counts threshold-crossing alerts emitted.
	AlertsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "venwatch_alerts_generated_total",
		Help: "Threshold-crossing alerts emitted.",
	}, []string{"rule"})
)
