package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Kocoro-lab/toolscout/internal/research"
)

var (
	// Run metrics
	RunsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolscout_runs_started_total",
			Help: "Total number of research runs started",
		},
		[]string{"mode"},
	)

	RunsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolscout_runs_completed_total",
			Help: "Total number of research runs finished, by terminal status",
		},
		[]string{"mode", "status"},
	)

	RunsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "toolscout_runs_active",
			Help: "Research runs started and not yet finished",
		},
		[]string{"mode"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "toolscout_run_duration_seconds",
			Help:    "Research run duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"mode"},
	)

	// Stage metrics
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "toolscout_stage_duration_seconds",
			Help:    "Duration of each orchestrator stage in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	ToolsExtracted = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "toolscout_tools_extracted",
			Help:    "Number of tool names extracted per run",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 8, 10},
		},
	)

	EntityOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolscout_entity_outcomes_total",
			Help: "Per-tool research outcomes (model, placeholder, default)",
		},
		[]string{"source"},
	)

	// Collaborator metrics
	CollaboratorCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolscout_collaborator_calls_total",
			Help: "Calls to external collaborators by provider, operation and result",
		},
		[]string{"provider", "op", "result"},
	)

	CollaboratorLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "toolscout_collaborator_latency_seconds",
			Help:    "Latency of external collaborator calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "op"},
	)

	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolscout_cache_hits_total",
			Help: "Result cache hits",
		},
		[]string{"kind"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolscout_cache_misses_total",
			Help: "Result cache misses",
		},
		[]string{"kind"},
	)

	// Streaming metrics
	StreamSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "toolscout_stream_subscribers",
			Help: "Active progress stream subscribers",
		},
	)

	StreamEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "toolscout_stream_events_dropped_total",
			Help: "Progress events dropped for slow subscribers",
		},
	)
)

// RecordCollaboratorCall records the outcome and latency of one external call.
func RecordCollaboratorCall(provider, op string, err error, started time.Time) {
	CollaboratorCalls.WithLabelValues(provider, op, callResult(err)).Inc()
	CollaboratorLatency.WithLabelValues(provider, op).Observe(time.Since(started).Seconds())
}

func callResult(err error) string {
	switch kind := research.KindOf(err); {
	case kind == nil:
		return "success"
	case errors.Is(kind, research.ErrStructuredOutput):
		return "invalid_output"
	case errors.Is(kind, research.ErrEmptyResult):
		return "empty"
	default:
		return "unavailable"
	}
}

// RecordRunMetrics records a finished run.
func RecordRunMetrics(mode, status string, duration time.Duration) {
	RunsCompleted.WithLabelValues(mode, status).Inc()
	RunDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordCache records a cache lookup.
func RecordCache(kind string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(kind).Inc()
		return
	}
	CacheMisses.WithLabelValues(kind).Inc()
}
