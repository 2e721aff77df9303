package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "procurement_agent_build_info",
			Help: "Build information of the procurement agent",
		},
		[]string{"version", "commit", "date"},
	)

	AsksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procurement_agent_asks_total",
			Help: "Total number of questions handled, by terminal stage and status",
		},
		[]string{"stage", "status"},
	)

	AskDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "procurement_agent_ask_duration_seconds",
			Help:    "Duration of a full question round trip",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 0.05s to ~100s
		},
	)

	LLMCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procurement_agent_llm_calls_total",
			Help: "Total number of model calls, by kind and status",
		},
		[]string{"kind", "status"},
	)

	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "procurement_agent_llm_call_duration_seconds",
			Help:    "Duration of model calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"kind"},
	)

	DatasetOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procurement_agent_dataset_ops_total",
			Help: "Total number of dataset reads, by operation and status",
		},
		[]string{"operation", "status"},
	)

	ValidationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procurement_agent_validation_failures_total",
			Help: "Total number of structured queries rejected before execution",
		},
		[]string{"reason"},
	)

	UnknownFieldsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "procurement_agent_unknown_fields_total",
			Help: "Filter fields referenced by generated queries that are absent from the profiled schema",
		},
	)

	UntaggedDatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "procurement_agent_untagged_dates_total",
			Help: "Date-like string comparison operands that were not wrapped in a date placeholder",
		},
	)

	NarrationFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "procurement_agent_narration_fallbacks_total",
			Help: "Total number of narrations served by the deterministic formatter",
		},
	)

	ImportedDocumentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procurement_agent_imported_documents_total",
			Help: "Documents written by the CSV importer, by status",
		},
		[]string{"status"},
	)
)
