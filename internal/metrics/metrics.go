// Package metrics holds the Prometheus collectors shared across the service.
// All collectors register with the default registry on package init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CompletionRequests counts completion calls by model and outcome
	// (ok, status, network, unexpected).
	CompletionRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdr_completion_requests_total",
			Help: "Completion API calls by model and outcome.",
		},
		[]string{"model", "outcome"},
	)

	CompletionLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sdr_completion_duration_seconds",
			Help:    "Latency of completion API calls.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)

	CompletionTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdr_completion_tokens_total",
			Help: "Tokens reported by the completion API.",
		},
		[]string{"kind"},
	)

	// ParseFallbacks counts completions that could not be decoded and were
	// replaced by the fixed fallback payload.
	ParseFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdr_parse_fallbacks_total",
			Help: "Structured completions replaced by a fallback payload.",
		},
		[]string{"kind"},
	)

	LeadsScored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdr_leads_scored_total",
			Help: "Qualification and scoring passes that updated a lead.",
		},
		[]string{"operation"},
	)

	EvaluationCases = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdr_evaluation_cases_total",
			Help: "Evaluation cases run, by result (passed, failed, unscored, error).",
		},
		[]string{"result"},
	)
)
