// Package telemetry holds the Prometheus collectors exported on /metrics.
//
// HTTP metrics are labelled with the mux route template (for example
// /incidents/{id}) instead of the raw URL so incident ids do not inflate
// label cardinality.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statusify_http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "statusify_http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	// IncidentMutationsTotal counts incident operations by outcome ("success" or "failed").
	IncidentMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statusify_incident_mutations_total",
			Help: "Incident create/update/delete/deactivate requests, by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	// StatusChecksTotal counts badge and API status evaluations by result.
	StatusChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statusify_status_checks_total",
			Help: "Aggregated status evaluations, by resulting state.",
		},
		[]string{"state"},
	)

	// JobsProcessedTotal counts delayed jobs run by the worker.
	// outcome is one of "completed", "retried", "failed".
	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statusify_jobs_processed_total",
			Help: "Delayed jobs processed by the worker, by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	EmailsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statusify_emails_sent_total",
			Help: "Emails handed to the mailer, by template and result.",
		},
		[]string{"template", "result"},
	)
)
