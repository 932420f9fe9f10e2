// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Import jobs
	ImportJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recipebox_import_jobs_total",
			Help: "Import job status transitions, by resulting status",
		},
		[]string{"status"},
	)

	ImportJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recipebox_import_job_duration_seconds",
			Help:    "Time from claiming an import job to its terminal state",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	ImportQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recipebox_import_queue_depth",
			Help: "Import jobs waiting in the in-memory queue",
		},
	)

	ImportQueueOverflowTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recipebox_import_queue_overflow_total",
			Help: "Import jobs processed outside the queue because it was full",
		},
	)

	ImportJobsCleanedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recipebox_import_jobs_cleaned_total",
			Help: "Import jobs removed by the retention sweep",
		},
	)

	// Analysis scheduler
	AnalysisSweepsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recipebox_analysis_sweeps_total",
			Help: "Completed analysis sweeps",
		},
	)

	AnalysisRecipesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recipebox_analysis_recipes_total",
			Help: "Recipes visited by the analysis scheduler, by outcome",
		},
		[]string{"outcome"}, // "analyzed", "skipped", "failed"
	)

	// AI service
	AIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recipebox_ai_request_duration_seconds",
			Help:    "AI service request latency",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"endpoint", "outcome"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "recipebox_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// HTTP
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recipebox_http_requests_total",
			Help: "HTTP requests served, by route pattern and status code",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recipebox_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
