// Hearth - Household Management and Library Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hearth

// Package metrics provides Prometheus collectors for Hearth.
//
// Metrics are exposed at /metrics in Prometheus text format. Collectors are
// registered with the default registry via promauto at package load.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"method", "endpoint"},
	)

	// Sync Metrics
	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "library_sync_duration_seconds",
			Help:    "Duration of full library sync cycles in seconds",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
		},
	)

	SyncBooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_sync_books_total",
			Help: "Total number of book rows written during sync",
		},
		[]string{"provider"},
	)

	SyncErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_sync_errors_total",
			Help: "Total number of per-credential sync failures",
		},
		[]string{"provider", "error_type"}, // "timeout", "provider", "database", "unknown_provider"
	)

	SyncLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "library_sync_last_success_timestamp",
			Help: "Unix timestamp of the last fully attempted sync cycle",
		},
	)

	// Notification Metrics
	NotifyEmailsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "library_notify_emails_sent_total",
			Help: "Total number of due-item notification emails sent",
		},
	)

	NotifyErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "library_notify_errors_total",
			Help: "Total number of notification delivery failures",
		},
	)

	// Scheduler Metrics
	JobsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_jobs_executed_total",
			Help: "Total number of scheduler job executions",
		},
		[]string{"job", "trigger", "result"}, // trigger: "interval", "cron", "manual"
	)

	JobQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_job_queue_depth",
			Help: "Current number of jobs waiting in the scheduler queue",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breakers",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)
)
