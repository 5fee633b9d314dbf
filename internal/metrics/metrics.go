// Package metrics exposes Prometheus instrumentation for the store, the
// tracking core, background jobs and the HTTP API.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/graaaaa/playpulse/internal/model"
)

var (
	// Store metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "playpulse_db_query_duration_seconds",
			Help:    "Duration of store queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playpulse_db_query_errors_total",
			Help: "Total number of failed store queries",
		},
		[]string{"backend", "operation"},
	)

	// Tracking metrics
	SessionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playpulse_sessions_started_total",
			Help: "Total number of sessions opened",
		},
	)

	SessionsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playpulse_sessions_closed_total",
			Help: "Total number of sessions closed, by reason",
		},
		[]string{"reason"}, // "stop", "restart", "reaped"
	)

	SnapshotsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playpulse_snapshots_recorded_total",
			Help: "Total number of snapshots appended",
		},
		[]string{"kind"}, // "member", "game"
	)

	StaleDataWarnings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playpulse_stale_data_warnings_total",
			Help: "Member snapshots recorded with more online than total members",
		},
	)

	FallbackTier = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playpulse_aggregation_tier_total",
			Help: "Which tier answered an aggregation query",
		},
		[]string{"view", "tier"},
	)

	IngestChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playpulse_ingest_changes_total",
			Help: "Presence changes handled by the ingest workers, by result",
		},
		[]string{"action", "result"}, // result: "ok", "error", "dropped"
	)

	// Job metrics
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playpulse_job_runs_total",
			Help: "Background job iterations, by result",
		},
		[]string{"job", "result"},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playpulse_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "playpulse_api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordDBQuery records a store query's latency and failure. Not-found
// results are not failures.
func RecordDBQuery(backend, operation string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		DBQueryErrors.WithLabelValues(backend, operation).Inc()
	}
}

// RecordJobRun records one background job iteration.
func RecordJobRun(job string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	JobRuns.WithLabelValues(job, result).Inc()
}

// RecordAPIRequest records an API request.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
