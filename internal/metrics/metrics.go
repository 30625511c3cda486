package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label value constants to prevent typos
const (
	// HTTP endpoints
	EndpointAuth           = "fitbit_auth"
	EndpointCallback       = "fitbit_callback"
	EndpointSync           = "fitbit_sync"
	EndpointBackfill       = "fitbit_backfill"
	EndpointBackfillStatus = "fitbit_backfill_status"
	EndpointStatus         = "fitbit_status"
	EndpointDisconnect     = "fitbit_disconnect"
	EndpointHealth         = "health"

	// Fitbit API operations
	OpExchangeCode = "exchange_code"
	OpRefreshToken = "refresh_token"
	OpFetchRange   = "fetch_range"

	// Results
	ResultSuccess = "success"
	ResultFailure = "failure"

	// Database operations
	DBOpApplySummaryPatch   = "apply_summary_patch"
	DBOpUpsertSyncProgress  = "upsert_sync_progress"
	DBOpAdvanceSyncProgress = "advance_sync_progress"
)

// HTTP Metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint", "status_code"},
	)
)

// Fitbit API Metrics
var (
	FitbitAPIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fitbit_api_requests_total",
			Help: "Total number of Fitbit API requests",
		},
		[]string{"operation", "status_code"},
	)

	FitbitAPIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fitbit_api_request_duration_seconds",
			Help:    "Fitbit API request latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"operation", "status_code"},
	)

	RateLimitRemaining = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fitbit_rate_limit_remaining",
			Help: "Remaining Fitbit API quota reported by the most recent response",
		},
	)

	RateLimitWaitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fitbit_rate_limit_waits_total",
			Help: "Total number of times a request waited for the rate limit window to reset",
		},
	)

	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fitbit_token_refreshes_total",
			Help: "Total number of OAuth token refresh attempts",
		},
		[]string{"result"},
	)
)

// Sync Metrics
var (
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_runs_total",
			Help: "Total number of incremental sync runs",
		},
		[]string{"result"},
	)

	BackfillRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backfill_runs_total",
			Help: "Total number of backfill runs",
		},
		[]string{"result"},
	)

	BackfillChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backfill_chunks_total",
			Help: "Total number of backfill chunks fetched per endpoint",
		},
		[]string{"endpoint", "result"},
	)

	BackfillsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backfills_active",
			Help: "Number of backfills currently running",
		},
	)

	SummaryPatchesAppliedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "summary_patches_applied_total",
			Help: "Total number of daily summary patches applied",
		},
	)

	SyncProgressRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sync_progress_rows",
			Help: "Number of sync progress rows by status",
		},
		[]string{"status"},
	)
)

// Database Metrics
var (
	DBOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_operation_duration_seconds",
			Help:    "Database operation latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	DBOperationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_operation_errors_total",
			Help: "Total number of database operation errors",
		},
		[]string{"operation"},
	)
)
