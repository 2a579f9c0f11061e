package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Forecast service metrics for production monitoring
var (
	// Report metrics
	ReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_forecast_reports_total",
			Help: "Total number of analytics reports requested",
		},
		[]string{"status"}, // ok, invalid_request, missing_parameter, internal_failure
	)

	ReportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kubilitics_forecast_report_duration_seconds",
			Help:    "Analytics report duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"status"},
	)

	ForecastPoints = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_forecast_points_total",
			Help: "Total number of forecast points generated",
		},
		[]string{"domain"},
	)

	RecommendationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_forecast_recommendations_total",
			Help: "Total number of recommendations emitted",
		},
		[]string{"type", "priority"},
	)

	// Data source metrics
	RecordsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_forecast_records_fetched_total",
			Help: "Total number of historical records fetched from the record provider",
		},
		[]string{"kind"},
	)

	RecordsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_forecast_records_ingested_total",
			Help: "Total number of historical records written to the store",
		},
		[]string{"kind"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kubilitics_forecast_db_query_duration_seconds",
			Help:    "Record store query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"driver", "operation"},
	)

	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_forecast_cache_requests_total",
			Help: "Record cache lookups",
		},
		[]string{"backend", "result"}, // result: hit/miss/error
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_forecast_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kubilitics_forecast_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"method", "route"},
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kubilitics_forecast_websocket_connections",
			Help: "Open analytics WebSocket connections",
		},
	)

	// Scheduler metrics
	SchedulerRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_forecast_scheduler_runs_total",
			Help: "Scheduled job runs",
		},
		[]string{"job", "status"},
	)
)
