// Package metrics provides centralized Prometheus metrics for the collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Upstream metrics track outbound requests and the adaptive rate per upstream
var (
	// UpstreamRequestsTotal counts requests sent to upstreams by status class
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Total number of requests sent to upstream data providers",
		},
		[]string{"upstream", "status"},
	)

	// UpstreamRequestDuration measures upstream request latency in seconds
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Upstream request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"upstream"},
	)

	// UpstreamRateCurrent is the current permitted request rate per upstream
	UpstreamRateCurrent = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "upstream_rate_current",
			Help: "Current permitted request rate (requests per second) per upstream",
		},
		[]string{"upstream"},
	)

	// UpstreamRateAdjustmentsTotal counts rate changes by direction
	UpstreamRateAdjustmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_rate_adjustments_total",
			Help: "Total number of adaptive rate adjustments",
		},
		[]string{"upstream", "direction"}, // direction: increase, decrease, backoff
	)
)

// Resilience metrics track breakers, retries and failure classification
var (
	// CircuitBreakerState is 0 closed, 1 half-open, 2 open
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"upstream"},
	)

	// CircuitBreakerRejectionsTotal counts calls rejected without running
	CircuitBreakerRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_rejections_total",
			Help: "Total number of calls rejected by an open circuit breaker",
		},
		[]string{"upstream"},
	)

	// RetryAttemptsTotal counts executor attempts by outcome
	RetryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of attempts made by the retry executor",
		},
		[]string{"upstream", "outcome"}, // outcome: success, retry, dead_letter, circuit_break, fatal
	)

	// FailureCategoryTotal counts classified failures
	FailureCategoryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "failure_category_total",
			Help: "Total number of failures by category",
		},
		[]string{"category"},
	)

	// DeadLettersTotal counts operations given up for good
	DeadLettersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dead_letters_total",
			Help: "Total number of operations sent to the dead-letter queue",
		},
		[]string{"source"},
	)
)

// Collection metrics track per-source collection results
var (
	// SourceCollectionsTotal counts per-source per-day collections by status
	SourceCollectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_collections_total",
			Help: "Total number of source collections by status",
		},
		[]string{"source", "status"},
	)

	// SourceCollectionDuration measures the time to collect one source for one day
	SourceCollectionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "source_collection_duration_seconds",
			Help:    "Time taken to collect one source for one day",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"source"},
	)

	// RecordsCollectedTotal counts payload records persisted per source
	RecordsCollectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "records_collected_total",
			Help: "Total number of records collected per source",
		},
		[]string{"source"},
	)
)

// Database metrics track database performance
var (
	// DBQueryDuration measures database query duration
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"operation"},
	)

	// DBConnectionsActive tracks active database connections
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	// DBConnectionsIdle tracks idle database connections
	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)

// RecordUpstreamRequest records one outbound request with its status class
// ("2xx", "4xx", "5xx" or "error") and duration.
func RecordUpstreamRequest(upstream, status string, duration time.Duration) {
	UpstreamRequestsTotal.WithLabelValues(upstream, status).Inc()
	UpstreamRequestDuration.WithLabelValues(upstream).Observe(duration.Seconds())
}

// RecordDBQuery records the duration of a database query operation.
// Operation should describe the query type (e.g., "insert_run", "select_recent_runs").
func RecordDBQuery(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateDBConnectionStats updates database connection pool statistics.
func UpdateDBConnectionStats(active, idle int) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}
