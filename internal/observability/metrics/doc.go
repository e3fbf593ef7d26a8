// Package metrics provides Prometheus metrics registry and recording utilities.
//
// This package centralizes the collector's metrics:
//   - Upstream metrics (request count, latency, adaptive rate)
//   - Resilience metrics (circuit breaker state, retries, failure categories, dead letters)
//   - Collection metrics (per-source outcomes and durations)
//   - Database query metrics
//
// All metrics are automatically registered with the Prometheus default registry
// and exposed via the /metrics endpoint of the worker.
//
// Example usage:
//
//	import "batch-collector/internal/observability/metrics"
//
//	func collect(source string) {
//	    start := time.Now()
//	    n, err := fetchAndStore(source)
//	    metrics.RecordSourceCollection(source, err == nil, n, time.Since(start))
//	}
package metrics
