// Package observability provides the collector's observability infrastructure
// including structured logging, Prometheus metrics, and OpenTelemetry tracing.
//
// Subpackages:
//   - logging: Structured logging utilities with slog
//   - metrics: Prometheus metrics registry and recorders
//   - tracing: OpenTelemetry spans around collection runs
//
// Example usage:
//
//	import (
//	    "batch-collector/internal/observability/logging"
//	    "batch-collector/internal/observability/metrics"
//	)
//
//	func main() {
//	    logger := logging.NewLogger()
//	    logger.Info("worker started")
//
//	    metrics.RecordSourceCollection("dart", true, 120, time.Second)
//	}
package observability
