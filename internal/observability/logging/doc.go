// Package logging provides structured logging utilities with context propagation.
//
// This package wraps the standard library's log/slog package with helper functions
// for common logging patterns used throughout the collector.
//
// Key features:
//   - JSON output for the worker, colored text output (tint) for the CLI
//   - Batch run ID propagation
//   - Context-aware logging
//   - Configurable log levels
//
// Example usage:
//
//	import "batch-collector/internal/observability/logging"
//
//	func main() {
//	    logger := logging.NewLogger()
//	    logger.Info("worker started", slog.String("timezone", "Asia/Seoul"))
//	}
//
//	func runJob(ctx context.Context) {
//	    logger := logging.WithRun(ctx, slog.Default())
//	    logger.Info("collecting")
//	}
package logging
