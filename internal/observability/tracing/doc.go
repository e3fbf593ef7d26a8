// Package tracing provides OpenTelemetry tracing integration.
//
// Spans are created for each job run, each collection day and each source call,
// and an http.RoundTripper adds client spans to upstream requests.
//
// Example usage:
//
//	import "batch-collector/internal/observability/tracing"
//
//	func main() {
//	    shutdown := tracing.Init("batch-collector")
//	    defer shutdown(context.Background())
//	}
//
//	func collect(ctx context.Context) (err error) {
//	    ctx, span := tracing.StartSpan(ctx, "collect.source", attribute.String("source", "dart"))
//	    defer func() { tracing.EndSpan(span, err) }()
//	    // ... collect ...
//	}
package tracing
