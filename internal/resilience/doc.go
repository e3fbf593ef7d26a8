// Package resilience groups the fault tolerance building blocks used for every
// upstream call the collector makes.
//
// Subpackages:
//   - failure: error classification (category, retryability)
//   - ratecontrol: per-upstream adaptive token buckets
//   - circuitbreaker: per-upstream gobreaker breakers and the database breaker
//   - recovery: failure patterns, retry policies and recovery decisions
//   - retry: the executor that wires all of the above around each attempt
//
// Usage Example:
//
//	exec := retry.NewExecutor(
//	    ratecontrol.NewRegistry(logger, nil),
//	    circuitbreaker.NewRegistry(nil),
//	    recovery.NewAnalyzer(recovery.WithLogger(logger)),
//	)
//	_, err := exec.Execute(ctx, retry.Request{Upstream: "dart", Operation: op},
//	    func(ctx context.Context, op recovery.Operation) error {
//	        return fetch(ctx, op)
//	    })
package resilience
