// Package saldo provides the resilient network core for ledger API clients,
// built from composable reliability primitives:
//
//   - Retries with exponential backoff + jitter under a per-call time budget
//   - Per-endpoint circuit breakers (closed / open / half-open, rolling window)
//   - Client-side rate limiting (sliding window or token bucket, with optional queueing)
//   - Connection pool admission with per-host and total caps
//   - Request coalescing (merges concurrent identical in-flight requests)
//   - In-memory response caching with per-request overrides
//   - OAuth client-credentials token management with proactive refresh
//   - Idempotency keys stamped on mutating requests so retries stay safe
//   - Middleware chain for cross-cutting concerns (auth, logging, tracing, etc.)
//   - Prometheus metrics, OpenTelemetry trace propagation, structured debug logging
//
// Design goals:
//   - Small surface area: functional options configure everything
//   - Never replay a request the server may have applied
//   - Safe concurrent use of a single *Client instance
//   - Extensibility via user supplied middleware & pluggable cache / metrics
//
// Typical usage:
//
//	client := saldo.New(
//	    saldo.WithMaxRetries(3),
//	    saldo.WithTimeout(30*time.Second),
//	    saldo.WithRateLimiter(saldo.RateLimiterConfig{MaxRequests: 100, Window: time.Second}),
//	    saldo.WithCache(5*time.Minute),
//	    saldo.WithCircuitBreaker(saldo.CircuitBreakerConfig{}),
//	    saldo.WithCoalescing(time.Second),
//	)
//	resp, err := client.Get(ctx, "https://ledger.example.com/v1/balances")
//
// Only transport errors and retryable status codes trigger retries by default;
// override with WithRetryCondition. Non-idempotent requests are never replayed
// once a response has been received, whatever the status. The library avoids
// opinionated logging: provide a Logger (e.g. via WithSimpleLogger) + enable
// debug flags selectively (WithDebug / WithDebugConfig) for insight without noise.
package saldo
