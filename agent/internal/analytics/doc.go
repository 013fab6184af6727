// Package analytics is the HTTP client for the fleet analytics service.
//
// One Client serves the seven snapshot queries (anomalies, clusters,
// insights, connectivity, latency, throughput, quality). Every request is
// authenticated with the X-API-KEY header, bounded by the configured timeout,
// paced by a token-bucket limiter and guarded by a circuit breaker. Transient
// failures (transport errors, 429, 5xx) are retried with exponential backoff
// when retry_attempts > 1.
//
// Non-2xx responses surface as *APIError. While the breaker is open calls
// fail fast with ErrCircuitOpen.
package analytics
