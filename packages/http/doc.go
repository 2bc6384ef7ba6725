// Package http provides the resilient HTTP client used by hitwire.
//
// It wraps the standard library's http package with:
//   - Configurable timeouts and redirect handling
//   - Retries with exponential backoff (packages/retry)
//   - Ordered request/response interceptors (packages/interceptor)
//   - Latency tracking (packages/latency)
//   - A bounded cache for idempotent reads (packages/cache)
//   - Client-side rate limiting
package http
