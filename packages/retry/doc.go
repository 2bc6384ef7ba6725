// Package retry runs operations against unreliable transports and retries
// transient failures with exponential backoff and jitter.
//
// It provides:
//   - Policy: attempt budget, delay arithmetic and the retryable set
//   - Strategy: pluggable delay calculation (Exponential, Fixed)
//   - Executor / Do: the attempt loop
//   - Classify: mapping of transport errors to ErrorKind
package retry
