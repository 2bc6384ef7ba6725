package retry

import (
	"fmt"
	"slices"
	"time"
)

const (
	// DefaultMaxAttempts is the number of invocations made before giving up
	DefaultMaxAttempts = 3
	// DefaultBaseDelay is the delay before the second attempt
	DefaultBaseDelay = time.Second
	// DefaultBackoffFactor multiplies the delay after every failed attempt
	DefaultBackoffFactor = 2.0
	// DefaultJitterRatio is the maximum random fraction added to a delay
	DefaultJitterRatio = 0.1
)

// DefaultRetryableStatusCodes are the HTTP statuses retried by DefaultPolicy
var DefaultRetryableStatusCodes = []int{408, 429, 500, 502, 503, 504}

// DefaultRetryableKinds are the transport error kinds retried by DefaultPolicy
var DefaultRetryableKinds = []ErrorKind{KindReset, KindDNS, KindTimeout}

// Policy describes how many times an operation runs and how long to wait
// between attempts.
type Policy struct {
	MaxAttempts          int
	BaseDelay            time.Duration
	BackoffFactor        float64
	JitterRatio          float64
	MaxDelay             time.Duration // 0 means uncapped
	RetryableStatusCodes []int
	RetryableKinds       []ErrorKind
}

// DefaultPolicy returns a policy with sensible defaults
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:          DefaultMaxAttempts,
		BaseDelay:            DefaultBaseDelay,
		BackoffFactor:        DefaultBackoffFactor,
		JitterRatio:          DefaultJitterRatio,
		RetryableStatusCodes: slices.Clone(DefaultRetryableStatusCodes),
		RetryableKinds:       slices.Clone(DefaultRetryableKinds),
	}
}

// NoRetry returns a policy that runs the operation exactly once
func NoRetry() Policy {
	p := DefaultPolicy()
	p.MaxAttempts = 1
	return p
}

// Validate checks if the policy is usable
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.BaseDelay < 0 {
		return fmt.Errorf("base delay must not be negative, got %v", p.BaseDelay)
	}
	if p.BackoffFactor < 1 {
		return fmt.Errorf("backoff factor must be at least 1, got %v", p.BackoffFactor)
	}
	if p.JitterRatio < 0 || p.JitterRatio >= 1 {
		return fmt.Errorf("jitter ratio must be in [0, 1), got %v", p.JitterRatio)
	}
	if p.MaxDelay < 0 {
		return fmt.Errorf("max delay must not be negative, got %v", p.MaxDelay)
	}
	return nil
}

// IsRetryableStatus reports whether the status code is in the retryable set
func (p Policy) IsRetryableStatus(status int) bool {
	return status > 0 && slices.Contains(p.RetryableStatusCodes, status)
}

// IsRetryable reports whether a failure of the given kind and status should
// be retried. Either a configured status or a configured transient kind is
// enough.
func (p Policy) IsRetryable(kind ErrorKind, status int) bool {
	if p.IsRetryableStatus(status) {
		return true
	}
	return slices.Contains(p.RetryableKinds, kind)
}

// Strategy returns the exponential strategy described by the policy
func (p Policy) Strategy() Exponential {
	return Exponential{
		Base:        p.BaseDelay,
		Factor:      p.BackoffFactor,
		JitterRatio: p.JitterRatio,
		Max:         p.MaxDelay,
	}
}
