package retry

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed attempt
type ErrorKind string

const (
	KindReset    ErrorKind = "reset"
	KindDNS      ErrorKind = "dns"
	KindTimeout  ErrorKind = "timeout"
	KindRefused  ErrorKind = "refused"
	KindProtocol ErrorKind = "protocol"
	KindUnknown  ErrorKind = "unknown"
)

// Sentinel errors, matched with errors.Is against AttemptError,
// StatusError and ExhaustedError values.
var (
	// ErrTransient matches network failures that may succeed on a later attempt
	ErrTransient = errors.New("retry: transient network error")

	// ErrTimeout matches attempts that ran out of time
	ErrTimeout = errors.New("retry: timeout")

	// ErrPermanent matches protocol failures that are never retried by default
	ErrPermanent = errors.New("retry: permanent protocol error")

	// ErrExhausted matches an ExhaustedError
	ErrExhausted = errors.New("retry: attempts exhausted")
)

// AttemptError is a classified failure of a single attempt
type AttemptError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

// NewAttemptError wraps err with an explicit kind and optional status
func NewAttemptError(kind ErrorKind, status int, err error) *AttemptError {
	return &AttemptError{Kind: kind, StatusCode: status, Err: err}
}

func (e *AttemptError) Error() string {
	msg := string(e.Kind)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

// Is maps the kind onto the sentinel taxonomy
func (e *AttemptError) Is(target error) bool {
	return kindMatches(e.Kind, target)
}

// StatusError is an HTTP response whose status code marks it as a failure
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("unexpected status: %s", e.Status)
	}
	return fmt.Sprintf("unexpected status: %d", e.StatusCode)
}

// Is reports ErrPermanent for 4xx statuses other than 408 and 429
func (e *StatusError) Is(target error) bool {
	if target != ErrPermanent {
		return false
	}
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != 408 && e.StatusCode != 429
}

// ExhaustedError is returned once every attempt allowed by the policy failed
// with a retryable error.
type ExhaustedError struct {
	Attempts   int
	LastKind   ErrorKind
	LastStatus int
	LastCause  error
}

func (e *ExhaustedError) Error() string {
	msg := fmt.Sprintf("retry exhausted after %d attempts", e.Attempts)
	if e.LastStatus > 0 {
		msg = fmt.Sprintf("%s (last status %d)", msg, e.LastStatus)
	}
	if e.LastCause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.LastCause)
	}
	return msg
}

func (e *ExhaustedError) Unwrap() error {
	return e.LastCause
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

func kindMatches(kind ErrorKind, target error) bool {
	switch target {
	case ErrTransient:
		return kind == KindReset || kind == KindDNS || kind == KindRefused
	case ErrTimeout:
		return kind == KindTimeout
	case ErrPermanent:
		return kind == KindProtocol
	}
	return false
}
