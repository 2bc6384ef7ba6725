package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"syscall"
)

// Classify maps an error returned by an attempt to an ErrorKind and, when
// known, the HTTP status code that caused it.
func Classify(err error) (ErrorKind, int) {
	if err == nil {
		return "", 0
	}

	var attemptErr *AttemptError
	if errors.As(err, &attemptErr) {
		return attemptErr.Kind, attemptErr.StatusCode
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		// Statuses are never transport kinds; RetryableStatusCodes alone
		// decides whether they are retried.
		if statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 {
			return KindProtocol, statusErr.StatusCode
		}
		return KindUnknown, statusErr.StatusCode
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return KindTimeout, 0
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return KindTimeout, 0
		}
		return KindDNS, 0
	}

	switch {
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ECONNABORTED), errors.Is(err, io.ErrUnexpectedEOF):
		return KindReset, 0
	case errors.Is(err, syscall.ECONNREFUSED):
		return KindRefused, 0
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout, 0
	}

	return KindUnknown, 0
}
