package ws

import (
	"errors"
	"fmt"

	"github.com/abdul-hamid-achik/hitwire/packages/retry"
)

var (
	// ErrNotConnected is returned by Send when the session is not open
	ErrNotConnected = errors.New("ws: not connected")

	// ErrInvalidState is returned by Connect outside Closed or Errored
	ErrInvalidState = errors.New("ws: invalid state for operation")

	// ErrConnectAborted is returned when Disconnect or Destroy interrupts a dial
	ErrConnectAborted = errors.New("ws: connect aborted")

	// ErrSessionDestroyed is returned once Destroy has been called
	ErrSessionDestroyed = errors.New("ws: session destroyed")

	// ErrWaitTimeout is returned by WaitForMessage when no message matched in time
	ErrWaitTimeout = errors.New("ws: timed out waiting for message")

	// ErrReconnectExhausted matches a ReconnectExhaustedError
	ErrReconnectExhausted = errors.New("ws: reconnect budget exhausted")
)

// ConnectError is returned when the dial or handshake fails
type ConnectError struct {
	URL     string
	Timeout bool
	Err     error
}

func (e *ConnectError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("connect to %s timed out: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("connect to %s failed: %v", e.URL, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Is matches retry.ErrTimeout for timed out dials
func (e *ConnectError) Is(target error) bool {
	return e.Timeout && target == retry.ErrTimeout
}

// ReconnectExhaustedError is the terminal failure of a session that spent its
// reconnect budget
type ReconnectExhaustedError struct {
	Attempts   int
	LastCode   int
	LastReason string
}

func (e *ReconnectExhaustedError) Error() string {
	msg := fmt.Sprintf("reconnect failed after %d attempts (last close code %d", e.Attempts, e.LastCode)
	if e.LastReason != "" {
		msg += ": " + e.LastReason
	}
	return msg + ")"
}

func (e *ReconnectExhaustedError) Is(target error) bool {
	return target == ErrReconnectExhausted
}
