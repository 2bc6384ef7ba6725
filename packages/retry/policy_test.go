package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Policy)
		wantErr string
	}{
		{"default is valid", func(p *Policy) {}, ""},
		{"zero attempts", func(p *Policy) { p.MaxAttempts = 0 }, "max attempts"},
		{"negative delay", func(p *Policy) { p.BaseDelay = -time.Second }, "base delay"},
		{"factor below one", func(p *Policy) { p.BackoffFactor = 0.5 }, "backoff factor"},
		{"jitter of one", func(p *Policy) { p.JitterRatio = 1 }, "jitter ratio"},
		{"negative max delay", func(p *Policy) { p.MaxDelay = -1 }, "max delay"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPolicy()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestPolicy_IsRetryable(t *testing.T) {
	p := DefaultPolicy()

	assert.True(t, p.IsRetryable(KindUnknown, 503))
	assert.True(t, p.IsRetryable(KindReset, 0))
	assert.True(t, p.IsRetryable(KindTimeout, 0))
	assert.False(t, p.IsRetryable(KindProtocol, 404))
	assert.False(t, p.IsRetryable(KindRefused, 0))
	assert.False(t, p.IsRetryable(KindUnknown, 0))
}

func TestExponential_Delay(t *testing.T) {
	e := Exponential{Base: 100 * time.Millisecond, Factor: 2}

	assert.Equal(t, 100*time.Millisecond, e.Delay(1))
	assert.Equal(t, 200*time.Millisecond, e.Delay(2))
	assert.Equal(t, 400*time.Millisecond, e.Delay(3))

	e.Max = 250 * time.Millisecond
	assert.Equal(t, 250*time.Millisecond, e.Delay(3))

	e = Exponential{Base: 100 * time.Millisecond, Factor: 2, JitterRatio: 0.5, Rand: func() float64 { return 0.5 }}
	assert.Equal(t, 250*time.Millisecond, e.Delay(2))
}

func TestExponential_HugeAttemptDoesNotOverflow(t *testing.T) {
	e := Exponential{Base: time.Second, Factor: 10}
	assert.Greater(t, e.Delay(500), time.Duration(0))
}

func TestFixed_Delay(t *testing.T) {
	f := Fixed{Interval: 3 * time.Second}
	for attempt := 1; attempt < 5; attempt++ {
		assert.Equal(t, 3*time.Second, f.Delay(attempt))
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantKind   ErrorKind
		wantStatus int
	}{
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), KindReset, 0},
		{"broken pipe", syscall.EPIPE, KindReset, 0},
		{"refused", syscall.ECONNREFUSED, KindRefused, 0},
		{"dns", &net.DNSError{Err: "no such host", Name: "x.invalid"}, KindDNS, 0},
		{"dns timeout", &net.DNSError{Err: "timeout", IsTimeout: true}, KindTimeout, 0},
		{"deadline", context.DeadlineExceeded, KindTimeout, 0},
		{"status 503", &StatusError{StatusCode: 503}, KindUnknown, 503},
		{"status 504", &StatusError{StatusCode: 504}, KindUnknown, 504},
		{"status 408", &StatusError{StatusCode: 408}, KindProtocol, 408},
		{"status 404", &StatusError{StatusCode: 404}, KindProtocol, 404},
		{"attempt error", NewAttemptError(KindDNS, 0, errors.New("x")), KindDNS, 0},
		{"other", errors.New("boom"), KindUnknown, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, status := Classify(tt.err)
			assert.Equal(t, tt.wantKind, kind)
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}

func TestAttemptError_Is(t *testing.T) {
	assert.ErrorIs(t, NewAttemptError(KindReset, 0, nil), ErrTransient)
	assert.ErrorIs(t, NewAttemptError(KindTimeout, 0, nil), ErrTimeout)
	assert.ErrorIs(t, NewAttemptError(KindProtocol, 400, nil), ErrPermanent)
	assert.NotErrorIs(t, NewAttemptError(KindProtocol, 400, nil), ErrTransient)
}
