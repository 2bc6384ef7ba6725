package retry

import (
	"context"
	"fmt"
	"time"
)

// Logger is the logging interface used by the executor. *log.Logger
// satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// RetryEvent describes a failed attempt that is about to be retried
type RetryEvent struct {
	Attempt    int
	Kind       ErrorKind
	StatusCode int
	Err        error
	Delay      time.Duration
}

// SleepFunc suspends the caller for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Executor runs operations under a Policy
type Executor struct {
	policy   Policy
	strategy Strategy
	sleep    SleepFunc
	rand     func() float64
	logger   Logger
	onRetry  func(RetryEvent)
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithSleep replaces the delay function, mainly for tests
func WithSleep(fn SleepFunc) ExecutorOption {
	return func(e *Executor) {
		e.sleep = fn
	}
}

// WithRand sets the jitter source; fn must return values in [0, 1)
func WithRand(fn func() float64) ExecutorOption {
	return func(e *Executor) {
		e.rand = fn
	}
}

// WithLogger sets the logger used to report retries
func WithLogger(l Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithOnRetry registers a hook called before every delay
func WithOnRetry(fn func(RetryEvent)) ExecutorOption {
	return func(e *Executor) {
		e.onRetry = fn
	}
}

// WithStrategy overrides the delay strategy derived from the policy
func WithStrategy(s Strategy) ExecutorOption {
	return func(e *Executor) {
		e.strategy = s
	}
}

// NewExecutor creates an executor. An invalid policy is rejected.
func NewExecutor(policy Policy, opts ...ExecutorOption) (*Executor, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry policy: %w", err)
	}

	e := &Executor{
		policy: policy,
		sleep:  sleepContext,
		logger: nopLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.strategy == nil {
		s := policy.Strategy()
		s.Rand = e.rand
		e.strategy = s
	}
	return e, nil
}

// Policy returns the policy the executor was built with
func (e *Executor) Policy() Policy {
	return e.policy
}

// Execute runs op until it succeeds or the policy gives up
func (e *Executor) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Do(ctx, e, func(ctx context.Context, _ int) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. Non-retryable errors are returned unchanged;
// running out of attempts yields an *ExhaustedError.
func Do[T any](ctx context.Context, e *Executor, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T

	for attempt := 1; ; attempt++ {
		result, err := op(ctx, attempt)
		if err == nil {
			return result, nil
		}

		kind, status := Classify(err)
		if !e.policy.IsRetryable(kind, status) {
			return zero, err
		}

		if attempt >= e.policy.MaxAttempts {
			return zero, &ExhaustedError{
				Attempts:   attempt,
				LastKind:   kind,
				LastStatus: status,
				LastCause:  err,
			}
		}

		delay := e.strategy.Delay(attempt)
		e.logger.Printf("attempt %d/%d failed (%s): %v; retrying in %v",
			attempt, e.policy.MaxAttempts, kind, err, delay)
		if e.onRetry != nil {
			e.onRetry(RetryEvent{
				Attempt:    attempt,
				Kind:       kind,
				StatusCode: status,
				Err:        err,
				Delay:      delay,
			})
		}

		if serr := e.sleep(ctx, delay); serr != nil {
			return zero, fmt.Errorf("retry aborted after %d attempts: %w (last error: %w)", attempt, serr, err)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
