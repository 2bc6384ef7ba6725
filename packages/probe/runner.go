package probe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/hitwire/packages/http"
	"github.com/abdul-hamid-achik/hitwire/packages/latency"
	"github.com/abdul-hamid-achik/hitwire/packages/retry"
)

// Doer sends a single logical request. *http.Client satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Logger is satisfied by *log.Logger
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Result is the outcome of a probe run
type Result struct {
	Requests     int
	Attempts     int
	Errors       map[retry.ErrorKind]int
	Cached       int
	Duration     time.Duration
	RPS          float64
	Stats        latency.Stats
	Distribution []latency.Bar
	Thresholds   []ThresholdResult
	Samples      []latency.Sample
}

// Passed reports whether every evaluated threshold passed
func (r *Result) Passed() bool {
	for _, tr := range r.Thresholds {
		if !tr.Passed {
			return false
		}
	}
	return true
}

// Runner executes probes
type Runner struct {
	config    Config
	client    Doer
	logger    Logger
	onRequest func(resp *http.Response, err error)
	now       func() time.Time
}

// RunnerOption configures the runner
type RunnerOption func(*Runner)

// WithLogger sets the logger for per-request diagnostics
func WithLogger(l Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithOnRequest registers a callback invoked after every request completes.
// It may be called from several goroutines at once.
func WithOnRequest(fn func(resp *http.Response, err error)) RunnerOption {
	return func(r *Runner) {
		r.onRequest = fn
	}
}

// NewRunner creates a new probe runner
func NewRunner(config Config, client Doer, opts ...RunnerOption) (*Runner, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}

	r := &Runner{
		config: config,
		client: client,
		logger: nopLogger{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run sends req repeatedly until Requests have been issued or Duration has
// elapsed, whichever comes first. In-flight requests always complete; a
// cancelled ctx stops scheduling and aborts them.
func (r *Runner) Run(ctx context.Context, req *http.Request) (*Result, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	if err := http.ValidateURL(req.URL); err != nil {
		return nil, err
	}

	scheduler := NewScheduler(r.config)
	tracker := latency.NewTracker()

	runCtx := ctx
	if r.config.Duration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.config.Duration)
		defer cancel()
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		result   = &Result{Errors: make(map[retry.ErrorKind]int)}
		start    = r.now()
		limit    = r.config.Requests
	)

	record := func(resp *http.Response, err error, elapsed time.Duration) {
		status := 0
		attempts := 0
		if resp != nil {
			status = resp.StatusCode
			attempts = resp.Attempts
		}

		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			attempts = exhausted.Attempts
		} else if err != nil && attempts == 0 {
			attempts = 1
		}

		tracker.Record(elapsed, status)

		mu.Lock()
		defer mu.Unlock()
		result.Requests++
		result.Attempts += attempts
		if resp != nil && resp.Cached {
			result.Cached++
		}
		if err != nil {
			kind, _ := retry.Classify(err)
			if exhausted != nil {
				kind = exhausted.LastKind
			}
			result.Errors[kind]++
		}
	}

	for issued := 0; limit == 0 || issued < limit; issued++ {
		if err := scheduler.Wait(runCtx); err != nil {
			break
		}
		if err := scheduler.Acquire(runCtx); err != nil {
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer scheduler.Release()

			begin := r.now()
			resp, err := r.client.Do(ctx, req)
			elapsed := r.now().Sub(begin)
			if err != nil {
				r.logger.Printf("probe: %s %s: %v", req.Method, req.URL, err)
			}
			record(resp, err, elapsed)
			if r.onRequest != nil {
				r.onRequest(resp, err)
			}
		}()
	}
	wg.Wait()

	result.Duration = r.now().Sub(start)
	if secs := result.Duration.Seconds(); secs > 0 {
		result.RPS = float64(result.Requests) / secs
	}
	result.Stats = tracker.Stats()
	result.Distribution = tracker.Distribution()
	result.Samples = tracker.Samples()
	if r.config.Thresholds.HasThresholds() {
		result.Thresholds = r.config.Thresholds.Evaluate(result.Stats, result.RPS)
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}
