package probe

import (
	"context"

	"golang.org/x/time/rate"
)

// Scheduler paces request starts and bounds concurrency
type Scheduler struct {
	limiter *rate.Limiter
	sem     chan struct{} // semaphore for max concurrency
}

// NewScheduler creates a new scheduler with the given config
func NewScheduler(config Config) *Scheduler {
	s := &Scheduler{}

	if config.Rate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(config.Rate), 1)
	}

	concurrency := config.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	s.sem = make(chan struct{}, concurrency)

	return s
}

// Wait waits for the rate limiter, or returns immediately when unpaced
func (s *Scheduler) Wait(ctx context.Context) error {
	if s.limiter != nil {
		return s.limiter.Wait(ctx)
	}
	return ctx.Err()
}

// Acquire acquires a slot from the concurrency semaphore
func (s *Scheduler) Acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release releases a slot back to the semaphore
func (s *Scheduler) Release() {
	<-s.sem
}

// InFlight returns the number of held slots
func (s *Scheduler) InFlight() int {
	return len(s.sem)
}
