// Package interceptor provides an ordered, fail-fast chain of transforms
// applied to outgoing requests and incoming responses.
package interceptor

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNilResult is returned when a step produces a nil value without an error
var ErrNilResult = errors.New("interceptor returned nil")

// Func transforms a value. It may block; ctx is passed through unchanged.
type Func[T any] func(ctx context.Context, v T) (T, error)

type step[T any] struct {
	name string
	fn   Func[T]
}

// Chain applies its steps in registration order
type Chain[T any] struct {
	name  string
	mu    sync.RWMutex
	steps []step[T]
}

// NewChain creates an empty chain. name appears in step errors.
func NewChain[T any](name string) *Chain[T] {
	return &Chain[T]{name: name}
}

// Use appends a step. An empty name is replaced by its position.
func (c *Chain[T]) Use(name string, fn Func[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if name == "" {
		name = fmt.Sprintf("#%d", len(c.steps))
	}
	c.steps = append(c.steps, step[T]{name: name, fn: fn})
}

// Len returns the number of registered steps
func (c *Chain[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.steps)
}

// Names returns step names in execution order
func (c *Chain[T]) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, len(c.steps))
	for i, s := range c.steps {
		names[i] = s.name
	}
	return names
}

// Process folds v through every step. The first failing step stops the
// chain and is reported as a *StepError.
func (c *Chain[T]) Process(ctx context.Context, v T) (T, error) {
	c.mu.RLock()
	steps := make([]step[T], len(c.steps))
	copy(steps, c.steps)
	c.mu.RUnlock()

	for i, s := range steps {
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, &StepError{Chain: c.name, Index: i, Name: s.name, Err: err}
		}

		next, err := s.fn(ctx, v)
		if err != nil {
			var zero T
			return zero, &StepError{Chain: c.name, Index: i, Name: s.name, Err: err}
		}
		v = next
	}
	return v, nil
}

// StepError identifies the step that aborted a chain
type StepError struct {
	Chain string
	Index int
	Name  string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s interceptor %d (%s) failed: %v", e.Chain, e.Index, e.Name, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
