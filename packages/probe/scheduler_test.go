package probe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_Concurrency(t *testing.T) {
	s := NewScheduler(Config{Concurrency: 2})
	ctx := context.Background()

	require.NoError(t, s.Acquire(ctx))
	require.NoError(t, s.Acquire(ctx))
	assert.Equal(t, 2, s.InFlight())

	timeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.Error(t, s.Acquire(timeout))

	s.Release()
	assert.NoError(t, s.Acquire(ctx))
}

func TestScheduler_Rate(t *testing.T) {
	s := NewScheduler(Config{Concurrency: 1, Rate: 20})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Wait(ctx))
	}
	// burst of one, then 50ms apart
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestScheduler_Unpaced(t *testing.T) {
	s := NewScheduler(Config{Concurrency: 1})
	assert.NoError(t, s.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, s.Wait(ctx))
}
