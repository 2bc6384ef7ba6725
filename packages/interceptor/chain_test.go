package interceptor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChain_EmptyReturnsInput(t *testing.T) {
	c := NewChain[string]("request")
	out, err := c.Process(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "x", out)
}

func TestChain_PreservesOrder(t *testing.T) {
	c := NewChain[string]("request")
	c.Use("a", func(ctx context.Context, v string) (string, error) { return v + "a", nil })
	c.Use("b", func(ctx context.Context, v string) (string, error) { return v + "b", nil })
	c.Use("c", func(ctx context.Context, v string) (string, error) { return v + "c", nil })

	out, err := c.Process(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "abc", out)
	assert.Equal(t, []string{"a", "b", "c"}, c.Names())
	assert.Equal(t, 3, c.Len())
}

func TestChain_FailFast(t *testing.T) {
	boom := errors.New("boom")
	ran := []string{}

	c := NewChain[int]("response")
	c.Use("double", func(ctx context.Context, v int) (int, error) {
		ran = append(ran, "double")
		return v * 2, nil
	})
	c.Use("explode", func(ctx context.Context, v int) (int, error) {
		ran = append(ran, "explode")
		return 0, boom
	})
	c.Use("never", func(ctx context.Context, v int) (int, error) {
		ran = append(ran, "never")
		return v, nil
	})

	_, err := c.Process(context.Background(), 1)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, 1, stepErr.Index)
	assert.Equal(t, "explode", stepErr.Name)
	assert.Equal(t, "response", stepErr.Chain)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"double", "explode"}, ran)
	assert.Equal(t, "response interceptor 1 (explode) failed: boom", err.Error())
}

func TestChain_UnnamedStep(t *testing.T) {
	c := NewChain[int]("request")
	c.Use("", func(ctx context.Context, v int) (int, error) { return v, nil })
	assert.Equal(t, []string{"#0"}, c.Names())
}

func TestChain_CancelledContext(t *testing.T) {
	c := NewChain[int]("request")
	c.Use("noop", func(ctx context.Context, v int) (int, error) { return v, nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Process(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
