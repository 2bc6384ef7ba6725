package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/hitwire/packages/cache"
	"github.com/abdul-hamid-achik/hitwire/packages/interceptor"
	"github.com/abdul-hamid-achik/hitwire/packages/retry"
)

func fastPolicy(attempts int) retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = attempts
	p.BaseDelay = time.Millisecond
	p.JitterRatio = 0
	return p
}

func TestClient_RetriesRetryableStatus(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewClient(WithRetryPolicy(fastPolicy(3)))
	resp, err := client.Get(context.Background(), server.URL, nil)

	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 3, resp.Attempts)
	assert.Equal(t, int32(3), hits.Load())

	stats := client.Tracker().Stats()
	assert.Equal(t, 3, stats.Count)
	assert.Equal(t, 1, stats.SuccessCount)
	assert.Equal(t, 2, stats.CountsByStatus[503])
}

func TestClient_ExhaustedReturnsLastResponse(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(WithRetryPolicy(fastPolicy(2)))
	resp, err := client.Get(context.Background(), server.URL, nil)

	var exhausted *retry.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2, exhausted.Attempts)
	assert.Equal(t, 502, exhausted.LastStatus)
	require.NotNil(t, resp)
	assert.Equal(t, 502, resp.StatusCode)
	assert.Equal(t, int32(2), hits.Load())
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func TestClient_ExhaustedByTransportErrorReturnsNoResponse(t *testing.T) {
	var hits atomic.Int32
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if hits.Add(1) == 1 {
			return &http.Response{
				StatusCode: http.StatusServiceUnavailable,
				Status:     "503 Service Unavailable",
				Header:     http.Header{},
				Body:       io.NopCloser(strings.NewReader("")),
				Request:    r,
			}, nil
		}
		return nil, fmt.Errorf("read: %w", syscall.ECONNRESET)
	})

	client := NewClient(WithTransport(rt), WithRetryPolicy(fastPolicy(2)))
	resp, err := client.Get(context.Background(), "http://upstream.test", nil)

	var exhausted *retry.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, retry.KindReset, exhausted.LastKind)
	assert.Nil(t, resp, "a stale response must not accompany a transport failure")
	assert.Equal(t, int32(2), hits.Load())
}

func TestClient_NonRetryableStatusIsReturned(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(WithRetryPolicy(fastPolicy(5)))
	resp, err := client.Get(context.Background(), server.URL, nil)

	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_RefusedConnectionNotRetried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(WithRetryPolicy(fastPolicy(3)))
	_, err := client.Get(context.Background(), url, nil)

	// connection refused is not in the default retryable kinds
	require.Error(t, err)
	assert.NotErrorIs(t, err, retry.ErrExhausted)
	assert.Equal(t, 1, client.Tracker().Stats().FailureCount)
}

func TestClient_Interceptors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "first,second", r.Header.Get("X-Order"))
		_, _ = w.Write([]byte("body"))
	}))
	defer server.Close()

	client := NewClient(
		WithRequestInterceptor("first", func(ctx context.Context, req *Request) (*Request, error) {
			return req.SetHeader("X-Order", "first"), nil
		}),
		WithRequestInterceptor("second", func(ctx context.Context, req *Request) (*Request, error) {
			return req.SetHeader("X-Order", req.Headers["X-Order"]+",second"), nil
		}),
		WithResponseInterceptor("upper", func(ctx context.Context, resp *Response) (*Response, error) {
			resp.Body = []byte("BODY")
			return resp, nil
		}),
	)

	resp, err := client.Get(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "BODY", resp.BodyString())
	assert.Equal(t, []string{"first", "second"}, client.Pipeline().RequestInterceptors())
}

func TestClient_InterceptorFailureAbortsRequest(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	denied := errors.New("denied")
	client := NewClient(
		WithRetryPolicy(fastPolicy(3)),
		WithRequestInterceptor("auth", func(ctx context.Context, req *Request) (*Request, error) {
			return nil, denied
		}),
	)

	_, err := client.Get(context.Background(), server.URL, nil)

	var stepErr *interceptor.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "auth", stepErr.Name)
	assert.ErrorIs(t, err, denied)
	assert.Equal(t, int32(0), hits.Load())
}

func TestClient_NilInterceptorResult(t *testing.T) {
	client := NewClient(WithResponseInterceptor("broken", func(ctx context.Context, resp *Response) (*Response, error) {
		return nil, nil
	}))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	_, err := client.Get(context.Background(), server.URL, nil)
	assert.ErrorIs(t, err, interceptor.ErrNilResult)
}

func TestClient_InterceptorDoesNotMutateCallerRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	client := NewClient(WithRequestInterceptor("tag", HeaderInterceptor("X-Tag", "1")))
	req := NewRequest("GET", server.URL)

	_, err := client.Do(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, req.Headers)
}

func TestClient_CachesIdempotentReads(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("cached"))
	}))
	defer server.Close()

	rc, err := cache.New[*Response](4)
	require.NoError(t, err)
	client := NewClient(WithCache(rc, time.Minute))

	first, err := client.Get(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := client.Get(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, "cached", second.BodyString())
	assert.Equal(t, int32(1), hits.Load())

	// cached copies are independent
	second.Body[0] = 'X'
	third, _ := client.Get(context.Background(), server.URL, nil)
	assert.Equal(t, "cached", third.BodyString())

	_, err = client.Post(context.Background(), server.URL, "{}", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestClient_RateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	client := NewClient(WithRateLimit(20, 1))
	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.Get(context.Background(), server.URL, nil)
		require.NoError(t, err)
	}
	// burst of one: the 2nd and 3rd requests wait ~50ms each
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestCacheKey(t *testing.T) {
	req := NewRequest("get", "http://example.com/a").SetQueryParam("q", "1")
	assert.Equal(t, "GET http://example.com/a?q=1", CacheKey(req))
}
