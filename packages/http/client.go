package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/abdul-hamid-achik/hitwire/packages/cache"
	"github.com/abdul-hamid-achik/hitwire/packages/latency"
	"github.com/abdul-hamid-achik/hitwire/packages/retry"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 30 * time.Second
	// DefaultMaxRedirects is the maximum number of redirects to follow
	DefaultMaxRedirects = 10
	// DefaultMaxIdleConns is the maximum number of idle connections in the pool
	DefaultMaxIdleConns = 100
	// DefaultMaxIdleConnsPerHost is the maximum number of idle connections per host
	DefaultMaxIdleConnsPerHost = 10
	// DefaultIdleConnTimeout is how long idle connections stay in the pool
	DefaultIdleConnTimeout = 90 * time.Second
	// DefaultCacheTTL is used by WithCache when ttl is zero
	DefaultCacheTTL = time.Minute
)

// Logger is satisfied by *log.Logger
type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

type Client struct {
	httpClient     *http.Client
	transport      http.RoundTripper
	timeout        time.Duration
	followRedirect bool
	maxRedirects   int
	validateSSL    bool
	proxyURL       string
	defaultHeaders map[string]string

	policy   retry.Policy
	executor *retry.Executor
	pipeline *Pipeline
	tracker  *latency.Tracker
	cache    *cache.Cache[*Response]
	cacheTTL time.Duration
	limiter  *rate.Limiter
	logger   Logger
}

type ClientOption func(*Client)

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		timeout:        DefaultTimeout,
		followRedirect: true,
		maxRedirects:   DefaultMaxRedirects,
		validateSSL:    true,
		defaultHeaders: make(map[string]string),
		policy:         retry.NoRetry(),
		pipeline:       NewPipeline(),
		tracker:        latency.NewTracker(),
		logger:         nopLogger{},
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.transport == nil {
		transport := &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        DefaultMaxIdleConns,
			MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
			IdleConnTimeout:     DefaultIdleConnTimeout,
		}

		// Configure TLS verification
		if !c.validateSSL {
			transport.TLSClientConfig = &tls.Config{
				InsecureSkipVerify: true,
			}
		}

		// Configure proxy if specified
		if c.proxyURL != "" {
			proxyURL, err := neturl.Parse(c.proxyURL)
			if err == nil {
				transport.Proxy = http.ProxyURL(proxyURL)
			}
		}
		c.transport = transport
	}

	redirectPolicy := func(req *http.Request, via []*http.Request) error {
		if !c.followRedirect {
			return http.ErrUseLastResponse
		}
		if len(via) >= c.maxRedirects {
			return http.ErrUseLastResponse
		}
		return nil
	}

	c.httpClient = &http.Client{
		Transport:     c.transport,
		CheckRedirect: redirectPolicy,
	}

	if c.executor == nil {
		exec, err := retry.NewExecutor(c.policy, retry.WithLogger(c.logger))
		if err != nil {
			c.logger.Printf("invalid retry policy, retries disabled: %v", err)
			exec, _ = retry.NewExecutor(retry.NoRetry(), retry.WithLogger(c.logger))
		}
		c.executor = exec
	}

	return c
}

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithFollowRedirects(follow bool) ClientOption {
	return func(c *Client) {
		c.followRedirect = follow
	}
}

func WithMaxRedirects(max int) ClientOption {
	return func(c *Client) {
		c.maxRedirects = max
	}
}

func WithDefaultHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.defaultHeaders[key] = value
	}
}

// WithDefaultHeaders sets multiple default headers for all requests
func WithDefaultHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range headers {
			c.defaultHeaders[k] = v
		}
	}
}

// WithValidateSSL enables or disables SSL certificate validation
func WithValidateSSL(validate bool) ClientOption {
	return func(c *Client) {
		c.validateSSL = validate
	}
}

// WithProxy sets the proxy URL for all requests
func WithProxy(proxyURL string) ClientOption {
	return func(c *Client) {
		c.proxyURL = proxyURL
	}
}

// WithTransport replaces the underlying round tripper. Proxy and SSL options
// are ignored when set.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *Client) {
		c.transport = rt
	}
}

// WithRetryPolicy enables retries under policy
func WithRetryPolicy(policy retry.Policy) ClientOption {
	return func(c *Client) {
		c.policy = policy
	}
}

// WithExecutor uses a prebuilt executor; its policy wins over WithRetryPolicy
func WithExecutor(exec *retry.Executor) ClientOption {
	return func(c *Client) {
		c.executor = exec
		c.policy = exec.Policy()
	}
}

// WithTracker shares a latency tracker across clients
func WithTracker(t *latency.Tracker) ClientOption {
	return func(c *Client) {
		c.tracker = t
	}
}

// WithCache serves idempotent reads from rc and stores 2xx responses for ttl
func WithCache(rc *cache.Cache[*Response], ttl time.Duration) ClientOption {
	return func(c *Client) {
		c.cache = rc
		c.cacheTTL = ttl
		if c.cacheTTL == 0 {
			c.cacheTTL = DefaultCacheTTL
		}
	}
}

// WithRateLimit caps outgoing requests, retries included, to rps per second
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the logger used for retry and cache diagnostics
func WithLogger(l Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRequestInterceptor appends a request interceptor
func WithRequestInterceptor(name string, fn RequestInterceptor) ClientOption {
	return func(c *Client) {
		c.pipeline.AddRequestInterceptor(name, fn)
	}
}

// WithResponseInterceptor appends a response interceptor
func WithResponseInterceptor(name string, fn ResponseInterceptor) ClientOption {
	return func(c *Client) {
		c.pipeline.AddResponseInterceptor(name, fn)
	}
}

// Pipeline returns the interceptor pipeline
func (c *Client) Pipeline() *Pipeline {
	return c.pipeline
}

// Tracker returns the latency tracker
func (c *Client) Tracker() *latency.Tracker {
	return c.tracker
}

// Cache returns the response cache, or nil
func (c *Client) Cache() *cache.Cache[*Response] {
	return c.cache
}

// Do sends req through the interceptor pipeline and transport, retrying
// under the client's policy. Responses whose status is retryable count as
// failed attempts; when attempts run out and the final attempt produced a
// response, it is returned together with the *retry.ExhaustedError.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ValidateURL(req.URL); err != nil {
		return nil, err
	}

	useCache := c.cache != nil && !req.NoCache && req.IsIdempotentRead()
	key := CacheKey(req)
	if useCache {
		if hit, ok := c.cache.Get(key); ok {
			resp := hit.Clone()
			resp.Cached = true
			resp.Attempts = 0
			return resp, nil
		}
	}

	var last *Response
	resp, err := retry.Do(ctx, c.executor, func(ctx context.Context, attempt int) (*Response, error) {
		resp, err := c.attempt(ctx, req)
		if err != nil {
			last = nil
			return nil, err
		}
		resp.Attempts = attempt

		if c.policy.IsRetryableStatus(resp.StatusCode) {
			last = resp
			return nil, &retry.StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
		}
		return resp, nil
	})
	if err != nil {
		if last != nil {
			return last, err
		}
		return nil, err
	}

	if useCache && resp.IsSuccess() {
		c.cache.Store(key, resp.Clone(), c.cacheTTL)
	}
	return resp, nil
}

// attempt performs a single interceptor-wrapped transport call
func (c *Client) attempt(ctx context.Context, req *Request) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	out, err := c.pipeline.ProcessRequest(ctx, req.Clone())
	if err != nil {
		return nil, err
	}

	timeout := c.timeout
	if out.Timeout > 0 {
		timeout = out.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, duration, err := c.doRequest(ctx, out)
	if err != nil {
		c.tracker.Record(duration, 0)
		return nil, err
	}
	c.tracker.Record(duration, resp.StatusCode)

	return c.pipeline.ProcessResponse(ctx, resp)
}

func (c *Client) doRequest(ctx context.Context, req *Request) (*Response, time.Duration, error) {
	var body io.Reader
	if req.Body != "" {
		body = bytes.NewBufferString(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.BuildURL(), body)
	if err != nil {
		return nil, 0, err
	}

	for k, v := range c.defaultHeaders {
		httpReq.Header.Set(k, v)
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, time.Since(start), err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	duration := time.Since(start)
	if err != nil {
		return nil, duration, err
	}

	headers := make(map[string]string)
	for k := range httpResp.Header {
		headers[k] = httpResp.Header.Get(k)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Headers:    headers,
		Body:       respBody,
		Duration:   duration,
	}, duration, nil
}

func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	return c.Do(ctx, &Request{
		Method:  "GET",
		URL:     url,
		Headers: headers,
	})
}

func (c *Client) Post(ctx context.Context, url, body string, headers map[string]string) (*Response, error) {
	return c.Do(ctx, &Request{
		Method:  "POST",
		URL:     url,
		Body:    body,
		Headers: headers,
	})
}

func (c *Client) Put(ctx context.Context, url, body string, headers map[string]string) (*Response, error) {
	return c.Do(ctx, &Request{
		Method:  "PUT",
		URL:     url,
		Body:    body,
		Headers: headers,
	})
}

func (c *Client) Patch(ctx context.Context, url, body string, headers map[string]string) (*Response, error) {
	return c.Do(ctx, &Request{
		Method:  "PATCH",
		URL:     url,
		Body:    body,
		Headers: headers,
	})
}

func (c *Client) Delete(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	return c.Do(ctx, &Request{
		Method:  "DELETE",
		URL:     url,
		Headers: headers,
	})
}

// ValidateURL checks that a URL is well-formed and uses an allowed scheme
func ValidateURL(rawURL string) error {
	u, err := neturl.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}

	// Check for valid scheme
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %s (only http and https are allowed)", u.Scheme)
	}

	// Check for valid host
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}

	return nil
}
