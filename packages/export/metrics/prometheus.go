package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// PrometheusExporter exports a Collector in Prometheus text format, to a
// writer and optionally over HTTP
type PrometheusExporter struct {
	mu        sync.Mutex
	registry  *prometheus.Registry
	collector *Collector
	writer    io.Writer
	addr      string
	server    *http.Server
	listener  net.Listener
	runtime   bool
}

// PrometheusOption is a functional option for PrometheusExporter
type PrometheusOption func(*PrometheusExporter)

// WithPrometheusWriter sets the output writer for Export
func WithPrometheusWriter(w io.Writer) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.writer = w
	}
}

// WithPrometheusHTTP serves /metrics on addr once Start is called
func WithPrometheusHTTP(addr string) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.addr = addr
	}
}

// WithRuntimeMetrics adds the Go runtime and process collectors
func WithRuntimeMetrics() PrometheusOption {
	return func(p *PrometheusExporter) {
		p.runtime = true
	}
}

// NewPrometheusExporter registers collector on a private registry
func NewPrometheusExporter(collector *Collector, opts ...PrometheusOption) (*PrometheusExporter, error) {
	p := &PrometheusExporter{
		registry:  prometheus.NewRegistry(),
		collector: collector,
	}

	for _, opt := range opts {
		opt(p)
	}

	if err := p.registry.Register(collector); err != nil {
		return nil, fmt.Errorf("register collector: %w", err)
	}
	if p.runtime {
		p.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	return p, nil
}

// Registry returns the registry backing the exporter
func (p *PrometheusExporter) Registry() *prometheus.Registry {
	return p.registry
}

// Handler returns the /metrics handler
func (p *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Export gathers every metric and writes it to the configured writer
func (p *PrometheusExporter) Export() error {
	if p.writer == nil {
		return errors.New("no writer configured")
	}
	return p.WriteTo(p.writer)
}

// WriteTo writes the text exposition format to w
func (p *PrometheusExporter) WriteTo(w io.Writer) error {
	families, err := p.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

// Start begins serving /metrics when an HTTP address was configured and
// returns the bound address
func (p *PrometheusExporter) Start() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.addr == "" {
		return "", errors.New("no http address configured")
	}
	if p.server != nil {
		return p.listener.Addr().String(), nil
	}

	ln, err := net.Listen("tcp", p.addr)
	if err != nil {
		return "", fmt.Errorf("listen on %s: %w", p.addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())
	p.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	p.listener = ln

	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			fmt.Printf("Prometheus HTTP server error: %v\n", err)
		}
	}(p.server)

	return ln.Addr().String(), nil
}

// Close shuts down the exporter
func (p *PrometheusExporter) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := p.server.Shutdown(ctx)
	p.server = nil
	return err
}
