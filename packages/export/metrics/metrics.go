// Package metrics exposes hitwire latency, cache and session statistics as
// Prometheus metrics and JSON snapshots.
package metrics

import (
	"sort"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/abdul-hamid-achik/hitwire/packages/cache"
	"github.com/abdul-hamid-achik/hitwire/packages/latency"
	"github.com/abdul-hamid-achik/hitwire/packages/ws"
)

const namespace = "hitwire"

// StatsSource provides latency statistics, usually a *latency.Tracker
type StatsSource interface {
	Stats() latency.Stats
}

// CacheSource provides cache statistics, usually a *cache.Cache
type CacheSource interface {
	Stats() cache.Stats
	Len() int
	Capacity() int
}

// SessionSource provides session bookkeeping, usually a *ws.Session
type SessionSource interface {
	Info() ws.Info
}

// Collector is a prometheus.Collector that reads its sources on every
// scrape. It is safe for concurrent use.
type Collector struct {
	mu       sync.RWMutex
	trackers map[string]StatsSource
	caches   map[string]CacheSource
	sessions map[string]SessionSource

	requestsTotal   *prometheus.Desc
	requestsFailed  *prometheus.Desc
	requestDuration *prometheus.Desc

	cacheHits        *prometheus.Desc
	cacheMisses      *prometheus.Desc
	cacheEvictions   *prometheus.Desc
	cacheExpirations *prometheus.Desc
	cacheSize        *prometheus.Desc
	cacheCapacity    *prometheus.Desc

	sessionState      *prometheus.Desc
	sessionMessages   *prometheus.Desc
	sessionBytes      *prometheus.Desc
	sessionPings      *prometheus.Desc
	sessionReconnects *prometheus.Desc
}

// NewCollector creates an empty collector
func NewCollector() *Collector {
	return &Collector{
		trackers: make(map[string]StatsSource),
		caches:   make(map[string]CacheSource),
		sessions: make(map[string]SessionSource),

		requestsTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "requests_total"),
			"Total number of requests by status code (0 means no response)",
			[]string{"target", "status_code"}, nil,
		),
		requestsFailed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "requests_failed_total"),
			"Total number of requests without a successful status",
			[]string{"target"}, nil,
		),
		requestDuration: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "request_duration_seconds"),
			"Request duration in seconds",
			[]string{"target"}, nil,
		),

		cacheHits: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "hits_total"),
			"Total number of cache hits",
			[]string{"cache"}, nil,
		),
		cacheMisses: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "misses_total"),
			"Total number of cache misses",
			[]string{"cache"}, nil,
		),
		cacheEvictions: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "evictions_total"),
			"Total number of entries evicted at capacity",
			[]string{"cache"}, nil,
		),
		cacheExpirations: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "expirations_total"),
			"Total number of entries dropped after their TTL",
			[]string{"cache"}, nil,
		),
		cacheSize: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "size"),
			"Current number of entries in cache",
			[]string{"cache"}, nil,
		),
		cacheCapacity: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "capacity"),
			"Maximum number of entries in cache",
			[]string{"cache"}, nil,
		),

		sessionState: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "session", "state"),
			"Session state (1 for the current state)",
			[]string{"session", "state"}, nil,
		),
		sessionMessages: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "session", "messages_total"),
			"Messages by direction",
			[]string{"session", "direction"}, nil,
		),
		sessionBytes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "session", "bytes_total"),
			"Payload bytes by direction",
			[]string{"session", "direction"}, nil,
		),
		sessionPings: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "session", "keepalive_pings_total"),
			"Keepalive pings sent",
			[]string{"session"}, nil,
		),
		sessionReconnects: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "session", "reconnect_attempts_total"),
			"Reconnect attempts made",
			[]string{"session"}, nil,
		),
	}
}

// AddTracker registers a latency source under target, replacing any
// previous source with that name
func (c *Collector) AddTracker(target string, src StatsSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trackers[target] = src
}

// AddCache registers a cache source under name
func (c *Collector) AddCache(name string, src CacheSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.caches[name] = src
}

// AddSession registers a session source under name
func (c *Collector) AddSession(name string, src SessionSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[name] = src
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.requestsTotal, c.requestsFailed, c.requestDuration,
		c.cacheHits, c.cacheMisses, c.cacheEvictions, c.cacheExpirations, c.cacheSize, c.cacheCapacity,
		c.sessionState, c.sessionMessages, c.sessionBytes, c.sessionPings, c.sessionReconnects,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for target, src := range c.trackers {
		c.collectStats(ch, target, src.Stats())
	}
	for name, src := range c.caches {
		c.collectCache(ch, name, src)
	}
	for name, src := range c.sessions {
		c.collectSession(ch, name, src.Info())
	}
}

func (c *Collector) collectStats(ch chan<- prometheus.Metric, target string, stats latency.Stats) {
	codes := make([]int, 0, len(stats.CountsByStatus))
	for code := range stats.CountsByStatus {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		ch <- prometheus.MustNewConstMetric(c.requestsTotal, prometheus.CounterValue,
			float64(stats.CountsByStatus[code]), target, strconv.Itoa(code))
	}

	ch <- prometheus.MustNewConstMetric(c.requestsFailed, prometheus.CounterValue,
		float64(stats.FailureCount), target)

	sum := stats.Avg.Seconds() * float64(stats.Count)
	ch <- prometheus.MustNewConstSummary(c.requestDuration, uint64(stats.Count), sum,
		map[float64]float64{
			0.5:  stats.P50.Seconds(),
			0.95: stats.P95.Seconds(),
			0.99: stats.P99.Seconds(),
		}, target)
}

func (c *Collector) collectCache(ch chan<- prometheus.Metric, name string, src CacheSource) {
	stats := src.Stats()
	ch <- prometheus.MustNewConstMetric(c.cacheHits, prometheus.CounterValue, float64(stats.Hits), name)
	ch <- prometheus.MustNewConstMetric(c.cacheMisses, prometheus.CounterValue, float64(stats.Misses), name)
	ch <- prometheus.MustNewConstMetric(c.cacheEvictions, prometheus.CounterValue, float64(stats.Evictions), name)
	ch <- prometheus.MustNewConstMetric(c.cacheExpirations, prometheus.CounterValue, float64(stats.Expirations), name)
	ch <- prometheus.MustNewConstMetric(c.cacheSize, prometheus.GaugeValue, float64(src.Len()), name)
	ch <- prometheus.MustNewConstMetric(c.cacheCapacity, prometheus.GaugeValue, float64(src.Capacity()), name)
}

var sessionStates = []ws.State{ws.StateClosed, ws.StateConnecting, ws.StateOpen, ws.StateClosing, ws.StateErrored}

func (c *Collector) collectSession(ch chan<- prometheus.Metric, name string, info ws.Info) {
	for _, st := range sessionStates {
		v := 0.0
		if info.State == st {
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(c.sessionState, prometheus.GaugeValue, v, name, st.String())
	}

	ch <- prometheus.MustNewConstMetric(c.sessionMessages, prometheus.CounterValue, float64(info.Sent.Count), name, string(ws.Sent))
	ch <- prometheus.MustNewConstMetric(c.sessionMessages, prometheus.CounterValue, float64(info.Received.Count), name, string(ws.Received))
	ch <- prometheus.MustNewConstMetric(c.sessionBytes, prometheus.CounterValue, float64(info.Sent.Bytes), name, string(ws.Sent))
	ch <- prometheus.MustNewConstMetric(c.sessionBytes, prometheus.CounterValue, float64(info.Received.Bytes), name, string(ws.Received))
	ch <- prometheus.MustNewConstMetric(c.sessionPings, prometheus.CounterValue, float64(info.PingsSent), name)
	ch <- prometheus.MustNewConstMetric(c.sessionReconnects, prometheus.CounterValue, float64(info.ReconnectAttempts), name)
}
