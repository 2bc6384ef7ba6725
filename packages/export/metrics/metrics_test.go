package metrics

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/hitwire/packages/cache"
	"github.com/abdul-hamid-achik/hitwire/packages/latency"
	"github.com/abdul-hamid-achik/hitwire/packages/ws"
)

type staticSession ws.Info

func (s staticSession) Info() ws.Info { return ws.Info(s) }

func newTestCollector(t *testing.T) *Collector {
	t.Helper()

	tracker := latency.NewTracker()
	tracker.Record(10*time.Millisecond, 200)
	tracker.Record(20*time.Millisecond, 200)
	tracker.Record(30*time.Millisecond, 503)
	tracker.Record(40*time.Millisecond, 0)

	c, err := cache.New[string](2)
	require.NoError(t, err)
	c.Store("a", "1", 0)
	c.Store("b", "2", 0)
	c.Store("c", "3", 0)
	c.Get("c")
	c.Get("a")

	collector := NewCollector()
	collector.AddTracker("api", tracker)
	collector.AddCache("responses", c)
	collector.AddSession("feed", staticSession{
		URL:               "ws://feed",
		State:             ws.StateOpen,
		Sent:              ws.Counter{Count: 3, Bytes: 30},
		Received:          ws.Counter{Count: 5, Bytes: 80},
		PingsSent:         2,
		ReconnectAttempts: 1,
	})
	return collector
}

func TestCollector_Requests(t *testing.T) {
	collector := newTestCollector(t)

	expected := `
# HELP hitwire_requests_total Total number of requests by status code (0 means no response)
# TYPE hitwire_requests_total counter
hitwire_requests_total{status_code="0",target="api"} 1
hitwire_requests_total{status_code="200",target="api"} 2
hitwire_requests_total{status_code="503",target="api"} 1
# HELP hitwire_requests_failed_total Total number of requests without a successful status
# TYPE hitwire_requests_failed_total counter
hitwire_requests_failed_total{target="api"} 2
`
	err := testutil.CollectAndCompare(collector, strings.NewReader(expected),
		"hitwire_requests_total", "hitwire_requests_failed_total")
	assert.NoError(t, err)
}

func TestCollector_Cache(t *testing.T) {
	collector := newTestCollector(t)

	expected := `
# HELP hitwire_cache_evictions_total Total number of entries evicted at capacity
# TYPE hitwire_cache_evictions_total counter
hitwire_cache_evictions_total{cache="responses"} 1
# HELP hitwire_cache_hits_total Total number of cache hits
# TYPE hitwire_cache_hits_total counter
hitwire_cache_hits_total{cache="responses"} 1
# HELP hitwire_cache_misses_total Total number of cache misses
# TYPE hitwire_cache_misses_total counter
hitwire_cache_misses_total{cache="responses"} 1
# HELP hitwire_cache_size Current number of entries in cache
# TYPE hitwire_cache_size gauge
hitwire_cache_size{cache="responses"} 2
`
	err := testutil.CollectAndCompare(collector, strings.NewReader(expected),
		"hitwire_cache_evictions_total", "hitwire_cache_hits_total", "hitwire_cache_misses_total", "hitwire_cache_size")
	assert.NoError(t, err)
}

func TestCollector_Session(t *testing.T) {
	collector := newTestCollector(t)

	expected := `
# HELP hitwire_session_messages_total Messages by direction
# TYPE hitwire_session_messages_total counter
hitwire_session_messages_total{direction="received",session="feed"} 5
hitwire_session_messages_total{direction="sent",session="feed"} 3
# HELP hitwire_session_state Session state (1 for the current state)
# TYPE hitwire_session_state gauge
hitwire_session_state{session="feed",state="closed"} 0
hitwire_session_state{session="feed",state="closing"} 0
hitwire_session_state{session="feed",state="connecting"} 0
hitwire_session_state{session="feed",state="errored"} 0
hitwire_session_state{session="feed",state="open"} 1
`
	err := testutil.CollectAndCompare(collector, strings.NewReader(expected),
		"hitwire_session_messages_total", "hitwire_session_state")
	assert.NoError(t, err)
}

func TestCollector_Lint(t *testing.T) {
	problems, err := testutil.CollectAndLint(newTestCollector(t))
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestPrometheusExporter_Export(t *testing.T) {
	var buf bytes.Buffer
	exporter, err := NewPrometheusExporter(newTestCollector(t), WithPrometheusWriter(&buf))
	require.NoError(t, err)

	require.NoError(t, exporter.Export())
	out := buf.String()
	assert.Contains(t, out, "# TYPE hitwire_request_duration_seconds summary")
	assert.Contains(t, out, `hitwire_request_duration_seconds_count{target="api"} 4`)
	assert.Contains(t, out, `hitwire_session_keepalive_pings_total{session="feed"} 2`)
}

func TestPrometheusExporter_NoWriter(t *testing.T) {
	exporter, err := NewPrometheusExporter(NewCollector())
	require.NoError(t, err)
	assert.Error(t, exporter.Export())
	_, err = exporter.Start()
	assert.Error(t, err)
}

func TestPrometheusExporter_HTTP(t *testing.T) {
	exporter, err := NewPrometheusExporter(newTestCollector(t), WithPrometheusHTTP("127.0.0.1:0"), WithRuntimeMetrics())
	require.NoError(t, err)
	defer exporter.Close()

	addr, err := exporter.Start()
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "hitwire_cache_capacity")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestJSONExporter(t *testing.T) {
	var buf bytes.Buffer
	exporter := NewJSONExporter(newTestCollector(t), WithJSONWriter(&buf), WithJSONPretty(false))
	require.NoError(t, exporter.Export())

	var out JSONMetricsOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))

	api := out.Requests["api"]
	assert.Equal(t, 4, api.Count)
	assert.Equal(t, 2, api.SuccessCount)
	assert.Equal(t, 25.0, api.P50Ms)
	assert.Equal(t, map[string]int{"0": 1, "200": 2, "503": 1}, api.StatusCodes)

	assert.Equal(t, 2, out.Caches["responses"].Size)
	assert.Equal(t, "open", out.Sessions["feed"].State)
}
