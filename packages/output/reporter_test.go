package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/hitwire/packages/cache"
	"github.com/abdul-hamid-achik/hitwire/packages/latency"
	"github.com/abdul-hamid-achik/hitwire/packages/probe"
	"github.com/abdul-hamid-achik/hitwire/packages/ws"
)

func sampleSummary() ProbeSummary {
	tracker := latency.NewTracker()
	tracker.Record(10*time.Millisecond, 200)
	tracker.Record(20*time.Millisecond, 200)
	tracker.Record(30*time.Millisecond, 503)
	tracker.Record(40*time.Millisecond, 0)

	return ProbeSummary{
		Method:       "GET",
		Target:       "https://api.example.com/health",
		Duration:     1500 * time.Millisecond,
		Stats:        tracker.Stats(),
		Distribution: tracker.Distribution(),
		Cache:        &cache.Stats{Hits: 3, Misses: 1},
		Attempts:     6,
		RunID:        "run-1",
	}
}

func TestReporter_Probe(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(WithWriter(&buf), WithNoColor(true))

	r.Probe(sampleSummary())
	out := buf.String()

	assert.Contains(t, out, "PROBE SUMMARY")
	assert.Contains(t, out, "GET https://api.example.com/health")
	assert.Contains(t, out, "6 attempts for 4 requests")
	assert.Contains(t, out, "(50.0%)")
	assert.Contains(t, out, "p50: 25.0ms")
	assert.Contains(t, out, "error ")
	assert.Contains(t, out, "DISTRIBUTION")
	assert.Contains(t, out, "hits: 3 | misses: 1")
	assert.Contains(t, out, "Recorded as run run-1")
	assert.NotContains(t, out, "\x1b[", "no escape codes with color disabled")
}

func TestReporter_ProbeThresholdsAndErrors(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(WithWriter(&buf), WithNoColor(true))

	summary := sampleSummary()
	summary.RPS = 2.5
	summary.Errors = map[string]int{"refused": 1}
	summary.Thresholds = []probe.ThresholdResult{
		{Name: "p95", Passed: true, Expected: "< 200ms", Actual: "35ms"},
		{Name: "errors", Passed: false, Expected: "< 1.00%", Actual: "50.00%"},
	}
	r.Probe(summary)
	out := buf.String()

	assert.Contains(t, out, "2.5 req/s")
	assert.Contains(t, out, "ERRORS")
	assert.Contains(t, out, "refused")
	assert.Contains(t, out, "✓ p95 < 200ms")
	assert.Contains(t, out, "✗ errors < 1.00%    (actual: 50.00%)")
	assert.Contains(t, out, "Some thresholds failed")

	buf.Reset()
	require.NoError(t, r.JSONProbe(summary))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, false, decoded["passed"])
	assert.Len(t, decoded["thresholds"], 2)
}

func TestReporter_Distribution(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(WithWriter(&buf), WithNoColor(true))

	r.Distribution([]latency.Bar{
		{From: time.Millisecond, To: 2 * time.Millisecond, Count: 10},
		{From: 2 * time.Millisecond, To: 3 * time.Millisecond, Count: 1},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, barWidth, strings.Count(lines[1], "█"))
	assert.Equal(t, 3, strings.Count(lines[2], "█"))
	assert.True(t, strings.HasSuffix(lines[1], " 10"))
}

func TestReporter_Session(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(WithWriter(&buf), WithNoColor(true))

	r.Session(ws.Info{
		URL:               "wss://feed",
		State:             ws.StateOpen,
		Sent:              ws.Counter{Count: 2, Bytes: 2048},
		Received:          ws.Counter{Count: 1200, Bytes: 10},
		ReconnectAttempts: 2,
		LastCloseCode:     1006,
	})
	out := buf.String()

	assert.Contains(t, out, "State:      open")
	assert.Contains(t, out, "2 messages (2.0 KiB)")
	assert.Contains(t, out, "1,200 messages (10 B)")
	assert.Contains(t, out, "Reconnects: 2")
	assert.Contains(t, out, "Last close: 1006")
}

func TestReporter_Messages(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(WithWriter(&buf), WithNoColor(true))

	ts := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r.Messages([]ws.Message{
		{Kind: ws.KindText, Direction: ws.Sent, Payload: []byte("hello"), Timestamp: ts},
		{Kind: ws.KindBinary, Direction: ws.Received, Payload: []byte{1, 2}, SizeBytes: 2, Timestamp: ts},
		{Kind: ws.KindText, Direction: ws.Received, Payload: []byte(strings.Repeat("x", 100)), Timestamp: ts},
	})
	out := buf.String()

	assert.Contains(t, out, "→ text   hello")
	assert.Contains(t, out, "← binary <2 bytes>")
	assert.Contains(t, out, strings.Repeat("x", 80)+"...")

	buf.Reset()
	r.Messages(nil)
	assert.Contains(t, buf.String(), "(none)")
}

func TestReporter_Events(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(WithWriter(&buf), WithNoColor(true))

	r.Event(ws.Event{Type: ws.EventConnected})
	r.Event(ws.Event{Type: ws.EventReconnecting, Attempt: 2})
	r.Event(ws.Event{Type: ws.EventReconnectFailed, Err: errors.New("budget spent")})
	r.Event(ws.Event{Type: ws.EventMessageReceived, Message: &ws.Message{Payload: []byte("quiet")}})
	out := buf.String()

	assert.Contains(t, out, "connected")
	assert.Contains(t, out, "reconnecting attempt 2")
	assert.Contains(t, out, "reconnect failed: budget spent")
	assert.NotContains(t, out, "quiet", "messages print only when verbose")
}

func TestReporter_JSONProbe(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(WithWriter(&buf))
	require.NoError(t, r.JSONProbe(sampleSummary()))

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))

	requests := out["requests"].(map[string]any)
	assert.Equal(t, 4.0, requests["total"])
	assert.Equal(t, 6.0, requests["attempts"])
	assert.Equal(t, 2.0, requests["byStatus"].(map[string]any)["200"])
	assert.Equal(t, "run-1", out["runId"])
	assert.NotEmpty(t, out["distribution"])
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "1,234,567", formatNumber(1234567))
	assert.Equal(t, "-1,000", formatNumber(-1000))
	assert.Equal(t, "999", formatNumber(999))
	assert.Equal(t, "500μs", formatLatency(500*time.Microsecond))
	assert.Equal(t, "1.50s", formatLatency(1500*time.Millisecond))
	assert.Equal(t, "1.5 MiB", formatBytes(1536*1024))
	assert.Equal(t, "2m 05s", formatDuration(125*time.Second))
	assert.Equal(t, "héllo...", truncate("héllo world", 5))
}
