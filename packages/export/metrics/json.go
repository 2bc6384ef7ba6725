package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"
)

// JSONExporter writes a point-in-time snapshot of a Collector's sources
type JSONExporter struct {
	collector *Collector
	writer    io.Writer
	filePath  string
	pretty    bool
	startTime time.Time
	now       func() time.Time
}

// JSONOption is a functional option for JSONExporter
type JSONOption func(*JSONExporter)

// WithJSONWriter sets the output writer for JSON metrics
func WithJSONWriter(w io.Writer) JSONOption {
	return func(j *JSONExporter) {
		j.writer = w
	}
}

// WithJSONFile sets the output file for JSON metrics
func WithJSONFile(path string) JSONOption {
	return func(j *JSONExporter) {
		j.filePath = path
	}
}

// WithJSONPretty enables pretty-printed JSON output
func WithJSONPretty(pretty bool) JSONOption {
	return func(j *JSONExporter) {
		j.pretty = pretty
	}
}

// NewJSONExporter creates a new JSON metrics exporter
func NewJSONExporter(collector *Collector, opts ...JSONOption) *JSONExporter {
	j := &JSONExporter{
		collector: collector,
		startTime: time.Now(),
		pretty:    true,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(j)
	}

	return j
}

// JSONMetricsOutput is the complete JSON output structure
type JSONMetricsOutput struct {
	Metadata JSONMetadata              `json:"metadata"`
	Requests map[string]RequestSummary `json:"requests,omitempty"`
	Caches   map[string]CacheSummary   `json:"caches,omitempty"`
	Sessions map[string]SessionSummary `json:"sessions,omitempty"`
}

// JSONMetadata contains metadata about the metrics collection
type JSONMetadata struct {
	GeneratedAt string `json:"generated_at"`
	StartTime   string `json:"start_time"`
	Duration    string `json:"duration"`
}

// RequestSummary is the JSON form of latency.Stats
type RequestSummary struct {
	Count        int            `json:"count"`
	SuccessCount int            `json:"success_count"`
	FailureCount int            `json:"failure_count"`
	SuccessRate  float64        `json:"success_rate"`
	AvgMs        float64        `json:"avg_ms"`
	MinMs        float64        `json:"min_ms"`
	MaxMs        float64        `json:"max_ms"`
	P50Ms        float64        `json:"p50_ms"`
	P95Ms        float64        `json:"p95_ms"`
	P99Ms        float64        `json:"p99_ms"`
	StatusCodes  map[string]int `json:"status_codes"`
}

// CacheSummary is the JSON form of cache statistics
type CacheSummary struct {
	Size        int   `json:"size"`
	Capacity    int   `json:"capacity"`
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Evictions   int64 `json:"evictions"`
	Expirations int64 `json:"expirations"`
}

// SessionSummary is the JSON form of ws.Info
type SessionSummary struct {
	URL               string `json:"url"`
	State             string `json:"state"`
	MessagesSent      int64  `json:"messages_sent"`
	MessagesReceived  int64  `json:"messages_received"`
	BytesSent         int64  `json:"bytes_sent"`
	BytesReceived     int64  `json:"bytes_received"`
	PingsSent         int64  `json:"pings_sent"`
	ReconnectAttempts int    `json:"reconnect_attempts"`
	LastCloseCode     int    `json:"last_close_code,omitempty"`
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Snapshot builds the JSON output structure without writing it
func (j *JSONExporter) Snapshot() JSONMetricsOutput {
	now := j.now()
	out := JSONMetricsOutput{
		Metadata: JSONMetadata{
			GeneratedAt: now.Format(time.RFC3339),
			StartTime:   j.startTime.Format(time.RFC3339),
			Duration:    now.Sub(j.startTime).String(),
		},
		Requests: make(map[string]RequestSummary),
		Caches:   make(map[string]CacheSummary),
		Sessions: make(map[string]SessionSummary),
	}

	c := j.collector
	c.mu.RLock()
	defer c.mu.RUnlock()

	for target, src := range c.trackers {
		s := src.Stats()
		codes := make([]int, 0, len(s.CountsByStatus))
		for code := range s.CountsByStatus {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		byStatus := make(map[string]int, len(codes))
		for _, code := range codes {
			byStatus[fmt.Sprintf("%d", code)] = s.CountsByStatus[code]
		}
		out.Requests[target] = RequestSummary{
			Count:        s.Count,
			SuccessCount: s.SuccessCount,
			FailureCount: s.FailureCount,
			SuccessRate:  s.SuccessRate(),
			AvgMs:        ms(s.Avg),
			MinMs:        ms(s.Min),
			MaxMs:        ms(s.Max),
			P50Ms:        ms(s.P50),
			P95Ms:        ms(s.P95),
			P99Ms:        ms(s.P99),
			StatusCodes:  byStatus,
		}
	}

	for name, src := range c.caches {
		s := src.Stats()
		out.Caches[name] = CacheSummary{
			Size:        src.Len(),
			Capacity:    src.Capacity(),
			Hits:        s.Hits,
			Misses:      s.Misses,
			Evictions:   s.Evictions,
			Expirations: s.Expirations,
		}
	}

	for name, src := range c.sessions {
		info := src.Info()
		out.Sessions[name] = SessionSummary{
			URL:               info.URL,
			State:             info.State.String(),
			MessagesSent:      info.Sent.Count,
			MessagesReceived:  info.Received.Count,
			BytesSent:         info.Sent.Bytes,
			BytesReceived:     info.Received.Bytes,
			PingsSent:         info.PingsSent,
			ReconnectAttempts: info.ReconnectAttempts,
			LastCloseCode:     info.LastCloseCode,
		}
	}

	return out
}

// Export writes the snapshot to the configured file and writer
func (j *JSONExporter) Export() error {
	output := j.Snapshot()

	var data []byte
	var err error

	if j.pretty {
		data, err = json.MarshalIndent(output, "", "  ")
	} else {
		data, err = json.Marshal(output)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	// Write to file if path is specified
	if j.filePath != "" {
		if err := os.WriteFile(j.filePath, data, 0644); err != nil {
			return fmt.Errorf("failed to write metrics file: %w", err)
		}
	}

	// Write to writer if specified
	if j.writer != nil {
		if _, err := j.writer.Write(data); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
		if _, err := j.writer.Write([]byte("\n")); err != nil {
			return fmt.Errorf("failed to write newline: %w", err)
		}
	}

	return nil
}
