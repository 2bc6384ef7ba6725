package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/abdul-hamid-achik/hitwire/packages/cache"
	"github.com/abdul-hamid-achik/hitwire/packages/latency"
	"github.com/abdul-hamid-achik/hitwire/packages/probe"
	"github.com/abdul-hamid-achik/hitwire/packages/ws"
)

const barWidth = 30

// ProbeSummary is the result of sending a batch of requests
type ProbeSummary struct {
	Method       string
	Target       string
	Duration     time.Duration
	Stats        latency.Stats
	Distribution []latency.Bar
	Cache        *cache.Stats
	Attempts     int
	RPS          float64
	Errors       map[string]int // failures by classified kind
	Thresholds   []probe.ThresholdResult
	RunID        string
}

// Reporter handles console output
type Reporter struct {
	writer  io.Writer
	noColor bool
	verbose bool

	// Colors
	green  *color.Color
	red    *color.Color
	yellow *color.Color
	cyan   *color.Color
	bold   *color.Color
	dim    *color.Color
}

// ReporterOption configures the reporter
type ReporterOption func(*Reporter)

// WithWriter sets the output writer
func WithWriter(w io.Writer) ReporterOption {
	return func(r *Reporter) {
		r.writer = w
	}
}

// WithNoColor disables colored output
func WithNoColor(noColor bool) ReporterOption {
	return func(r *Reporter) {
		r.noColor = noColor
	}
}

// WithVerbose enables verbose output
func WithVerbose(verbose bool) ReporterOption {
	return func(r *Reporter) {
		r.verbose = verbose
	}
}

// NewReporter creates a new reporter
func NewReporter(opts ...ReporterOption) *Reporter {
	r := &Reporter{
		writer: os.Stdout,
	}

	for _, opt := range opts {
		opt(r)
	}

	r.green = r.newColor(color.FgGreen)
	r.red = r.newColor(color.FgRed)
	r.yellow = r.newColor(color.FgYellow)
	r.cyan = r.newColor(color.FgCyan)
	r.bold = r.newColor(color.Bold)
	r.dim = r.newColor(color.Faint)

	return r
}

func (r *Reporter) newColor(attr color.Attribute) *color.Color {
	c := color.New(attr)
	if r.noColor {
		c.DisableColor()
	}
	return c
}

// Header prints the command header
func (r *Reporter) Header(version, title string) {
	fmt.Fprintln(r.writer)
	r.bold.Fprintf(r.writer, "hitwire %s\n", version)
	r.cyan.Fprintf(r.writer, "%s\n", title)
	fmt.Fprintln(r.writer)
}

// Probe prints the final summary of a probe
func (r *Reporter) Probe(summary ProbeSummary) {
	s := summary.Stats

	r.bold.Fprintln(r.writer, "PROBE SUMMARY")
	fmt.Fprintln(r.writer, strings.Repeat("─", 40))

	fmt.Fprintf(r.writer, "Target:     %s %s\n", summary.Method, summary.Target)
	fmt.Fprintf(r.writer, "Duration:   %s\n", formatDuration(summary.Duration))
	fmt.Fprintf(r.writer, "Total:      ")
	r.bold.Fprintf(r.writer, "%s", formatNumber(int64(s.Count)))
	if summary.Attempts > s.Count {
		fmt.Fprintf(r.writer, " attempts for %s requests\n", formatNumber(int64(summary.Attempts)))
	} else {
		fmt.Fprintf(r.writer, " requests\n")
	}

	fmt.Fprintf(r.writer, "Success:    ")
	r.green.Fprintf(r.writer, "%s", formatNumber(int64(s.SuccessCount)))
	fmt.Fprintf(r.writer, " (%.1f%%)\n", s.SuccessRate()*100)

	fmt.Fprintf(r.writer, "Failed:     ")
	if s.FailureCount > 0 {
		r.red.Fprintf(r.writer, "%s", formatNumber(int64(s.FailureCount)))
	} else {
		fmt.Fprintf(r.writer, "%s", formatNumber(int64(s.FailureCount)))
	}
	fmt.Fprintln(r.writer)

	if summary.RPS > 0 {
		fmt.Fprintf(r.writer, "Rate:       %.1f req/s\n", summary.RPS)
	}

	if len(s.CountsByStatus) > 0 {
		fmt.Fprintln(r.writer)
		r.bold.Fprintln(r.writer, "STATUS CODES")
		for _, code := range sortedCodes(s.CountsByStatus) {
			label := fmt.Sprintf("%d", code)
			if code == 0 {
				label = "error"
			}
			c := r.green
			if !latency.IsSuccess(code) {
				c = r.red
			}
			fmt.Fprintf(r.writer, "  ")
			c.Fprintf(r.writer, "%-6s", label)
			fmt.Fprintf(r.writer, " %s\n", formatNumber(int64(s.CountsByStatus[code])))
		}
	}

	if s.Count > 0 {
		fmt.Fprintln(r.writer)
		r.bold.Fprintln(r.writer, "LATENCY")
		fmt.Fprintf(r.writer, "  p50: %-8s | p95: %-8s | p99: %s\n",
			formatLatency(s.P50), formatLatency(s.P95), formatLatency(s.P99))
		fmt.Fprintf(r.writer, "  min: %-8s | avg: %-8s | max: %s\n",
			formatLatency(s.Min), formatLatency(s.Avg), formatLatency(s.Max))
	}

	if len(summary.Distribution) > 0 {
		fmt.Fprintln(r.writer)
		r.Distribution(summary.Distribution)
	}

	if len(summary.Errors) > 0 {
		fmt.Fprintln(r.writer)
		r.bold.Fprintln(r.writer, "ERRORS")
		kinds := make([]string, 0, len(summary.Errors))
		for k := range summary.Errors {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(r.writer, "  ")
			r.red.Fprintf(r.writer, "%-10s", k)
			fmt.Fprintf(r.writer, " %s\n", formatNumber(int64(summary.Errors[k])))
		}
	}

	if summary.Cache != nil {
		fmt.Fprintln(r.writer)
		r.bold.Fprintln(r.writer, "CACHE")
		fmt.Fprintf(r.writer, "  hits: %d | misses: %d | evictions: %d | expirations: %d\n",
			summary.Cache.Hits, summary.Cache.Misses, summary.Cache.Evictions, summary.Cache.Expirations)
	}

	if len(summary.Thresholds) > 0 {
		fmt.Fprintln(r.writer)
		r.Thresholds(summary.Thresholds)
	}

	if summary.RunID != "" {
		fmt.Fprintln(r.writer)
		r.dim.Fprintf(r.writer, "Recorded as run %s\n", summary.RunID)
	}
	fmt.Fprintln(r.writer)
}

// Thresholds prints pass/fail lines for evaluated thresholds
func (r *Reporter) Thresholds(results []probe.ThresholdResult) {
	r.bold.Fprintln(r.writer, "THRESHOLDS")
	allPassed := true
	for _, tr := range results {
		if tr.Passed {
			r.green.Fprintf(r.writer, "  ✓ ")
		} else {
			r.red.Fprintf(r.writer, "  ✗ ")
			allPassed = false
		}
		fmt.Fprintf(r.writer, "%s %s    (actual: %s)\n", tr.Name, tr.Expected, tr.Actual)
	}
	if allPassed {
		r.green.Fprintln(r.writer, "All thresholds passed")
	} else {
		r.red.Fprintln(r.writer, "Some thresholds failed")
	}
}

// Distribution prints latency bars scaled to the largest bucket
func (r *Reporter) Distribution(bars []latency.Bar) {
	r.bold.Fprintln(r.writer, "DISTRIBUTION")

	var max int64
	for _, b := range bars {
		if b.Count > max {
			max = b.Count
		}
	}
	if max == 0 {
		return
	}

	for _, b := range bars {
		filled := int(float64(b.Count) / float64(max) * barWidth)
		if filled == 0 && b.Count > 0 {
			filled = 1
		}
		fmt.Fprintf(r.writer, "  %9s ", formatLatency(b.From))
		r.cyan.Fprint(r.writer, strings.Repeat("█", filled))
		fmt.Fprintf(r.writer, "%s %d\n", strings.Repeat(" ", barWidth-filled), b.Count)
	}
}

// Session prints a session's bookkeeping
func (r *Reporter) Session(info ws.Info) {
	r.bold.Fprintln(r.writer, "SESSION")
	fmt.Fprintln(r.writer, strings.Repeat("─", 40))

	fmt.Fprintf(r.writer, "URL:        %s\n", info.URL)
	fmt.Fprintf(r.writer, "State:      ")
	r.stateColor(info.State).Fprintf(r.writer, "%s\n", info.State)
	if !info.ConnectedAt.IsZero() {
		fmt.Fprintf(r.writer, "Connected:  %s\n", info.ConnectedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(r.writer, "Sent:       %s messages (%s)\n", formatNumber(info.Sent.Count), formatBytes(info.Sent.Bytes))
	fmt.Fprintf(r.writer, "Received:   %s messages (%s)\n", formatNumber(info.Received.Count), formatBytes(info.Received.Bytes))
	if info.PingsSent > 0 {
		fmt.Fprintf(r.writer, "Pings:      %s\n", formatNumber(info.PingsSent))
	}
	if info.ReconnectAttempts > 0 {
		fmt.Fprintf(r.writer, "Reconnects: ")
		r.yellow.Fprintf(r.writer, "%d\n", info.ReconnectAttempts)
	}
	if info.LastCloseCode != 0 {
		fmt.Fprintf(r.writer, "Last close: %d %s\n", info.LastCloseCode, info.LastCloseReason)
	}
	fmt.Fprintln(r.writer)
}

func (r *Reporter) stateColor(st ws.State) *color.Color {
	switch st {
	case ws.StateOpen:
		return r.green
	case ws.StateErrored:
		return r.red
	case ws.StateConnecting, ws.StateClosing:
		return r.yellow
	default:
		return r.dim
	}
}

// Messages prints a message history, oldest first
func (r *Reporter) Messages(messages []ws.Message) {
	r.bold.Fprintln(r.writer, "MESSAGES")
	if len(messages) == 0 {
		r.dim.Fprintln(r.writer, "  (none)")
		fmt.Fprintln(r.writer)
		return
	}

	for _, m := range messages {
		arrow := r.cyan.Sprint("→")
		if m.Direction == ws.Received {
			arrow = r.green.Sprint("←")
		}
		payload := m.Text()
		if m.Kind == ws.KindBinary {
			payload = fmt.Sprintf("<%d bytes>", m.SizeBytes)
		}
		if !r.verbose {
			payload = truncate(payload, 80)
		}
		fmt.Fprintf(r.writer, "  %s %s %-6s %s\n",
			r.dim.Sprint(m.Timestamp.Format("15:04:05.000")), arrow, m.Kind, payload)
	}
	fmt.Fprintln(r.writer)
}

// Event prints a lifecycle notification on one line
func (r *Reporter) Event(e ws.Event) {
	ts := r.dim.Sprint(e.Time.Format("15:04:05.000"))
	switch e.Type {
	case ws.EventConnected:
		fmt.Fprintf(r.writer, "%s %s\n", ts, r.green.Sprint("connected"))
	case ws.EventMessageReceived:
		if r.verbose && e.Message != nil {
			fmt.Fprintf(r.writer, "%s %s %s\n", ts, r.green.Sprint("←"), truncate(e.Message.Text(), 80))
		}
	case ws.EventClosed:
		fmt.Fprintf(r.writer, "%s %s (%d %s)\n", ts, r.dim.Sprint("closed"), e.Code, e.Reason)
	case ws.EventReconnecting:
		fmt.Fprintf(r.writer, "%s %s attempt %d\n", ts, r.yellow.Sprint("reconnecting"), e.Attempt)
	case ws.EventReconnectFailed:
		fmt.Fprintf(r.writer, "%s %s: %v\n", ts, r.red.Sprint("reconnect failed"), e.Err)
	case ws.EventError:
		fmt.Fprintf(r.writer, "%s %s: %v\n", ts, r.red.Sprint("error"), e.Err)
	}
}

// Error prints an error message
func (r *Reporter) Error(format string, args ...interface{}) {
	r.red.Fprintf(r.writer, "Error: "+format+"\n", args...)
}

// Info prints an info message
func (r *Reporter) Info(format string, args ...interface{}) {
	fmt.Fprintf(r.writer, format+"\n", args...)
}

// JSONProbe outputs a probe summary as JSON
func (r *Reporter) JSONProbe(summary ProbeSummary) error {
	s := summary.Stats

	byStatus := make(map[string]int, len(s.CountsByStatus))
	for code, n := range s.CountsByStatus {
		byStatus[fmt.Sprintf("%d", code)] = n
	}

	output := map[string]interface{}{
		"target":   summary.Target,
		"method":   summary.Method,
		"duration": summary.Duration.String(),
		"requests": map[string]interface{}{
			"total":    s.Count,
			"success":  s.SuccessCount,
			"failed":   s.FailureCount,
			"attempts": summary.Attempts,
			"byStatus": byStatus,
		},
		"latency": map[string]interface{}{
			"p50": s.P50.Milliseconds(),
			"p95": s.P95.Milliseconds(),
			"p99": s.P99.Milliseconds(),
			"min": s.Min.Milliseconds(),
			"max": s.Max.Milliseconds(),
			"avg": s.Avg.Milliseconds(),
		},
	}

	if len(summary.Distribution) > 0 {
		bars := make([]map[string]interface{}, len(summary.Distribution))
		for i, b := range summary.Distribution {
			bars[i] = map[string]interface{}{
				"fromUs": b.From.Microseconds(),
				"toUs":   b.To.Microseconds(),
				"count":  b.Count,
			}
		}
		output["distribution"] = bars
	}
	if summary.RPS > 0 {
		output["rps"] = summary.RPS
	}
	if len(summary.Errors) > 0 {
		output["errors"] = summary.Errors
	}
	if len(summary.Thresholds) > 0 {
		results := make([]map[string]interface{}, len(summary.Thresholds))
		passed := true
		for i, tr := range summary.Thresholds {
			results[i] = map[string]interface{}{
				"name":     tr.Name,
				"passed":   tr.Passed,
				"expected": tr.Expected,
				"actual":   tr.Actual,
			}
			passed = passed && tr.Passed
		}
		output["thresholds"] = results
		output["passed"] = passed
	}
	if summary.Cache != nil {
		output["cache"] = summary.Cache
	}
	if summary.RunID != "" {
		output["runId"] = summary.RunID
	}

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func sortedCodes(m map[int]int) []int {
	codes := make([]int, 0, len(m))
	for code := range m {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}
