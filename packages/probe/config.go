// Package probe drives repeated requests through the resilient client and
// evaluates pass/fail thresholds over the resulting latency statistics.
package probe

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/hitwire/packages/latency"
)

// Config holds all configuration for a probe
type Config struct {
	Requests    int           // total requests; 0 runs until Duration elapses
	Duration    time.Duration // stops scheduling new requests once elapsed
	Concurrency int           // max requests in flight
	Rate        float64       // requests per second, 0 for unpaced
	Thresholds  Thresholds
}

// Thresholds defines pass/fail criteria for a probe. Zero fields are unset.
type Thresholds struct {
	P50        time.Duration
	P95        time.Duration
	P99        time.Duration
	MaxLatency time.Duration
	ErrorRate  float64 // maximum error rate (0.0 - 1.0)
	MinRPS     float64
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Requests:    10,
		Concurrency: 1,
	}
}

// Validate checks if the config is valid
func (c Config) Validate() error {
	if c.Requests < 0 {
		return fmt.Errorf("requests cannot be negative")
	}
	if c.Requests == 0 && c.Duration <= 0 {
		return fmt.Errorf("either requests or duration must be positive")
	}
	if c.Duration < 0 {
		return fmt.Errorf("duration cannot be negative")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	if c.Rate < 0 {
		return fmt.Errorf("rate cannot be negative")
	}
	return nil
}

var thresholdPattern = regexp.MustCompile(`^(\w+)\s*([<>]=?)\s*(.+)$`)

// ParseThresholds parses a threshold string like "p95<200ms,errors<0.1%"
func ParseThresholds(s string) (Thresholds, error) {
	var t Thresholds

	if s == "" {
		return t, nil
	}

	parts := strings.Split(s, ",")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if err := parseThresholdPart(part, &t); err != nil {
			return t, err
		}
	}

	return t, nil
}

func parseThresholdPart(part string, t *Thresholds) error {
	// Match patterns like "p95<200ms", "errors<0.1%", "rps>50"
	matches := thresholdPattern.FindStringSubmatch(part)
	if len(matches) != 4 {
		return fmt.Errorf("invalid threshold format: %s", part)
	}

	metric := strings.ToLower(matches[1])
	op := matches[2]
	valueStr := strings.TrimSpace(matches[3])

	upperBound := func(name string, dst *time.Duration) error {
		d, err := time.ParseDuration(valueStr)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %s", name, valueStr)
		}
		if op != "<" && op != "<=" {
			return fmt.Errorf("%s threshold must use < or <=", name)
		}
		*dst = d
		return nil
	}

	switch metric {
	case "p50":
		return upperBound("p50", &t.P50)
	case "p95":
		return upperBound("p95", &t.P95)
	case "p99":
		return upperBound("p99", &t.P99)
	case "max", "maxlatency":
		return upperBound("max latency", &t.MaxLatency)

	case "errors", "error", "errorrate":
		// Handle percentage format like "0.1%" or decimal like "0.001"
		pct := strings.HasSuffix(valueStr, "%")
		f, err := strconv.ParseFloat(strings.TrimSuffix(valueStr, "%"), 64)
		if err != nil {
			return fmt.Errorf("invalid error rate: %s", valueStr)
		}
		if pct {
			f = f / 100
		}
		if op != "<" && op != "<=" {
			return fmt.Errorf("error rate threshold must use < or <=")
		}
		t.ErrorRate = f

	case "rps", "rate":
		f, err := strconv.ParseFloat(valueStr, 64)
		if err != nil {
			return fmt.Errorf("invalid RPS: %s", valueStr)
		}
		if op != ">" && op != ">=" {
			return fmt.Errorf("RPS threshold must use > or >=")
		}
		t.MinRPS = f

	default:
		return fmt.Errorf("unknown threshold metric: %s", metric)
	}

	return nil
}

// HasThresholds returns true if any thresholds are configured
func (t Thresholds) HasThresholds() bool {
	return t.P50 > 0 || t.P95 > 0 || t.P99 > 0 || t.MaxLatency > 0 || t.ErrorRate > 0 || t.MinRPS > 0
}

// ThresholdResult holds the result of evaluating a threshold
type ThresholdResult struct {
	Name     string
	Passed   bool
	Expected string
	Actual   string
}

// Evaluate checks every configured threshold against stats
func (t Thresholds) Evaluate(stats latency.Stats, rps float64) []ThresholdResult {
	var results []ThresholdResult

	latencyCheck := func(name string, limit, actual time.Duration) {
		if limit <= 0 {
			return
		}
		results = append(results, ThresholdResult{
			Name:     name,
			Passed:   actual < limit,
			Expected: "< " + limit.String(),
			Actual:   actual.String(),
		})
	}

	latencyCheck("p50", t.P50, stats.P50)
	latencyCheck("p95", t.P95, stats.P95)
	latencyCheck("p99", t.P99, stats.P99)
	latencyCheck("max", t.MaxLatency, stats.Max)

	if t.ErrorRate > 0 {
		rate := 0.0
		if stats.Count > 0 {
			rate = float64(stats.FailureCount) / float64(stats.Count)
		}
		results = append(results, ThresholdResult{
			Name:     "errors",
			Passed:   rate < t.ErrorRate,
			Expected: fmt.Sprintf("< %.2f%%", t.ErrorRate*100),
			Actual:   fmt.Sprintf("%.2f%%", rate*100),
		})
	}

	if t.MinRPS > 0 {
		results = append(results, ThresholdResult{
			Name:     "rps",
			Passed:   rps > t.MinRPS,
			Expected: fmt.Sprintf("> %.1f", t.MinRPS),
			Actual:   fmt.Sprintf("%.1f", rps),
		})
	}

	return results
}
