// Package latency records per-call durations and outcomes and computes
// aggregate statistics including interpolated percentiles.
package latency

import (
	"maps"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	// histogram bounds in microseconds: 1us to 60s, 3 significant digits
	histogramMin    = 1
	histogramMax    = 60_000_000
	histogramDigits = 3
)

// Sample is a single recorded call
type Sample struct {
	Duration   time.Duration
	StatusCode int
	Timestamp  time.Time
}

// Success reports whether the call counts as successful. Status 0 marks a
// transport failure.
func (s Sample) Success() bool {
	return IsSuccess(s.StatusCode)
}

// IsSuccess is the success predicate used by the tracker
func IsSuccess(status int) bool {
	return status > 0 && status < 400
}

// Stats summarises recorded samples
type Stats struct {
	Count          int
	SuccessCount   int
	FailureCount   int
	Avg            time.Duration
	Min            time.Duration
	Max            time.Duration
	P50            time.Duration
	P95            time.Duration
	P99            time.Duration
	CountsByStatus map[int]int
}

// SuccessRate returns the fraction of successful samples
func (s Stats) SuccessRate() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(s.Count)
}

// Bar is one bucket of the latency distribution
type Bar struct {
	From  time.Duration
	To    time.Duration
	Count int64
}

// Tracker collects samples for the lifetime of a client. Samples are never
// pruned automatically; call Reset to release them.
type Tracker struct {
	mu sync.Mutex

	samples  []Sample
	total    time.Duration
	min      time.Duration
	max      time.Duration
	success  int
	failure  int
	byStatus map[int]int

	histogram *hdrhistogram.Histogram
	now       func() time.Time
}

// Option configures a Tracker
type Option func(*Tracker)

// WithClock sets the time source for sample timestamps
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker creates an empty tracker
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		byStatus:  make(map[int]int),
		histogram: hdrhistogram.New(histogramMin, histogramMax, histogramDigits),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record appends a sample
func (t *Tracker) Record(d time.Duration, statusCode int) {
	if d < 0 {
		d = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.samples = append(t.samples, Sample{Duration: d, StatusCode: statusCode, Timestamp: t.now()})
	t.total += d
	if len(t.samples) == 1 || d < t.min {
		t.min = d
	}
	if d > t.max {
		t.max = d
	}
	t.byStatus[statusCode]++
	if IsSuccess(statusCode) {
		t.success++
	} else {
		t.failure++
	}

	us := d.Microseconds()
	if us < histogramMin {
		us = histogramMin
	}
	if us > histogramMax {
		us = histogramMax
	}
	_ = t.histogram.RecordValue(us)
}

// Stats computes aggregate statistics over every recorded sample
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	durations := make([]time.Duration, len(t.samples))
	for i, s := range t.samples {
		durations[i] = s.Duration
	}
	stats := Stats{
		Count:          len(t.samples),
		SuccessCount:   t.success,
		FailureCount:   t.failure,
		Min:            t.min,
		Max:            t.max,
		CountsByStatus: maps.Clone(t.byStatus),
	}
	total := t.total
	t.mu.Unlock()

	if stats.Count == 0 {
		return stats
	}

	slices.Sort(durations)
	stats.Avg = total / time.Duration(stats.Count)
	stats.P50 = Percentile(durations, 0.50)
	stats.P95 = Percentile(durations, 0.95)
	stats.P99 = Percentile(durations, 0.99)
	return stats
}

// Samples returns a copy of the recorded samples in recording order
func (t *Tracker) Samples() []Sample {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.samples)
}

// Len returns the number of recorded samples
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.samples)
}

// Distribution returns histogram buckets with at least one sample
func (t *Tracker) Distribution() []Bar {
	t.mu.Lock()
	defer t.mu.Unlock()

	var bars []Bar
	for _, b := range t.histogram.Distribution() {
		if b.Count == 0 {
			continue
		}
		bars = append(bars, Bar{
			From:  time.Duration(b.From) * time.Microsecond,
			To:    time.Duration(b.To) * time.Microsecond,
			Count: b.Count,
		})
	}
	return bars
}

// Reset clears all accumulated state
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.samples = nil
	t.total = 0
	t.min = 0
	t.max = 0
	t.success = 0
	t.failure = 0
	t.byStatus = make(map[int]int)
	t.histogram.Reset()
}

// Percentile interpolates the value at p (0..1) from ascending sorted
// durations. idx = p*(n-1); the result blends the two neighbouring ranks by
// the fractional part of idx.
func Percentile(sorted []time.Duration, p float64) time.Duration {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	idx := p * float64(n-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo] + time.Duration(math.Round(float64(sorted[hi]-sorted[lo])*frac))
}
