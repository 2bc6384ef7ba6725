package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay that precedes the next attempt. attempt is the
// 1-based number of the attempt that just failed.
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Exponential grows the delay by Factor after every attempt and adds up to
// JitterRatio of random extra time:
//
//	delay = Base * Factor^(attempt-1) * (1 + U(0, JitterRatio))
type Exponential struct {
	Base        time.Duration
	Factor      float64
	JitterRatio float64
	Max         time.Duration // 0 means uncapped

	// Rand returns a value in [0, 1). Nil uses math/rand/v2.
	Rand func() float64
}

// Delay implements Strategy
func (e Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := e.Factor
	if factor < 1 {
		factor = 1
	}

	delay := float64(e.Base) * math.Pow(factor, float64(attempt-1))
	if e.JitterRatio > 0 {
		r := rand.Float64
		if e.Rand != nil {
			r = e.Rand
		}
		delay *= 1 + r()*e.JitterRatio
	}

	if math.IsInf(delay, 0) || delay > float64(math.MaxInt64) {
		delay = float64(math.MaxInt64)
	}
	d := time.Duration(delay)
	if e.Max > 0 && d > e.Max {
		d = e.Max
	}
	return d
}

// Bounds returns the smallest and largest delay Delay can return for attempt
func (e Exponential) Bounds(attempt int) (time.Duration, time.Duration) {
	lo := Exponential{Base: e.Base, Factor: e.Factor, Max: e.Max}.Delay(attempt)
	hi := Exponential{Base: e.Base, Factor: e.Factor, Max: e.Max, JitterRatio: e.JitterRatio, Rand: func() float64 { return 1 }}.Delay(attempt)
	return lo, hi
}

// Fixed waits the same Interval before every attempt
type Fixed struct {
	Interval time.Duration
}

// Delay implements Strategy
func (f Fixed) Delay(int) time.Duration {
	return f.Interval
}
