// Package backoff computes the wait before a step repeats.
//
// The runner asks a Strategy for the delay of the repeat that will carry
// iteration_count n (1 for the first repeat). Strategies are stateless and
// safe for concurrent use; the iteration count in the payload is the only
// memory a chain of repeats has.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a repeat.
type Strategy interface {
	// Delay returns how long to wait before the repeat carrying
	// iteration_count n. n is at least 1.
	Delay(n int) time.Duration
}

// Func adapts a function to Strategy.
type Func func(n int) time.Duration

// Delay calls f(n).
func (f Func) Delay(n int) time.Duration { return f(n) }

// Constant waits the same interval before every repeat.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// Linear grows the delay with the iteration count.
// Delay = min(Initial * n, Max).
type Linear struct {
	Initial time.Duration
	Max     time.Duration
}

// NewLinear creates a linear strategy.
func NewLinear(initial, maxDelay time.Duration) *Linear {
	return &Linear{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * n, capped at Max.
func (l *Linear) Delay(n int) time.Duration {
	return capped(float64(l.Initial)*float64(max(n, 1)), l.Max)
}

// Exponential doubles the delay on each repeat.
// Delay = min(Initial * 2^(n-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(n-1), capped at Max.
func (e *Exponential) Delay(n int) time.Duration {
	return capped(float64(e.Initial)*math.Pow(2, float64(max(n, 1)-1)), e.Max)
}

// Jitter spreads another strategy's delay uniformly over
// [(1-Fraction)*d, d], so repeats started together do not poll the same
// remote API in lockstep.
type Jitter struct {
	Base     Strategy
	Fraction float64
}

// WithJitter wraps base. fraction is clamped to [0, 1].
func WithJitter(base Strategy, fraction float64) *Jitter {
	return &Jitter{Base: base, Fraction: min(max(fraction, 0), 1)}
}

// Delay returns the base delay reduced by a random share of up to Fraction.
func (j *Jitter) Delay(n int) time.Duration {
	d := j.Base.Delay(n)
	if d <= 0 || j.Fraction == 0 {
		return d
	}
	cut := rand.Float64() * j.Fraction * float64(d) //nolint:gosec // jitter does not need crypto rand
	return d - time.Duration(cut)
}

// Default returns the strategy used for a step with the given repeat delay.
func Default(repeatDelay time.Duration) Strategy {
	return NewConstant(repeatDelay)
}

func capped(d float64, maxDelay time.Duration) time.Duration {
	if maxDelay > 0 && d > float64(maxDelay) {
		return maxDelay
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}
