package utils

import (
	"math/rand/v2"
	"time"
)

// Backoff decides how long to pause before retry number attempt (starting at 1).
type Backoff interface {
	Next(attempt int) time.Duration
}

// ConstantBackoff waits the same Delay before every retry.
type ConstantBackoff struct {
	Delay time.Duration
}

// Next returns the fixed delay.
func (b ConstantBackoff) Next(int) time.Duration {
	return b.Delay
}

// ExponentialBackoff doubles Base on every attempt up to Max, with optional jitter.
type ExponentialBackoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter bool
}

// Next returns the delay for attempt.
func (b ExponentialBackoff) Next(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > 30 {
		shift = 30
	}

	delay := b.Base * time.Duration(1<<uint(shift))
	if b.Max > 0 && (delay > b.Max || delay <= 0) {
		delay = b.Max
	}

	if b.Jitter {
		// spread retries over [0.75, 1.25) of the nominal delay
		jitter := time.Duration(float64(delay) * 0.5 * rand.Float64())
		delay = time.Duration(float64(delay)*0.75) + jitter
	}
	return delay
}

// NewBackoff returns the policy registered under name, defaulting to constant.
func NewBackoff(name string, base time.Duration) Backoff {
	if name == BackoffExponential {
		return ExponentialBackoff{Base: base, Max: time.Minute, Jitter: true}
	}
	return ConstantBackoff{Delay: base}
}
