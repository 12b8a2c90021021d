package actor

import (
	"math"
	"math/rand"
	"time"
)

// RetryConfig defines bounded retry behavior for external calls made while
// executing effects.
type RetryConfig struct {
	MaxAttempts   int           // total attempts including the first
	InitialDelay  time.Duration // delay before the first retry
	MaxDelay      time.Duration // cap on any single delay
	BackoffFactor float64       // multiplier between attempts
	Jitter        bool          // randomize to avoid thundering herd
}

// DefaultRetryConfig matches the bounded policy used across the coordinator:
// a handful of attempts, exponential spacing, capped delay.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:   3,
	InitialDelay:  100 * time.Millisecond,
	MaxDelay:      10 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        true,
}

// Delay returns the wait before the given retry attempt (1-based). Attempt 0
// returns zero.
func (c RetryConfig) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	d := float64(c.InitialDelay) * math.Pow(c.BackoffFactor, float64(attempt-1))
	if max := float64(c.MaxDelay); d > max {
		d = max
	}
	if c.Jitter {
		// up to 25% spread, always positive
		d = d * (0.75 + 0.5*rand.Float64()) //nolint:gosec // non-cryptographic jitter
	}
	return time.Duration(d)
}
