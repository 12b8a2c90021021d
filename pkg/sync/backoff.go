package sync

import "time"

// RetryPolicy is the sync retry schedule: doubling delays from Base up to
// Cap, for at most MaxAttempts attempts. The defaults climb steeply and
// settle at the cap after roughly eight attempts.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
}

// DefaultRetryPolicy matches the reference schedule: ten attempts topping
// out at a hundred seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 10,
		Base:        500 * time.Millisecond,
		Cap:         100 * time.Second,
	}
}

// Delay returns the wait before the given attempt, 1-based.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.Cap {
			return p.Cap
		}
	}
	if d > p.Cap {
		return p.Cap
	}
	return d
}
