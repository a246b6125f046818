package transfer

import (
	"math"
	"math/rand"
	"time"
)

// jitterFraction is the maximum share of the computed delay added as
// random jitter, so simultaneous retries against one host spread out.
const jitterFraction = 0.3

// Backoff computes the sleep between retry attempts.
type Backoff struct {
	// Base is the delay after the first failed attempt.
	Base time.Duration

	// Max caps the exponential growth. Jitter is added on top of the
	// capped value.
	Max time.Duration

	// Factor is the per-attempt growth factor.
	Factor float64

	// Jitter, when true, adds random(0, jitterFraction) of the delay.
	Jitter bool
}

// Delay returns the sleep after the given failed attempt. Attempts
// count from 1, so Delay(1) is Base and Delay(2) is Base*Factor.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(b.Base) * math.Pow(b.Factor, float64(attempt-1))
	if limit := float64(b.Max); b.Max > 0 && d > limit {
		d = limit
	}
	if b.Jitter {
		d += rand.Float64() * jitterFraction * d
	}
	return time.Duration(d)
}
