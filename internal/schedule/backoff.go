package schedule

import (
	"math/rand"
	"time"
)

// jitterFraction spreads retries ±20% around the exponential delay so
// jobs that failed together do not all retry together.
const jitterFraction = 0.2

// Backoff returns the delay before retry number failures (1-based):
// base × 2^(failures-1), with jitter applied.
func Backoff(failures int, base time.Duration) time.Duration {
	if failures < 1 {
		failures = 1
	}

	delay := base << uint(failures-1)
	if delay < base {
		// Shift overflow on absurd failure counts.
		delay = base
	}

	jitter := 1 - jitterFraction + 2*jitterFraction*rand.Float64()
	return time.Duration(float64(delay) * jitter)
}
