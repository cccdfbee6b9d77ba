package dispatch

import (
	"math/rand"
	"time"
)

// backoff returns the pause before retry number attempt (1-based): exponential
// growth from base, capped at max, with up to 25% random jitter so retries
// from concurrent tickets do not align.
func backoff(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if max <= 0 {
		max = 30 * time.Second
	}

	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			d = max
			break
		}
	}
	if d > max {
		d = max
	}
	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	return d + jitter
}
