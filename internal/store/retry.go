package store

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// nextRetryAtMs computes a bounded exponential backoff deadline for the
// attempts-th retry of a background job (reverse-geocode, media annotation,
// cloud media upload, semantic parse), per §10's "bounded exponential
// backoff using their own attempts/next_retry_at_ms/last_error columns".
func nextRetryAtMs(nowMs int64, attempts int) int64 {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.Multiplier = 2
	b.MaxInterval = 10 * time.Minute
	b.RandomizationFactor = 0

	delay := b.InitialInterval
	for i := 1; i < attempts; i++ {
		scaled := time.Duration(float64(delay) * b.Multiplier)
		if scaled > b.MaxInterval {
			scaled = b.MaxInterval
		}
		delay = scaled
	}
	return nowMs + delay.Milliseconds()
}
