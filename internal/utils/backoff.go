package utils

import (
	"math/rand"
	"time"
)

// RetryBackoff returns the capped exponential backoff duration for the given
// attempt (0-based), with random jitter so concurrent retries spread out.
func RetryBackoff(attempt int) time.Duration {
	backoff := DefaultRetryBackoff << attempt
	if backoff > MaxRetryBackoff {
		backoff = MaxRetryBackoff
	}
	return backoff + time.Duration(rand.Int63n(int64(RetryJitter)))
}
