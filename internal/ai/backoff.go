package ai

import (
	"errors"
	"math/rand"
	"time"
)

// RetryPolicy computes how long to wait after a failed attempt (1-based)
// before the next one.
type RetryPolicy func(err error, attempt int) time.Duration

// ExponentialBackoff doubles the base delay per attempt, adds up to 25%
// jitter, and caps the result at max. A server-suggested delay on the error
// takes precedence over the computed one, subject to the same cap.
func ExponentialBackoff(base, max time.Duration) RetryPolicy {
	return func(err error, attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}

		var delay time.Duration
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			delay = apiErr.RetryAfter
		} else {
			delay = base << uint(attempt)
			delay += time.Duration(rand.Int63n(int64(delay)/4 + 1))
		}

		if delay > max {
			delay = max
		}
		return delay
	}
}
