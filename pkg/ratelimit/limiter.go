// Package ratelimit provides the acquire() contract shared by every
// outbound HTTP call in the ingestion core: callers block until the
// instance's configured requests-per-second budget allows the next
// request, whether called sequentially or concurrently from one
// instance.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter wraps golang.org/x/time/rate with the vocabulary spec.md uses:
// a single acquire() call per outbound request.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a Limiter enforcing requestsPerSecond with a burst of 1,
// so a sequential caller observes the gap exactly and concurrent callers
// share the one token bucket.
func New(requestsPerSecond float64) *Limiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1)}
}

// Acquire blocks until the next request may proceed, or returns ctx.Err()
// if the context is canceled first.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}
