package api

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter throttles outbound API calls. A single instance is shared
// by every component that talks to the remote store (sync engine,
// watcher-triggered syncs, poll loop, filesystem mount) so the
// aggregate call rate stays inside the service's budget.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter enforcing qps calls per second
func NewRateLimiter(qps float64) *RateLimiter {
	if qps <= 0 {
		qps = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(qps), 1)}
}

// Acquire blocks until a call slot is available or ctx is done
func (r *RateLimiter) Acquire(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
