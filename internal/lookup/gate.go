// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package lookup

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Gate serializes physical requests to one source with a minimum wall-clock
// interval between any two of them, independent of which keys are requested
// and of how many callers the concurrency limit admits. Built on a token
// bucket with burst 1, which makes the check-and-update of the last-request
// time atomic.
type Gate struct {
	limiter *rate.Limiter
}

// NewGate returns a gate enforcing minInterval between requests. A
// non-positive interval yields a gate that never waits.
func NewGate(minInterval time.Duration) *Gate {
	if minInterval <= 0 {
		return &Gate{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Gate{limiter: rate.NewLimiter(rate.Every(minInterval), 1)}
}

// Wait blocks until the next request slot opens or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}
