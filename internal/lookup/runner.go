// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package lookup

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = 500 * time.Millisecond
)

// Runner executes per-item lookups under a hard concurrency ceiling, retrying
// rate-limited and transient failures with exponential backoff. A Runner is
// stateless across calls and safe for concurrent use.
//
// An item that exhausts its retries, hits a permanent failure, or observes
// cancellation resolves to None: one item's failure never aborts the batch.
type Runner[K, V any] struct {
	// Workers is the admission gate: the number of lookups in flight at
	// once, regardless of how many items are submitted (default 1).
	Workers int

	// MaxRetries is the total attempt budget per item (default 3).
	MaxRetries int

	// BaseDelay is the first backoff wait; it doubles per retry without a
	// cap (default 500ms).
	BaseDelay time.Duration

	// Sleep waits for d or until ctx is done. Tests inject a fake to
	// verify backoff without wall-clock delays.
	Sleep func(ctx context.Context, d time.Duration) error

	// Logger receives one advisory event per attempt.
	Logger zerolog.Logger
}

// Run looks up every item and returns results in input order. A bounded pool
// of workers pulls items and pushes (index, result) pairs; reassembly by
// index keeps output order independent of completion order.
func (r *Runner[K, V]) Run(ctx context.Context, items []K, fn func(ctx context.Context, item K) (V, error)) []Option[V] {
	results := make([]Option[V], len(items))
	if len(items) == 0 {
		return results
	}

	workers := r.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(items) {
		workers = len(items)
	}

	type indexed struct {
		idx int
		res Option[V]
	}

	work := make(chan int)
	out := make(chan indexed)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range work {
				out <- indexed{idx: idx, res: r.attempt(ctx, items[idx], fn)}
			}
		}()
	}

	go func() {
		defer close(work)
		for i := range items {
			select {
			case work <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(out)
	}()

	for ir := range out {
		results[ir.idx] = ir.res
	}
	return results
}

// attempt drives one item through the retry state machine: each attempt ends
// in success, a classified failure with backoff, or a terminal no-result.
func (r *Runner[K, V]) attempt(ctx context.Context, item K, fn func(ctx context.Context, item K) (V, error)) Option[V] {
	maxRetries := r.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	backoff := r.BaseDelay
	if backoff <= 0 {
		backoff = defaultBaseDelay
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	start := time.Now()
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			return None[V]()
		}

		v, err := fn(ctx, item)
		if err == nil {
			r.Logger.Debug().
				Int("attempt", attempt).
				Dur("elapsed", time.Since(start)).
				Msg("lookup succeeded")
			return Some(v)
		}

		var rle *RateLimitedError
		var pe *PermanentError
		switch {
		case errors.As(err, &pe):
			r.Logger.Warn().Err(err).Int("attempt", attempt).Msg("permanent failure, not retrying")
			return None[V]()

		case errors.As(err, &rle):
			wait := backoff
			if rle.RetryAfter > wait {
				wait = rle.RetryAfter
			}
			r.Logger.Warn().
				Int("attempt", attempt).
				Dur("wait", wait).
				Dur("elapsed", time.Since(start)).
				Msg("rate limited")
			if attempt == maxRetries {
				break
			}
			if sleep(ctx, wait) != nil {
				return None[V]()
			}
			backoff *= 2

		default:
			r.Logger.Debug().
				Err(err).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("transient failure")
			if attempt == maxRetries {
				break
			}
			if sleep(ctx, backoff) != nil {
				return None[V]()
			}
			backoff *= 2
		}
	}

	r.Logger.Debug().Int("attempts", maxRetries).Msg("retries exhausted, no result")
	return None[V]()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
