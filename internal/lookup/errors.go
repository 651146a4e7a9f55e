// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package lookup

import (
	"fmt"
	"time"
)

// RateLimitedError reports that the source rejected a request for rate
// reasons. RetryAfter carries the server's wait hint when it supplies one;
// the runner waits max(hint, current backoff) before the next attempt.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// PermanentError wraps a failure that retrying cannot fix, such as a
// malformed request. The runner resolves the item to absent immediately.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent marks err as not retryable. A nil err returns nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Any error that is neither RateLimitedError nor PermanentError is treated
// as transient and retried with plain exponential backoff.
