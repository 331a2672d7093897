// Package ratelimit provides fixed-window request counters keyed by client.
package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether the caller identified by key may proceed.
// When the call is refused, retryAfter reports how long until the window resets.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (allowed bool, retryAfter time.Duration, err error)
}
