// Package ratelimit implements the persisted, period-reset quota counters
// described for RateLimitState: global, per-provider, and fallback keys
// that reset request_count to 0 once period_seconds has elapsed since
// last_reset_time. This is deliberately not a token bucket — bursts within
// a still-under-quota window are smoothed one layer up, in pkg/scraper's
// HTTP wrapper, using golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Well-known counted keys, mirrored from the spec's RateLimitState.key enum.
const (
	KeyGlobal         = "__global__"
	KeyFallbackMatch  = "__fallback_match__"
	KeyFallbackSearch = "__fallback_search__"
)

// DefaultFallbackQuota is the shared cap between match-fallback and
// search-fallback, used to prevent runaway auto-imports.
const DefaultFallbackQuota = 50

// ErrExceeded is returned by Check when key's counter is at or above its
// quota for the current period. The worker boundary converts this into a
// paused task rather than a failure.
type ErrExceeded struct {
	Key        string
	RetryAfter time.Duration
}

func (e *ErrExceeded) Error() string {
	return fmt.Sprintf("rate limit exceeded for %q, retry after %s", e.Key, e.RetryAfter)
}

// Limiter is satisfied by SQLiteLimiter (persisted, real quotas) and
// Disabled (always allows), selected at runtime by config per the spec's
// Open Question — callers depend only on this interface.
type Limiter interface {
	// Check fails with *ErrExceeded if key's counter is at or above its
	// quota within the current period. It does not consume quota.
	Check(ctx context.Context, key string) error
	// Increment records one consumed unit against key, and — unless key is
	// itself KeyGlobal — against the global counter too, since every
	// counted request also counts against the shared global quota. Call
	// only after a successful Check and a successful provider call.
	Increment(ctx context.Context, key string) error
	// CheckFallback is Check against the fallback-quota keys; it never
	// touches the global or per-provider counters.
	CheckFallback(ctx context.Context, kind FallbackKind) error
	// IncrementFallback is Increment for a fallback key.
	IncrementFallback(ctx context.Context, kind FallbackKind) error
	// GetGlobalLimitStatus reports whether the global counter is at or
	// above quota for the current period, and if so how long remains
	// until the period resets and it clears.
	GetGlobalLimitStatus(ctx context.Context) (limited bool, wait time.Duration, err error)
}

// FallbackKind selects which fallback counter a match/search auto-trigger
// consumes against.
type FallbackKind int

const (
	FallbackMatch FallbackKind = iota
	FallbackSearch
)

func (k FallbackKind) key() string {
	if k == FallbackSearch {
		return KeyFallbackSearch
	}
	return KeyFallbackMatch
}

// Quota describes one counted key's limit and period. A Limit of 0 means
// unlimited ("∞" in the spec).
type Quota struct {
	Limit  int
	Period time.Duration
}

func (q Quota) unlimited() bool {
	return q.Limit <= 0
}
