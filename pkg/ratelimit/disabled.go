package ratelimit

import (
	"context"
	"time"
)

// Disabled is a Limiter that always allows and never persists anything,
// grounded on the original's rate_limiter_disabled.py. Useful for tests
// and for deployments that opt out of quota enforcement entirely.
type Disabled struct{}

func (Disabled) Check(context.Context, string) error { return nil }

func (Disabled) Increment(context.Context, string) error { return nil }

func (Disabled) CheckFallback(context.Context, FallbackKind) error { return nil }

func (Disabled) IncrementFallback(context.Context, FallbackKind) error { return nil }

func (Disabled) GetGlobalLimitStatus(context.Context) (bool, time.Duration, error) {
	return false, 0, nil
}
