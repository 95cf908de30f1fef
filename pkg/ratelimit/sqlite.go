package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/hikari-danmu/server/pkg/metrics"
)

// SQLiteLimiter is the persisted Limiter: counters survive process
// restarts, and a checksum on each row detects tampering or a
// partially-written row, in which case the row is treated as reset.
//
// There is no in-memory cache of counts — every Increment is one DB
// transaction — so a multi-process deployment stays correct, only
// slightly more prone to racing a hair over quota between the Check and
// the Increment of two processes. A per-key in-process mutex narrows
// that window for the common single-process case without pretending to
// solve the distributed one.
type SQLiteLimiter struct {
	store    Store
	global   Quota
	fallback Quota
	perKey   map[string]Quota
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSQLiteLimiter builds a limiter backed by store. global applies to
// KeyGlobal, fallback applies to both fallback keys, and perProvider
// supplies a per-key override (absent ⇒ unlimited) keyed by provider name.
func NewSQLiteLimiter(store Store, global, fallback Quota, perProvider map[string]Quota) *SQLiteLimiter {
	perKey := make(map[string]Quota, len(perProvider))
	for k, v := range perProvider {
		perKey[k] = v
	}
	return &SQLiteLimiter{
		store:    store,
		global:   global,
		fallback: fallback,
		perKey:   perKey,
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (l *SQLiteLimiter) lockFor(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	return m
}

func (l *SQLiteLimiter) quotaFor(key string) Quota {
	switch key {
	case KeyGlobal:
		return l.global
	case KeyFallbackMatch, KeyFallbackSearch:
		return l.fallback
	default:
		if q, ok := l.perKey[key]; ok {
			return q
		}
		return Quota{} // unset ⇒ unlimited
	}
}

func (l *SQLiteLimiter) Check(ctx context.Context, key string) error {
	quota := l.quotaFor(key)
	if quota.unlimited() {
		return nil
	}

	lock := l.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	state, retryAfter, err := l.currentState(ctx, key, quota)
	if err != nil {
		return err
	}
	if state.RequestCount >= quota.Limit {
		metrics.RecordRateLimitCheck(key, true)
		return &ErrExceeded{Key: key, RetryAfter: retryAfter}
	}
	metrics.RecordRateLimitCheck(key, false)
	return nil
}

// Increment bumps key's counter and, unless key is already KeyGlobal, the
// global counter as well — one call into each key's own lock, never both
// locks held at once, so no ordering deadlock between two concurrent
// Increment calls for different keys.
func (l *SQLiteLimiter) Increment(ctx context.Context, key string) error {
	if err := l.incrementKey(ctx, key); err != nil {
		return err
	}
	if key != KeyGlobal {
		if err := l.incrementKey(ctx, KeyGlobal); err != nil {
			return err
		}
	}
	return nil
}

func (l *SQLiteLimiter) incrementKey(ctx context.Context, key string) error {
	quota := l.quotaFor(key)
	if quota.unlimited() {
		return nil
	}

	lock := l.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	state, _, err := l.currentState(ctx, key, quota)
	if err != nil {
		return err
	}
	state.RequestCount++
	state.Checksum = checksum(state.Key, state.RequestCount, state.LastResetTime)
	return l.store.SaveRateLimitState(ctx, state)
}

// GetGlobalLimitStatus reports whether the global counter is currently at
// or above quota, and if so how long remains until its period resets.
func (l *SQLiteLimiter) GetGlobalLimitStatus(ctx context.Context) (bool, time.Duration, error) {
	if l.global.unlimited() {
		return false, 0, nil
	}

	lock := l.lockFor(KeyGlobal)
	lock.Lock()
	defer lock.Unlock()

	state, retryAfter, err := l.currentState(ctx, KeyGlobal, l.global)
	if err != nil {
		return false, 0, err
	}
	if state.RequestCount >= l.global.Limit {
		return true, retryAfter, nil
	}
	return false, 0, nil
}

func (l *SQLiteLimiter) CheckFallback(ctx context.Context, kind FallbackKind) error {
	return l.Check(ctx, kind.key())
}

func (l *SQLiteLimiter) IncrementFallback(ctx context.Context, kind FallbackKind) error {
	return l.Increment(ctx, kind.key())
}

// currentState loads key's row, resetting it (in-memory, persisted on the
// next save) if the period has elapsed or the row is missing/corrupt. It
// also returns how long until such a reset would occur, for ErrExceeded's
// RetryAfter.
func (l *SQLiteLimiter) currentState(ctx context.Context, key string, quota Quota) (State, time.Duration, error) {
	now := l.now()

	state, ok, err := l.store.GetRateLimitState(ctx, key)
	if err != nil {
		return State{}, 0, err
	}

	if !ok || !state.valid() {
		state = newState(key, now)
		if err := l.store.SaveRateLimitState(ctx, state); err != nil {
			return State{}, 0, err
		}
		return state, quota.Period, nil
	}

	elapsed := now.Sub(state.LastResetTime)
	if elapsed >= quota.Period {
		state = newState(key, now)
		if err := l.store.SaveRateLimitState(ctx, state); err != nil {
			return State{}, 0, err
		}
		return state, quota.Period, nil
	}

	return state, quota.Period - elapsed, nil
}
