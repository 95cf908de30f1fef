package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store used only for tests; pkg/storage/sqlite
// carries the real implementation against rate_limit_state.
type memStore struct {
	mu     sync.Mutex
	states map[string]State
}

func newMemStore() *memStore {
	return &memStore{states: make(map[string]State)}
}

func (m *memStore) GetRateLimitState(_ context.Context, key string) (State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[key]
	return s, ok, nil
}

func (m *memStore) SaveRateLimitState(_ context.Context, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.Key] = state
	return nil
}

func TestSQLiteLimiterCheckIncrement(t *testing.T) {
	store := newMemStore()
	l := NewSQLiteLimiter(store, Quota{Limit: 2, Period: time.Minute}, Quota{Limit: 1, Period: time.Minute}, nil)
	ctx := context.Background()

	require.NoError(t, l.Check(ctx, KeyGlobal))
	require.NoError(t, l.Increment(ctx, KeyGlobal))
	require.NoError(t, l.Check(ctx, KeyGlobal))
	require.NoError(t, l.Increment(ctx, KeyGlobal))

	err := l.Check(ctx, KeyGlobal)
	var exceeded *ErrExceeded
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, KeyGlobal, exceeded.Key)
	assert.Greater(t, exceeded.RetryAfter, time.Duration(0))
}

func TestSQLiteLimiterInvariantSix(t *testing.T) {
	// Invariant 6: within any window of period_seconds, successful
	// increments for a key number no more than that key's quota.
	store := newMemStore()
	quota := Quota{Limit: 3, Period: time.Minute}
	l := NewSQLiteLimiter(store, quota, Quota{}, nil)
	ctx := context.Background()

	successes := 0
	for i := 0; i < 10; i++ {
		if l.Check(ctx, KeyGlobal) == nil {
			require.NoError(t, l.Increment(ctx, KeyGlobal))
			successes++
		}
	}
	assert.Equal(t, quota.Limit, successes)
}

func TestSQLiteLimiterPeriodBoundary(t *testing.T) {
	store := newMemStore()
	quota := Quota{Limit: 1, Period: 10 * time.Second}
	l := NewSQLiteLimiter(store, quota, Quota{}, nil)
	ctx := context.Background()

	base := time.Unix(1_700_000_000, 0)
	clock := base
	l.now = func() time.Time { return clock }

	require.NoError(t, l.Check(ctx, KeyGlobal))
	require.NoError(t, l.Increment(ctx, KeyGlobal))

	clock = base.Add(10*time.Second - time.Millisecond)
	require.Error(t, l.Check(ctx, KeyGlobal))

	clock = base.Add(10*time.Second + time.Millisecond)
	require.NoError(t, l.Check(ctx, KeyGlobal))
}

func TestSQLiteLimiterPerProviderUnsetIsUnlimited(t *testing.T) {
	store := newMemStore()
	l := NewSQLiteLimiter(store, Quota{Limit: 1, Period: time.Minute}, Quota{}, nil)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		require.NoError(t, l.Check(ctx, "iqiyi"))
		require.NoError(t, l.Increment(ctx, "iqiyi"))
	}
}

func TestSQLiteLimiterFallbackSeparateFromGlobal(t *testing.T) {
	store := newMemStore()
	l := NewSQLiteLimiter(store, Quota{Limit: 1, Period: time.Minute}, Quota{Limit: DefaultFallbackQuota, Period: time.Minute}, nil)
	ctx := context.Background()

	require.NoError(t, l.Increment(ctx, KeyGlobal))
	require.Error(t, l.Check(ctx, KeyGlobal))

	// Fallback quota is untouched by the global counter.
	require.NoError(t, l.CheckFallback(ctx, FallbackMatch))
	require.NoError(t, l.IncrementFallback(ctx, FallbackMatch))
	require.NoError(t, l.CheckFallback(ctx, FallbackSearch))
}

func TestSQLiteLimiterCorruptRowTreatedAsReset(t *testing.T) {
	store := newMemStore()
	store.states[KeyGlobal] = State{Key: KeyGlobal, RequestCount: 999, LastResetTime: time.Now(), Checksum: "tampered"}

	l := NewSQLiteLimiter(store, Quota{Limit: 1, Period: time.Minute}, Quota{}, nil)
	ctx := context.Background()

	require.NoError(t, l.Check(ctx, KeyGlobal))
}

func TestSQLiteLimiterIncrementAlsoBumpsGlobal(t *testing.T) {
	store := newMemStore()
	perProvider := map[string]Quota{"iqiyi": {Limit: 100, Period: time.Minute}}
	l := NewSQLiteLimiter(store, Quota{Limit: 2, Period: time.Minute}, Quota{}, perProvider)
	ctx := context.Background()

	require.NoError(t, l.Increment(ctx, "iqiyi"))
	require.NoError(t, l.Check(ctx, KeyGlobal))
	require.NoError(t, l.Increment(ctx, "iqiyi"))

	// The global counter, bumped once per "iqiyi" increment, is now at its
	// quota even though "iqiyi" itself is nowhere near its own limit.
	require.Error(t, l.Check(ctx, KeyGlobal))
}

func TestSQLiteLimiterIncrementGlobalKeyDoesNotDoubleCount(t *testing.T) {
	store := newMemStore()
	l := NewSQLiteLimiter(store, Quota{Limit: 1, Period: time.Minute}, Quota{}, nil)
	ctx := context.Background()

	require.NoError(t, l.Increment(ctx, KeyGlobal))
	require.Error(t, l.Check(ctx, KeyGlobal))
}

func TestSQLiteLimiterGetGlobalLimitStatus(t *testing.T) {
	store := newMemStore()
	l := NewSQLiteLimiter(store, Quota{Limit: 1, Period: time.Minute}, Quota{}, nil)
	ctx := context.Background()

	limited, wait, err := l.GetGlobalLimitStatus(ctx)
	require.NoError(t, err)
	assert.False(t, limited)
	assert.Zero(t, wait)

	require.NoError(t, l.Increment(ctx, KeyGlobal))

	limited, wait, err = l.GetGlobalLimitStatus(ctx)
	require.NoError(t, err)
	assert.True(t, limited)
	assert.Greater(t, wait, time.Duration(0))
}

func TestSQLiteLimiterGetGlobalLimitStatusUnlimited(t *testing.T) {
	store := newMemStore()
	l := NewSQLiteLimiter(store, Quota{}, Quota{}, nil)
	ctx := context.Background()

	limited, _, err := l.GetGlobalLimitStatus(ctx)
	require.NoError(t, err)
	assert.False(t, limited)
}

func TestDisabledAlwaysAllows(t *testing.T) {
	l := Disabled{}
	ctx := context.Background()
	for i := 0; i < 1000; i++ {
		require.NoError(t, l.Check(ctx, KeyGlobal))
		require.NoError(t, l.Increment(ctx, KeyGlobal))
	}
	require.NoError(t, l.CheckFallback(ctx, FallbackSearch))
	require.NoError(t, l.IncrementFallback(ctx, FallbackSearch))
	limited, _, err := l.GetGlobalLimitStatus(ctx)
	require.NoError(t, err)
	assert.False(t, limited)
}
