package configstore

import (
	"context"
	"sync"

	"github.com/hikari-danmu/server/pkg/cache"
	"github.com/hikari-danmu/server/pkg/metrics"
)

const settingsCacheKey = "settings"

// ConfigStore caches the full Settings snapshot in-process and rebuilds it
// on any Set, matching the spec's "cached reads and a Set that invalidates
// the cache" requirement. A single TTLCache slot with one key is simpler
// than a per-key cache since Load always needs every row at once.
type ConfigStore struct {
	store Store

	mu    sync.Mutex
	cache *cache.TTLCache[string, Settings]
}

// New wraps store with an in-process cache.
func New(store Store) *ConfigStore {
	return &ConfigStore{
		store: store,
		cache: cache.NewTTL[string, Settings](),
	}
}

// Load returns the current Settings, reading through to store only when
// the cache is empty.
func (c *ConfigStore) Load(ctx context.Context) (Settings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.cache.Get(settingsCacheKey); ok {
		metrics.RecordCacheHit("settings")
		return s, nil
	}
	metrics.RecordCacheMiss("settings")

	rows, err := c.store.AllConfig(ctx)
	if err != nil {
		return Settings{}, err
	}
	s := fromMap(rows, Defaults())
	c.cache.Set(settingsCacheKey, s, 0)
	return s, nil
}

// Set persists one key/value pair and invalidates the cached snapshot so
// the next Load reflects it.
func (c *ConfigStore) Set(ctx context.Context, key, value string) error {
	if err := c.store.SetConfig(ctx, key, value); err != nil {
		return err
	}
	c.mu.Lock()
	c.cache.Delete(settingsCacheKey)
	c.mu.Unlock()
	return nil
}

// Get returns one raw key's value, falling through to store directly — it
// does not participate in the Settings snapshot cache, since control-API
// single-key reads are rare compared to Load's hot path.
func (c *ConfigStore) Get(ctx context.Context, key string) (string, bool, error) {
	return c.store.GetConfig(ctx, key)
}
