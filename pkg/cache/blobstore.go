package cache

import (
	"context"
	"time"
)

// BlobStore is the persisted/networked counterpart of TTLCache: a
// string-keyed JSON blob store with per-key TTL, used for search-session
// result sets, alias lists, episode-mapping overlays, and fallback-search
// progress records (spec's "Cache" entity). Implementations: RedisStore
// (networked) and BadgerStore (embedded, crash-safe).
type BlobStore interface {
	// Get returns the raw JSON blob stored under key, or ok=false if
	// absent or expired.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value under key with the given TTL. A non-positive ttl
	// means the entry never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key unconditionally; a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases any underlying connection/handle.
	Close() error
}
