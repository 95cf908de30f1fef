package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// State is the persisted shape of one RateLimitState row.
type State struct {
	Key           string
	RequestCount  int
	LastResetTime time.Time
	Checksum      string
}

// Store is the persistence boundary SQLiteLimiter needs; pkg/storage's
// sqlite package implements it against the rate_limit_state table.
type Store interface {
	GetRateLimitState(ctx context.Context, key string) (State, bool, error)
	SaveRateLimitState(ctx context.Context, state State) error
}

// checksum binds a state row's fields together so a partially-written row
// or manual edit is detectable. It is not a security mechanism, only a
// corruption detector; the recovery strategy on mismatch is to treat the
// row as reset rather than reject it.
func checksum(key string, count int, resetTime time.Time) string {
	h := sha256.New()
	h.Write([]byte(key))
	h.Write([]byte(strconv.Itoa(count)))
	h.Write([]byte(resetTime.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(h.Sum(nil))
}

func (s State) valid() bool {
	return s.Checksum == checksum(s.Key, s.RequestCount, s.LastResetTime)
}

func newState(key string, now time.Time) State {
	s := State{Key: key, RequestCount: 0, LastResetTime: now}
	s.Checksum = checksum(s.Key, s.RequestCount, s.LastResetTime)
	return s
}
