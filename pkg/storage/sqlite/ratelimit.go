package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hikari-danmu/server/pkg/ratelimit"
)

// GetRateLimitState and SaveRateLimitState implement ratelimit.Store,
// letting pkg/ratelimit.SQLiteLimiter persist its counters here without
// pkg/ratelimit importing pkg/storage.
func (s *SQLite) GetRateLimitState(ctx context.Context, key string) (ratelimit.State, bool, error) {
	var st ratelimit.State
	st.Key = key
	err := s.db.QueryRowContext(ctx, `
		SELECT request_count, last_reset_time, checksum FROM rate_limit_state WHERE key = ?`, key,
	).Scan(&st.RequestCount, &st.LastResetTime, &st.Checksum)
	if err == sql.ErrNoRows {
		return ratelimit.State{}, false, nil
	}
	if err != nil {
		return ratelimit.State{}, false, fmt.Errorf("get rate limit state: %w", err)
	}
	return st, true, nil
}

func (s *SQLite) SaveRateLimitState(ctx context.Context, state ratelimit.State) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rate_limit_state (key, request_count, last_reset_time, checksum)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			request_count = excluded.request_count,
			last_reset_time = excluded.last_reset_time,
			checksum = excluded.checksum`,
		state.Key, state.RequestCount, state.LastResetTime, state.Checksum,
	)
	if err != nil {
		return fmt.Errorf("save rate limit state: %w", err)
	}
	return nil
}
