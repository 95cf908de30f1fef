package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hikari-danmu/server/pkg/storage"
)

func (s *SQLite) CreateAnimeSource(ctx context.Context, src storage.AnimeSource) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO anime_source (anime_id, provider_name, media_id, source_order, is_favorited, incremental_refresh_failures)
		VALUES (?, ?, ?, ?, ?, ?)`,
		src.AnimeID, src.ProviderName, src.MediaID, src.SourceOrder, src.IsFavorited, src.IncrementalRefreshFailures,
	)
	if err != nil {
		return 0, fmt.Errorf("create anime source: %w", err)
	}
	return result.LastInsertId()
}

func (s *SQLite) GetAnimeSource(ctx context.Context, id int64) (storage.AnimeSource, error) {
	src, err := scanAnimeSource(s.db.QueryRowContext(ctx, `
		SELECT id, anime_id, provider_name, media_id, source_order, is_favorited, incremental_refresh_failures
		FROM anime_source WHERE id = ?`, id))
	if err != nil {
		return storage.AnimeSource{}, fmt.Errorf("get anime source %d: %w", id, err)
	}
	return src, nil
}

func (s *SQLite) FindAnimeSourceByProvider(ctx context.Context, providerName, mediaID string) (storage.AnimeSource, bool, error) {
	src, err := scanAnimeSource(s.db.QueryRowContext(ctx, `
		SELECT id, anime_id, provider_name, media_id, source_order, is_favorited, incremental_refresh_failures
		FROM anime_source WHERE provider_name = ? AND media_id = ?`, providerName, mediaID))
	if err == sql.ErrNoRows {
		return storage.AnimeSource{}, false, nil
	}
	if err != nil {
		return storage.AnimeSource{}, false, fmt.Errorf("find anime source: %w", err)
	}
	return src, true, nil
}

func (s *SQLite) ListAnimeSources(ctx context.Context, animeID int64) ([]storage.AnimeSource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, anime_id, provider_name, media_id, source_order, is_favorited, incremental_refresh_failures
		FROM anime_source WHERE anime_id = ? ORDER BY source_order`, animeID)
	if err != nil {
		return nil, fmt.Errorf("list anime sources: %w", err)
	}
	defer rows.Close()

	var out []storage.AnimeSource
	for rows.Next() {
		var src storage.AnimeSource
		if err := rows.Scan(&src.ID, &src.AnimeID, &src.ProviderName, &src.MediaID,
			&src.SourceOrder, &src.IsFavorited, &src.IncrementalRefreshFailures); err != nil {
			return nil, fmt.Errorf("scan anime source: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

func (s *SQLite) UpdateAnimeSource(ctx context.Context, src storage.AnimeSource) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE anime_source SET provider_name = ?, media_id = ?, source_order = ?,
			is_favorited = ?, incremental_refresh_failures = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		src.ProviderName, src.MediaID, src.SourceOrder, src.IsFavorited, src.IncrementalRefreshFailures, src.ID,
	)
	if err != nil {
		return fmt.Errorf("update anime source %d: %w", src.ID, err)
	}
	return nil
}

// SetFavoritedSource clears any previously favorited source for animeID
// and marks sourceID, in one transaction, honoring the at-most-one
// favorited source invariant.
func (s *SQLite) SetFavoritedSource(ctx context.Context, animeID, sourceID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE anime_source SET is_favorited = 0 WHERE anime_id = ?`, animeID); err != nil {
		return fmt.Errorf("clear favorited: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE anime_source SET is_favorited = 1 WHERE id = ? AND anime_id = ?`, sourceID, animeID); err != nil {
		return fmt.Errorf("set favorited: %w", err)
	}
	return tx.Commit()
}

func (s *SQLite) DeleteAnimeSource(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM anime_source WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete anime source %d: %w", id, err)
	}
	return nil
}

// NextSourceOrder returns the next monotonic source_order for animeID.
func (s *SQLite) NextSourceOrder(ctx context.Context, animeID int64) (int, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(source_order) FROM anime_source WHERE anime_id = ?`, animeID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("next source order: %w", err)
	}
	return int(max.Int64) + 1, nil
}

func scanAnimeSource(row *sql.Row) (storage.AnimeSource, error) {
	var src storage.AnimeSource
	err := row.Scan(&src.ID, &src.AnimeID, &src.ProviderName, &src.MediaID,
		&src.SourceOrder, &src.IsFavorited, &src.IncrementalRefreshFailures)
	return src, err
}
