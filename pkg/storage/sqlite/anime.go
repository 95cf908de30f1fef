package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hikari-danmu/server/pkg/storage"
)

func (s *SQLite) CreateAnime(ctx context.Context, a storage.Anime) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO anime (title, type, season, year, image_url, local_image_path, normalized_title)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.Title, a.Type, a.Season, a.Year, a.ImageURL, a.LocalImagePath, normalizedTitleKey(a.Title),
	)
	if err != nil {
		return 0, fmt.Errorf("create anime: %w", err)
	}
	return result.LastInsertId()
}

func (s *SQLite) GetAnime(ctx context.Context, id int64) (storage.Anime, error) {
	var a storage.Anime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, type, season, year, image_url, local_image_path
		FROM anime WHERE id = ?`, id,
	).Scan(&a.ID, &a.Title, &a.Type, &a.Season, &a.Year, &a.ImageURL, &a.LocalImagePath)
	if err != nil {
		return storage.Anime{}, fmt.Errorf("get anime %d: %w", id, err)
	}
	return a, nil
}

// FindAnime looks an Anime up by its identity key (normalized title,
// season, year) — the uniqueness invariant the schema enforces. The title
// is normalized here, so callers may pass it raw.
func (s *SQLite) FindAnime(ctx context.Context, normalizedTitle string, season, year int) (storage.Anime, bool, error) {
	var a storage.Anime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, type, season, year, image_url, local_image_path
		FROM anime WHERE normalized_title = ? AND season = ? AND year = ?`,
		normalizedTitleKey(normalizedTitle), season, year,
	).Scan(&a.ID, &a.Title, &a.Type, &a.Season, &a.Year, &a.ImageURL, &a.LocalImagePath)
	if err == sql.ErrNoRows {
		return storage.Anime{}, false, nil
	}
	if err != nil {
		return storage.Anime{}, false, fmt.Errorf("find anime: %w", err)
	}
	return a, true, nil
}

func (s *SQLite) UpdateAnime(ctx context.Context, a storage.Anime) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE anime SET title = ?, type = ?, season = ?, year = ?, image_url = ?,
			local_image_path = ?, normalized_title = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		a.Title, a.Type, a.Season, a.Year, a.ImageURL, a.LocalImagePath, normalizedTitleKey(a.Title), a.ID,
	)
	if err != nil {
		return fmt.Errorf("update anime %d: %w", a.ID, err)
	}
	return nil
}

// DeleteAnime relies on ON DELETE CASCADE to remove its sources, episodes,
// metadata, and aliases; the caller is responsible for sweeping the
// orphaned danmaku files via pkg/danmaku before or after this call.
func (s *SQLite) DeleteAnime(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM anime WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete anime %d: %w", id, err)
	}
	return nil
}

func (s *SQLite) ListAnime(ctx context.Context) ([]storage.Anime, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, type, season, year, image_url, local_image_path FROM anime ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("list anime: %w", err)
	}
	defer rows.Close()

	var out []storage.Anime
	for rows.Next() {
		var a storage.Anime
		if err := rows.Scan(&a.ID, &a.Title, &a.Type, &a.Season, &a.Year, &a.ImageURL, &a.LocalImagePath); err != nil {
			return nil, fmt.Errorf("scan anime: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
