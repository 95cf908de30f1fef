package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hikari-danmu/server/pkg/storage"
)

// CreateEpisode inserts e using its already-synthesized id (see pkg/idgen);
// there is no autoincrement path for episodes.
func (s *SQLite) CreateEpisode(ctx context.Context, e storage.Episode) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO episode (id, source_id, episode_index, title, provider_episode_id, source_url, danmaku_file_path, comment_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SourceID, e.EpisodeIndex, e.Title, e.ProviderEpisodeID, e.SourceURL, e.DanmakuFilePath, e.CommentCount,
	)
	if err != nil {
		return fmt.Errorf("create episode %d: %w", e.ID, err)
	}
	return nil
}

func (s *SQLite) GetEpisode(ctx context.Context, id int64) (storage.Episode, error) {
	e, err := scanEpisode(s.db.QueryRowContext(ctx, episodeSelect+` WHERE id = ?`, id))
	if err != nil {
		return storage.Episode{}, fmt.Errorf("get episode %d: %w", id, err)
	}
	return e, nil
}

func (s *SQLite) FindEpisode(ctx context.Context, sourceID int64, episodeIndex int) (storage.Episode, bool, error) {
	e, err := scanEpisode(s.db.QueryRowContext(ctx,
		episodeSelect+` WHERE source_id = ? AND episode_index = ?`, sourceID, episodeIndex))
	if err == sql.ErrNoRows {
		return storage.Episode{}, false, nil
	}
	if err != nil {
		return storage.Episode{}, false, fmt.Errorf("find episode: %w", err)
	}
	return e, true, nil
}

func (s *SQLite) ListEpisodes(ctx context.Context, sourceID int64) ([]storage.Episode, error) {
	rows, err := s.db.QueryContext(ctx,
		episodeSelect+` WHERE source_id = ? ORDER BY episode_index`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	var out []storage.Episode
	for rows.Next() {
		e, err := scanEpisodeRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLite) UpdateEpisode(ctx context.Context, e storage.Episode) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE episode SET title = ?, provider_episode_id = ?, source_url = ?,
			danmaku_file_path = ?, comment_count = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		e.Title, e.ProviderEpisodeID, e.SourceURL, e.DanmakuFilePath, e.CommentCount, e.ID,
	)
	if err != nil {
		return fmt.Errorf("update episode %d: %w", e.ID, err)
	}
	return nil
}

func (s *SQLite) DeleteEpisode(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM episode WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete episode %d: %w", id, err)
	}
	return nil
}

const episodeSelect = `
	SELECT id, source_id, episode_index, title, provider_episode_id, source_url, danmaku_file_path, comment_count
	FROM episode`

func scanEpisode(row *sql.Row) (storage.Episode, error) {
	var e storage.Episode
	err := row.Scan(&e.ID, &e.SourceID, &e.EpisodeIndex, &e.Title, &e.ProviderEpisodeID,
		&e.SourceURL, &e.DanmakuFilePath, &e.CommentCount)
	return e, err
}

func scanEpisodeRows(rows *sql.Rows) (storage.Episode, error) {
	var e storage.Episode
	err := rows.Scan(&e.ID, &e.SourceID, &e.EpisodeIndex, &e.Title, &e.ProviderEpisodeID,
		&e.SourceURL, &e.DanmakuFilePath, &e.CommentCount)
	return e, err
}
