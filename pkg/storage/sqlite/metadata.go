package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hikari-danmu/server/pkg/storage"
)

func (s *SQLite) GetAnimeMetadata(ctx context.Context, animeID int64) (storage.AnimeMetadata, bool, error) {
	var m storage.AnimeMetadata
	m.AnimeID = animeID
	err := s.db.QueryRowContext(ctx, `
		SELECT tmdb_id, tmdb_episode_group_id, imdb_id, tvdb_id, douban_id, bangumi_id
		FROM anime_metadata WHERE anime_id = ?`, animeID,
	).Scan(&m.TmdbID, &m.TmdbEpisodeGroupID, &m.ImdbID, &m.TvdbID, &m.DoubanID, &m.BangumiID)
	if err == sql.ErrNoRows {
		return storage.AnimeMetadata{}, false, nil
	}
	if err != nil {
		return storage.AnimeMetadata{}, false, fmt.Errorf("get anime metadata: %w", err)
	}
	return m, true, nil
}

// UpsertAnimeMetadata inserts m or, if a row already exists, fills only the
// columns that are currently empty — the fill-if-empty discipline the
// spec requires lives here, at the write boundary, not in the caller.
func (s *SQLite) UpsertAnimeMetadata(ctx context.Context, m storage.AnimeMetadata) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO anime_metadata (anime_id, tmdb_id, tmdb_episode_group_id, imdb_id, tvdb_id, douban_id, bangumi_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(anime_id) DO UPDATE SET
			tmdb_id               = CASE WHEN anime_metadata.tmdb_id = '' THEN excluded.tmdb_id ELSE anime_metadata.tmdb_id END,
			tmdb_episode_group_id = CASE WHEN anime_metadata.tmdb_episode_group_id = '' THEN excluded.tmdb_episode_group_id ELSE anime_metadata.tmdb_episode_group_id END,
			imdb_id               = CASE WHEN anime_metadata.imdb_id = '' THEN excluded.imdb_id ELSE anime_metadata.imdb_id END,
			tvdb_id               = CASE WHEN anime_metadata.tvdb_id = '' THEN excluded.tvdb_id ELSE anime_metadata.tvdb_id END,
			douban_id             = CASE WHEN anime_metadata.douban_id = '' THEN excluded.douban_id ELSE anime_metadata.douban_id END,
			bangumi_id            = CASE WHEN anime_metadata.bangumi_id = '' THEN excluded.bangumi_id ELSE anime_metadata.bangumi_id END`,
		m.AnimeID, m.TmdbID, m.TmdbEpisodeGroupID, m.ImdbID, m.TvdbID, m.DoubanID, m.BangumiID,
	)
	if err != nil {
		return fmt.Errorf("upsert anime metadata: %w", err)
	}
	return nil
}

func (s *SQLite) GetAnimeAliases(ctx context.Context, animeID int64) (storage.AnimeAliases, bool, error) {
	var a storage.AnimeAliases
	a.AnimeID = animeID
	err := s.db.QueryRowContext(ctx, `
		SELECT name_en, name_jp, name_romaji, alias_cn_1, alias_cn_2, alias_cn_3
		FROM anime_aliases WHERE anime_id = ?`, animeID,
	).Scan(&a.NameEN, &a.NameJP, &a.NameRomaji, &a.AliasCN1, &a.AliasCN2, &a.AliasCN3)
	if err == sql.ErrNoRows {
		return storage.AnimeAliases{}, false, nil
	}
	if err != nil {
		return storage.AnimeAliases{}, false, fmt.Errorf("get anime aliases: %w", err)
	}
	return a, true, nil
}

func (s *SQLite) UpsertAnimeAliases(ctx context.Context, a storage.AnimeAliases) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO anime_aliases (anime_id, name_en, name_jp, name_romaji, alias_cn_1, alias_cn_2, alias_cn_3)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(anime_id) DO UPDATE SET
			name_en     = CASE WHEN anime_aliases.name_en = '' THEN excluded.name_en ELSE anime_aliases.name_en END,
			name_jp     = CASE WHEN anime_aliases.name_jp = '' THEN excluded.name_jp ELSE anime_aliases.name_jp END,
			name_romaji = CASE WHEN anime_aliases.name_romaji = '' THEN excluded.name_romaji ELSE anime_aliases.name_romaji END,
			alias_cn_1  = CASE WHEN anime_aliases.alias_cn_1 = '' THEN excluded.alias_cn_1 ELSE anime_aliases.alias_cn_1 END,
			alias_cn_2  = CASE WHEN anime_aliases.alias_cn_2 = '' THEN excluded.alias_cn_2 ELSE anime_aliases.alias_cn_2 END,
			alias_cn_3  = CASE WHEN anime_aliases.alias_cn_3 = '' THEN excluded.alias_cn_3 ELSE anime_aliases.alias_cn_3 END`,
		a.AnimeID, a.NameEN, a.NameJP, a.NameRomaji, a.AliasCN1, a.AliasCN2, a.AliasCN3,
	)
	if err != nil {
		return fmt.Errorf("upsert anime aliases: %w", err)
	}
	return nil
}

func (s *SQLite) FindTmdbEpisodeMapping(ctx context.Context, tmdbTVID, tmdbEpisodeGroupID string, customSeason, customEpisode int) (storage.TmdbEpisodeMapping, bool, error) {
	var m storage.TmdbEpisodeMapping
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tmdb_tv_id, tmdb_episode_group_id, custom_season, custom_episode, tmdb_season, tmdb_episode, absolute_episode
		FROM tmdb_episode_mapping
		WHERE tmdb_tv_id = ? AND tmdb_episode_group_id = ? AND custom_season = ? AND custom_episode = ?`,
		tmdbTVID, tmdbEpisodeGroupID, customSeason, customEpisode,
	).Scan(&m.ID, &m.TmdbTVID, &m.TmdbEpisodeGroupID, &m.CustomSeason, &m.CustomEpisode,
		&m.TmdbSeason, &m.TmdbEpisode, &m.AbsoluteEpisode)
	if err == sql.ErrNoRows {
		return storage.TmdbEpisodeMapping{}, false, nil
	}
	if err != nil {
		return storage.TmdbEpisodeMapping{}, false, fmt.Errorf("find tmdb episode mapping: %w", err)
	}
	return m, true, nil
}

func (s *SQLite) UpsertTmdbEpisodeMapping(ctx context.Context, m storage.TmdbEpisodeMapping) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tmdb_episode_mapping
			(tmdb_tv_id, tmdb_episode_group_id, custom_season, custom_episode, tmdb_season, tmdb_episode, absolute_episode)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tmdb_tv_id, tmdb_episode_group_id, custom_season, custom_episode) DO UPDATE SET
			tmdb_season = excluded.tmdb_season,
			tmdb_episode = excluded.tmdb_episode,
			absolute_episode = excluded.absolute_episode`,
		m.TmdbTVID, m.TmdbEpisodeGroupID, m.CustomSeason, m.CustomEpisode, m.TmdbSeason, m.TmdbEpisode, m.AbsoluteEpisode,
	)
	if err != nil {
		return fmt.Errorf("upsert tmdb episode mapping: %w", err)
	}
	return nil
}
