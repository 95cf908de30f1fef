package storage

import (
	"context"
	"time"

	"github.com/hikari-danmu/server/pkg/configstore"
	"github.com/hikari-danmu/server/pkg/ratelimit"
)

// Storage is the full persistence boundary for the core: anime/source/
// episode CRUD, their metadata/alias sidecars, tasks, rate-limit counters,
// and config rows. pkg/storage/sqlite implements it
// directly against database/sql; pkg/tasks, pkg/search, and pkg/ratelimit
// each depend only on the slice of it they need.
type Storage interface {
	// Init runs pending schema migrations.
	Init(ctx context.Context) error
	Close() error

	// Anime
	CreateAnime(ctx context.Context, a Anime) (int64, error)
	GetAnime(ctx context.Context, id int64) (Anime, error)
	FindAnime(ctx context.Context, normalizedTitle string, season, year int) (Anime, bool, error)
	UpdateAnime(ctx context.Context, a Anime) error
	DeleteAnime(ctx context.Context, id int64) error
	ListAnime(ctx context.Context) ([]Anime, error)

	// AnimeSource
	CreateAnimeSource(ctx context.Context, s AnimeSource) (int64, error)
	GetAnimeSource(ctx context.Context, id int64) (AnimeSource, error)
	FindAnimeSourceByProvider(ctx context.Context, providerName, mediaID string) (AnimeSource, bool, error)
	ListAnimeSources(ctx context.Context, animeID int64) ([]AnimeSource, error)
	UpdateAnimeSource(ctx context.Context, s AnimeSource) error
	SetFavoritedSource(ctx context.Context, animeID, sourceID int64) error
	DeleteAnimeSource(ctx context.Context, id int64) error
	NextSourceOrder(ctx context.Context, animeID int64) (int, error)

	// Episode
	CreateEpisode(ctx context.Context, e Episode) error
	GetEpisode(ctx context.Context, id int64) (Episode, error)
	FindEpisode(ctx context.Context, sourceID int64, episodeIndex int) (Episode, bool, error)
	ListEpisodes(ctx context.Context, sourceID int64) ([]Episode, error)
	UpdateEpisode(ctx context.Context, e Episode) error
	DeleteEpisode(ctx context.Context, id int64) error

	// AnimeMetadata / AnimeAliases — Upsert* fill only columns that are currently empty.
	GetAnimeMetadata(ctx context.Context, animeID int64) (AnimeMetadata, bool, error)
	UpsertAnimeMetadata(ctx context.Context, m AnimeMetadata) error
	GetAnimeAliases(ctx context.Context, animeID int64) (AnimeAliases, bool, error)
	UpsertAnimeAliases(ctx context.Context, a AnimeAliases) error

	// TmdbEpisodeMapping
	FindTmdbEpisodeMapping(ctx context.Context, tmdbTVID, tmdbEpisodeGroupID string, customSeason, customEpisode int) (TmdbEpisodeMapping, bool, error)
	UpsertTmdbEpisodeMapping(ctx context.Context, m TmdbEpisodeMapping) error

	// Task
	CreateTask(ctx context.Context, t Task) error
	GetTask(ctx context.Context, taskID string) (Task, bool, error)
	UpdateTask(ctx context.Context, t Task) error
	FindActiveTaskByUniqueKey(ctx context.Context, uniqueKey string) (Task, bool, error)
	ListTasksByStatus(ctx context.Context, status TaskStatus) ([]Task, error)
	ListRecoverableTasks(ctx context.Context, recoverableTypes []string) ([]Task, error)

	ratelimit.Store
	configstore.Store
}

// Clock is an injectable time source type. No implementation in this
// module takes one; pkg/storage/sqlite relies on the DB's own
// CURRENT_TIMESTAMP and on values the caller sets.
type Clock func() time.Time
