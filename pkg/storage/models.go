// Package storage defines the persistence-boundary types and the Storage
// interface; pkg/storage/sqlite carries the concrete implementation.
package storage

import (
	"encoding/json"
	"time"
)

// AnimeType enumerates the work kinds a stored Anime can take.
type AnimeType string

const (
	AnimeTypeTVSeries AnimeType = "tv_series"
	AnimeTypeMovie    AnimeType = "movie"
	AnimeTypeOVA      AnimeType = "ova"
	AnimeTypeOther    AnimeType = "other"
)

// Anime is a work, uniquely identified by (normalized title, season, year)
// after alias-normalization.
type Anime struct {
	ID             int64
	Title          string
	Type           AnimeType
	Season         int
	Year           int
	ImageURL       string
	LocalImagePath string
}

// AnimeSource binds one Anime to one provider. (ProviderName, MediaID) is
// globally unique; at most one source per anime may have IsFavorited set.
type AnimeSource struct {
	ID                        int64
	AnimeID                   int64
	ProviderName              string
	MediaID                   string
	SourceOrder               int
	IsFavorited               bool
	IncrementalRefreshFailures int
}

// Episode is one episode of one source. ID is the synthesized value from
// pkg/idgen, not an autoincrement key.
type Episode struct {
	ID                int64
	SourceID          int64
	EpisodeIndex      int
	Title             string
	ProviderEpisodeID string
	SourceURL         string
	DanmakuFilePath   string
	CommentCount      int
}

// AnimeMetadata is Anime's 1:1 sidecar of foreign-catalogue ids. Every
// field here is fill-if-empty: callers must never overwrite a non-empty
// value with an auto-discovered one.
type AnimeMetadata struct {
	AnimeID             int64
	TmdbID              string
	TmdbEpisodeGroupID  string
	ImdbID              string
	TvdbID              string
	DoubanID            string
	BangumiID           string
}

// AnimeAliases is Anime's 1:1 sidecar of alternate names.
type AnimeAliases struct {
	AnimeID    int64
	NameEN     string
	NameJP     string
	NameRomaji string
	AliasCN1   string
	AliasCN2   string
	AliasCN3   string
}

// TmdbEpisodeMapping reconciles a provider's custom season/episode
// numbering against TMDb's canonical one.
type TmdbEpisodeMapping struct {
	ID                 int64
	TmdbTVID           string
	TmdbEpisodeGroupID string
	CustomSeason       int
	CustomEpisode      int
	TmdbSeason         int
	TmdbEpisode        int
	AbsoluteEpisode    int
}

// TaskStatus enumerates a Task's lifecycle states.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusPaused    TaskStatus = "paused"
)

// QueueType enumerates a Task's assigned worker queue.
type QueueType string

const (
	QueueDownload   QueueType = "download"
	QueueManagement QueueType = "management"
	QueueFallback   QueueType = "fallback"
)

// Task is a submitted background job. At most one active (pending,
// running, or paused) task may exist per non-empty UniqueKey.
type Task struct {
	TaskID         string
	Title          string
	Status         TaskStatus
	Progress       int
	Description    string
	QueueType      QueueType
	UniqueKey      string
	TaskType       string
	TaskParameters json.RawMessage
	CreatedAt      time.Time
	UpdatedAt      time.Time
	FinishedAt     *time.Time
}

// User, ApiToken, UserSession, ExternalApiLog, and TokenAccessLog are
// administrative entities the core only needs to exist for, not operate
// on; they exist as schema tables and these structs only. Storage has no
// methods for them and no middleware reads or writes them.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

type ApiToken struct {
	ID        int64
	UserID    int64
	Token     string
	CreatedAt time.Time
}

type UserSession struct {
	ID        int64
	UserID    int64
	Token     string
	ExpiresAt time.Time
}

type ExternalApiLog struct {
	ID         int64
	Provider   string
	Endpoint   string
	StatusCode int
	CreatedAt  time.Time
}

type TokenAccessLog struct {
	ID        int64
	TokenID   int64
	Path      string
	CreatedAt time.Time
}
