package tasks

import (
	"context"
	"fmt"

	"github.com/hikari-danmu/server/pkg/storage"
)

// DeleteEpisodeParams is delete_episode_task's task_parameters shape.
type DeleteEpisodeParams struct {
	EpisodeID int64 `json:"episode_id"`
}

// DeleteEpisodeFactory deletes one Episode row and its danmaku file.
func DeleteEpisodeFactory(svc *Services, p DeleteEpisodeParams) Factory {
	return func(ctx context.Context, progress ProgressFunc) error {
		ep, err := svc.Storage.GetEpisode(ctx, p.EpisodeID)
		if err != nil {
			return fmt.Errorf("loading episode: %w", err)
		}
		anime, err := svc.episodeAnime(ctx, ep)
		if err != nil {
			return err
		}
		if err := svc.Storage.DeleteEpisode(ctx, p.EpisodeID); err != nil {
			return fmt.Errorf("deleting episode row: %w", err)
		}
		if ep.DanmakuFilePath != "" {
			if err := svc.Danmaku.DeleteEpisode(ep.DanmakuFilePath, anime.Type == storage.AnimeTypeMovie); err != nil {
				return fmt.Errorf("deleting danmaku file: %w", err)
			}
		}
		return Success("剧集删除完成。")
	}
}

func (s *Services) episodeAnime(ctx context.Context, ep storage.Episode) (storage.Anime, error) {
	source, err := s.Storage.GetAnimeSource(ctx, ep.SourceID)
	if err != nil {
		return storage.Anime{}, fmt.Errorf("loading source: %w", err)
	}
	anime, err := s.Storage.GetAnime(ctx, source.AnimeID)
	if err != nil {
		return storage.Anime{}, fmt.Errorf("loading anime: %w", err)
	}
	return anime, nil
}

// DeleteSourceParams is delete_source_task's task_parameters shape.
type DeleteSourceParams struct {
	SourceID int64 `json:"source_id"`
}

// DeleteSourceFactory deletes an AnimeSource (cascading its episodes),
// batch-deletes the affected danmaku files, and — per spec.md §4.6 —
// deletes the owning Anime too if it no longer has any remaining source.
func DeleteSourceFactory(svc *Services, p DeleteSourceParams) Factory {
	return func(ctx context.Context, progress ProgressFunc) error {
		source, err := svc.Storage.GetAnimeSource(ctx, p.SourceID)
		if err != nil {
			return fmt.Errorf("loading source: %w", err)
		}
		anime, err := svc.Storage.GetAnime(ctx, source.AnimeID)
		if err != nil {
			return fmt.Errorf("loading anime: %w", err)
		}

		episodes, err := svc.Storage.ListEpisodes(ctx, p.SourceID)
		if err != nil {
			return fmt.Errorf("listing episodes: %w", err)
		}
		paths := collectPaths(episodes)

		if err := svc.Storage.DeleteAnimeSource(ctx, p.SourceID); err != nil {
			return fmt.Errorf("deleting source row: %w", err)
		}
		if len(paths) > 0 {
			if err := svc.Danmaku.BulkDelete(paths, anime.Type == storage.AnimeTypeMovie); err != nil {
				return fmt.Errorf("deleting danmaku files: %w", err)
			}
		}

		remaining, err := svc.Storage.ListAnimeSources(ctx, anime.ID)
		if err != nil {
			return fmt.Errorf("checking remaining sources: %w", err)
		}
		if len(remaining) == 0 {
			if err := svc.Storage.DeleteAnime(ctx, anime.ID); err != nil {
				return fmt.Errorf("deleting orphaned anime: %w", err)
			}
		}
		return Success("来源删除完成。")
	}
}

// DeleteAnimeParams is delete_anime_task's task_parameters shape.
type DeleteAnimeParams struct {
	AnimeID int64 `json:"anime_id"`
}

// DeleteAnimeFactory deletes an Anime and all of its sources/episodes,
// cascading at the database level and batch-deleting every affected file.
func DeleteAnimeFactory(svc *Services, p DeleteAnimeParams) Factory {
	return func(ctx context.Context, progress ProgressFunc) error {
		anime, err := svc.Storage.GetAnime(ctx, p.AnimeID)
		if err != nil {
			return fmt.Errorf("loading anime: %w", err)
		}
		sources, err := svc.Storage.ListAnimeSources(ctx, p.AnimeID)
		if err != nil {
			return fmt.Errorf("listing sources: %w", err)
		}

		var paths []string
		for _, source := range sources {
			episodes, err := svc.Storage.ListEpisodes(ctx, source.ID)
			if err != nil {
				return fmt.Errorf("listing episodes: %w", err)
			}
			paths = append(paths, collectPaths(episodes)...)
		}

		if err := svc.Storage.DeleteAnime(ctx, p.AnimeID); err != nil {
			return fmt.Errorf("deleting anime row: %w", err)
		}
		if len(paths) > 0 {
			if err := svc.Danmaku.BulkDelete(paths, anime.Type == storage.AnimeTypeMovie); err != nil {
				return fmt.Errorf("deleting danmaku files: %w", err)
			}
		}
		return Success("作品删除完成。")
	}
}

// BulkDeleteSourceParams is bulk_delete_source_task's task_parameters shape.
type BulkDeleteSourceParams struct {
	SourceIDs []int64 `json:"source_ids"`
}

// BulkDeleteSourceFactory runs DeleteSourceFactory's body once per source,
// reporting per-source progress, and accumulates failures rather than
// aborting the whole batch on the first one.
func BulkDeleteSourceFactory(svc *Services, p BulkDeleteSourceParams) Factory {
	return func(ctx context.Context, progress ProgressFunc) error {
		var failed int
		for i, sourceID := range p.SourceIDs {
			if err := DeleteSourceFactory(svc, DeleteSourceParams{SourceID: sourceID})(ctx, func(context.Context, int, string) error { return nil }); err != nil {
				failed++
			}
			if err := progress(ctx, (i+1)*100/max(1, len(p.SourceIDs)), fmt.Sprintf("已删除 %d/%d 个来源", i+1, len(p.SourceIDs))); err != nil {
				return err
			}
		}
		return Success(fmt.Sprintf("批量删除完成：%d 个成功，%d 个失败。", len(p.SourceIDs)-failed, failed))
	}
}

// BulkDeleteAnimeParams is bulk_delete_anime_task's task_parameters shape.
type BulkDeleteAnimeParams struct {
	AnimeIDs []int64 `json:"anime_ids"`
}

// BulkDeleteAnimeFactory is BulkDeleteSourceFactory's sibling for
// whole-anime batches.
func BulkDeleteAnimeFactory(svc *Services, p BulkDeleteAnimeParams) Factory {
	return func(ctx context.Context, progress ProgressFunc) error {
		var failed int
		for i, animeID := range p.AnimeIDs {
			if err := DeleteAnimeFactory(svc, DeleteAnimeParams{AnimeID: animeID})(ctx, func(context.Context, int, string) error { return nil }); err != nil {
				failed++
			}
			if err := progress(ctx, (i+1)*100/max(1, len(p.AnimeIDs)), fmt.Sprintf("已删除 %d/%d 个作品", i+1, len(p.AnimeIDs))); err != nil {
				return err
			}
		}
		return Success(fmt.Sprintf("批量删除完成：%d 个成功，%d 个失败。", len(p.AnimeIDs)-failed, failed))
	}
}

func collectPaths(episodes []storage.Episode) []string {
	paths := make([]string, 0, len(episodes))
	for _, ep := range episodes {
		if ep.DanmakuFilePath != "" {
			paths = append(paths, ep.DanmakuFilePath)
		}
	}
	return paths
}
