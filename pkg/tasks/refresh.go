package tasks

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hikari-danmu/server/pkg/danmaku"
	"github.com/hikari-danmu/server/pkg/ratelimit"
	"github.com/hikari-danmu/server/pkg/storage"
)

// RefreshEpisodeParams is refresh_episode_task's task_parameters shape.
type RefreshEpisodeParams struct {
	EpisodeID int64 `json:"episode_id"`
}

// RefreshEpisodeFactory re-fetches one episode's comments from its
// provider and overwrites the file only if the provider now has strictly
// more comments — the smart-refresh rule, which is the entire point of
// this task per spec.md §4.6.
func RefreshEpisodeFactory(svc *Services, p RefreshEpisodeParams) Factory {
	return func(ctx context.Context, progress ProgressFunc) error {
		outcome, err := svc.refreshOneEpisode(ctx, p.EpisodeID, progress)
		if err != nil {
			return err
		}
		return Success(outcome.message())
	}
}

type refreshOutcome int

const (
	refreshUpdated refreshOutcome = iota
	refreshSkippedNotLarger
	refreshSkippedNoComments
)

func (o refreshOutcome) message() string {
	switch o {
	case refreshUpdated:
		return "刷新完成，弹幕数量已更新。"
	case refreshSkippedNotLarger:
		return "未找到更多弹幕，跳过刷新。"
	default:
		return "未找到任何弹幕。"
	}
}

// refreshOneEpisode is shared by RefreshEpisodeFactory and
// FullRefreshFactory so a full-source refresh reuses exactly the same
// per-episode logic spec.md §4.6 requires.
func (s *Services) refreshOneEpisode(ctx context.Context, episodeID int64, progress ProgressFunc) (refreshOutcome, error) {
	ep, err := s.Storage.GetEpisode(ctx, episodeID)
	if err != nil {
		return 0, fmt.Errorf("loading episode: %w", err)
	}
	source, err := s.Storage.GetAnimeSource(ctx, ep.SourceID)
	if err != nil {
		return 0, fmt.Errorf("loading source: %w", err)
	}
	anime, err := s.Storage.GetAnime(ctx, source.AnimeID)
	if err != nil {
		return 0, fmt.Errorf("loading anime: %w", err)
	}
	sc, ok := s.Scrapers.Get(source.ProviderName)
	if !ok {
		return 0, fmt.Errorf("unknown provider %q", source.ProviderName)
	}

	if err := s.Limiter.Check(ctx, source.ProviderName); err != nil {
		if exceeded, ok := err.(*ratelimit.ErrExceeded); ok {
			return 0, PauseForRateLimit(source.ProviderName, exceeded.RetryAfter, fmt.Sprintf("提供方 %s 已达速率限制", source.ProviderName))
		}
		return 0, err
	}

	comments, err := sc.GetComments(ctx, ep.ProviderEpisodeID)
	if err != nil {
		return 0, fmt.Errorf("fetching comments: %w", err)
	}
	if err := s.Limiter.Increment(ctx, source.ProviderName); err != nil {
		return 0, fmt.Errorf("recording rate-limit usage: %w", err)
	}

	if len(comments) == 0 {
		return refreshSkippedNoComments, nil
	}
	if len(comments) <= ep.CommentCount {
		return refreshSkippedNotLarger, nil
	}

	isMovie := anime.Type == storage.AnimeTypeMovie
	result, err := s.Danmaku.Save(danmaku.SaveParams{
		ExistingPath:  ep.DanmakuFilePath,
		ExistingCount: ep.CommentCount,
		IsMovie:       isMovie,
		Provider:      source.ProviderName,
		Comments:      comments,
		Vars: danmaku.PathVars{
			AnimeID:   strconv.FormatInt(source.AnimeID, 10),
			EpisodeID: strconv.FormatInt(ep.ID, 10),
			SourceID:  strconv.FormatInt(source.ID, 10),
			Episode:   strconv.Itoa(ep.EpisodeIndex),
			Provider:  source.ProviderName,
		},
	})
	if err != nil {
		return 0, err
	}
	if !result.Written {
		return refreshSkippedNotLarger, nil
	}

	ep.DanmakuFilePath = result.Path
	ep.CommentCount = result.Count
	if err := s.Storage.UpdateEpisode(ctx, ep); err != nil {
		return 0, err
	}
	if progress != nil {
		_ = progress(ctx, 100, outcomeDescription(refreshUpdated, ep.EpisodeIndex))
	}
	return refreshUpdated, nil
}

func outcomeDescription(o refreshOutcome, episodeIndex int) string {
	return fmt.Sprintf("第 %d 集：%s", episodeIndex, o.message())
}

// FullRefreshParams is full_refresh_task's task_parameters shape.
type FullRefreshParams struct {
	SourceID int64 `json:"source_id"`
}

// FullRefreshFactory enumerates a source's episodes from the database —
// never re-querying the provider's own episode list, which spec.md §4.6
// notes is frequently unreliable — and refreshes each in turn, pausing the
// whole run as one unit if any episode hits a rate limit.
func FullRefreshFactory(svc *Services, p FullRefreshParams) Factory {
	return func(ctx context.Context, progress ProgressFunc) error {
		episodes, err := svc.Storage.ListEpisodes(ctx, p.SourceID)
		if err != nil {
			return fmt.Errorf("listing episodes: %w", err)
		}

		var succeeded, skipped, failed int
		var failures []string
		for i, ep := range episodes {
			outcome, err := svc.refreshOneEpisode(ctx, ep.ID, nil)
			if err != nil {
				if isPause(err) {
					return err
				}
				failed++
				failures = append(failures, fmt.Sprintf("第 %d 集: %s", ep.EpisodeIndex, err.Error()))
			} else if outcome == refreshUpdated {
				succeeded++
			} else {
				skipped++
			}

			if err := progress(ctx, (i+1)*100/max(1, len(episodes)), fmt.Sprintf("已处理第 %d 集", ep.EpisodeIndex)); err != nil {
				return err
			}
		}

		msg := fmt.Sprintf("刷新完成：成功 %d，跳过 %d，失败 %d。", succeeded, skipped, failed)
		if len(failures) > 0 {
			msg += " " + strings.Join(failures, "; ")
		}
		return Success(msg)
	}
}
