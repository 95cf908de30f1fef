package tasks

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/hikari-danmu/server/pkg/danmaku"
	"github.com/hikari-danmu/server/pkg/idgen"
	"github.com/hikari-danmu/server/pkg/ratelimit"
	"github.com/hikari-danmu/server/pkg/scraper"
	"github.com/hikari-danmu/server/pkg/storage"
)

// ImportParams is generic_import's task_parameters shape — JSON-stable so
// a crash-recovered row can be replayed from it.
type ImportParams struct {
	Provider            string `json:"provider"`
	MediaID             string `json:"media_id"`
	AnimeTitle          string `json:"anime_title"`
	MediaType           string `json:"media_type"`
	Season              int    `json:"season"`
	Year                int    `json:"year"`
	CurrentEpisodeIndex int    `json:"current_episode_index,omitempty"`
	TmdbID              string `json:"tmdb_id,omitempty"`
	ImdbID              string `json:"imdb_id,omitempty"`
	TvdbID              string `json:"tvdb_id,omitempty"`
	DoubanID            string `json:"douban_id,omitempty"`
	BangumiID           string `json:"bangumi_id,omitempty"`
}

// UniqueKey is the submit-contract dedup key for one generic_import run.
func (p ImportParams) UniqueKey() string {
	return fmt.Sprintf("import-%s-%s-S%d-ep%d", p.Provider, p.MediaID, p.Season, p.CurrentEpisodeIndex)
}

// GenericImportFactory builds the Factory for generic_import: normalize
// title/season, resolve or create the Anime/AnimeSource rows, fetch the
// provider's episode list, and import one or all episodes with the
// smart-refresh write contract. Grounded on spec.md §4.6 step 1-5 and the
// teacher's pkg/manager reconcile flow for get-or-create entity resolution.
func GenericImportFactory(svc *Services, p ImportParams) Factory {
	return func(ctx context.Context, progress ProgressFunc) error {
		normalized, err := svc.Titles.Normalize(p.AnimeTitle, p.Season, p.Provider)
		if err != nil {
			return fmt.Errorf("normalizing title: %w", err)
		}

		animeID, sourceID, err := svc.resolveAnimeSource(ctx, resolveParams{
			Title:    normalized.Title,
			Type:     storage.AnimeType(p.MediaType),
			Season:   normalized.Season,
			Year:     p.Year,
			Provider: p.Provider,
			MediaID:  p.MediaID,
			TmdbID:   p.TmdbID,
			ImdbID:   p.ImdbID,
			TvdbID:   p.TvdbID,
			DoubanID: p.DoubanID,
			BangumiID: p.BangumiID,
		})
		if err != nil {
			return fmt.Errorf("resolving anime/source: %w", err)
		}

		sc, ok := svc.Scrapers.Get(p.Provider)
		if !ok {
			return fmt.Errorf("unknown provider %q", p.Provider)
		}

		episodes, err := sc.GetEpisodes(ctx, p.MediaID)
		if err != nil {
			return fmt.Errorf("listing episodes: %w", err)
		}
		if p.CurrentEpisodeIndex > 0 {
			filtered := episodes[:0]
			for _, e := range episodes {
				if e.Index == p.CurrentEpisodeIndex {
					filtered = append(filtered, e)
				}
			}
			episodes = filtered
		}

		source, err := svc.Storage.GetAnimeSource(ctx, sourceID)
		if err != nil {
			return fmt.Errorf("loading source: %w", err)
		}

		added := 0
		for i, ep := range episodes {
			if err := svc.Limiter.Check(ctx, p.Provider); err != nil {
				if exceeded, ok := err.(*ratelimit.ErrExceeded); ok {
					return PauseForRateLimit(p.Provider, exceeded.RetryAfter, fmt.Sprintf("提供方 %s 已达速率限制", p.Provider))
				}
				return err
			}

			comments, err := sc.GetComments(ctx, ep.ProviderEpisodeID)
			if err != nil {
				return fmt.Errorf("fetching comments for episode %d: %w", ep.Index, err)
			}
			if err := svc.Limiter.Increment(ctx, p.Provider); err != nil {
				return fmt.Errorf("recording rate-limit usage: %w", err)
			}

			if err := svc.writeEpisode(ctx, animeID, source, ep, comments, p.MediaType == "movie"); err != nil {
				return fmt.Errorf("writing episode %d: %w", ep.Index, err)
			}
			if len(comments) > 0 {
				added++
			}

			if err := progress(ctx, (i+1)*100/max(1, len(episodes)), fmt.Sprintf("已导入第 %d 集", ep.Index)); err != nil {
				return err
			}
		}

		return Success("导入完成，新增 %s 条", humanize.Comma(int64(added)))
	}
}

type resolveParams struct {
	Title, Provider, MediaID                    string
	Type                                         storage.AnimeType
	Season, Year                                 int
	TmdbID, ImdbID, TvdbID, DoubanID, BangumiID  string
}

// resolveAnimeSource implements get_or_create_anime plus the AnimeSource
// get-or-create, filling metadata/aliases only when previously empty.
func (s *Services) resolveAnimeSource(ctx context.Context, p resolveParams) (animeID, sourceID int64, err error) {
	anime, found, err := s.Storage.FindAnime(ctx, p.Title, p.Season, p.Year)
	if err != nil {
		return 0, 0, err
	}
	if !found {
		animeID, err = s.Storage.CreateAnime(ctx, storage.Anime{Title: p.Title, Type: p.Type, Season: p.Season, Year: p.Year})
		if err != nil {
			return 0, 0, err
		}
	} else {
		animeID = anime.ID
	}

	if err := s.fillMetadataIfEmpty(ctx, animeID, p); err != nil {
		return 0, 0, err
	}

	source, found, err := s.Storage.FindAnimeSourceByProvider(ctx, p.Provider, p.MediaID)
	if err != nil {
		return 0, 0, err
	}
	if found {
		return animeID, source.ID, nil
	}

	order, err := s.Storage.NextSourceOrder(ctx, animeID)
	if err != nil {
		return 0, 0, err
	}
	sourceID, err = s.Storage.CreateAnimeSource(ctx, storage.AnimeSource{AnimeID: animeID, ProviderName: p.Provider, MediaID: p.MediaID, SourceOrder: order})
	if err != nil {
		return 0, 0, err
	}
	return animeID, sourceID, nil
}

func (s *Services) fillMetadataIfEmpty(ctx context.Context, animeID int64, p resolveParams) error {
	meta, _, err := s.Storage.GetAnimeMetadata(ctx, animeID)
	if err != nil {
		return err
	}
	meta.AnimeID = animeID
	changed := false
	fill := func(dst *string, src string) {
		if *dst == "" && src != "" {
			*dst = src
			changed = true
		}
	}
	fill(&meta.TmdbID, p.TmdbID)
	fill(&meta.ImdbID, p.ImdbID)
	fill(&meta.TvdbID, p.TvdbID)
	fill(&meta.DoubanID, p.DoubanID)
	fill(&meta.BangumiID, p.BangumiID)
	if !changed {
		return nil
	}
	return s.Storage.UpsertAnimeMetadata(ctx, meta)
}

// writeEpisode creates/updates the Episode row and writes its danmaku
// file via the smart-refresh contract.
func (s *Services) writeEpisode(ctx context.Context, animeID int64, source storage.AnimeSource, ep scraper.EpisodeInfo, comments []danmaku.Comment, isMovie bool) error {
	existing, found, err := s.Storage.FindEpisode(ctx, source.ID, ep.Index)
	if err != nil {
		return err
	}

	id, err := idgen.EpisodeID(animeID, int64(source.SourceOrder), int64(ep.Index))
	if err != nil {
		return err
	}

	existingPath, existingCount := "", 0
	if found {
		existingPath, existingCount = existing.DanmakuFilePath, existing.CommentCount
	}

	result, err := s.Danmaku.Save(danmaku.SaveParams{
		ExistingPath:  existingPath,
		ExistingCount: existingCount,
		IsMovie:       isMovie,
		Provider:      source.ProviderName,
		Comments:      comments,
		Vars: danmaku.PathVars{
			AnimeID:   strconv.FormatInt(animeID, 10),
			EpisodeID: strconv.FormatInt(id, 10),
			SourceID:  strconv.FormatInt(source.ID, 10),
			Episode:   strconv.Itoa(ep.Index),
			Provider:  source.ProviderName,
		},
	})
	if err != nil {
		return err
	}
	if !result.Written && found {
		return nil
	}

	e := storage.Episode{
		ID:                id,
		SourceID:          source.ID,
		EpisodeIndex:      ep.Index,
		Title:             ep.Title,
		ProviderEpisodeID: ep.ProviderEpisodeID,
		SourceURL:         ep.SourceURL,
		DanmakuFilePath:   result.Path,
		CommentCount:      result.Count,
	}
	if found {
		return s.Storage.UpdateEpisode(ctx, e)
	}
	return s.Storage.CreateEpisode(ctx, e)
}
