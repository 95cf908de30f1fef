// Package webhook implements webhook_search_and_dispatch: an inbound media
// webhook (Plex/Emby/Jellyfin-shaped) resolves to a provider+media_id via
// the unified search pipeline, then becomes a generic_import task. The
// whole search-and-dispatch flow itself runs as a fallback-queue task (per
// the teacher's suture-supervised worker model generalized in pkg/tasks),
// not inline on the HTTP goroutine, so a slow search/AI-disambiguation
// pass can't block the webhook response and is eligible for the same
// pause/cancel/crash-recovery treatment as any other task.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hikari-danmu/server/pkg/metrics"
	"github.com/hikari-danmu/server/pkg/search"
	"github.com/hikari-danmu/server/pkg/storage"
	"github.com/hikari-danmu/server/pkg/tasks"
)

// TaskType is the recoverable task_type this package registers under.
const TaskType = "webhook_search_and_dispatch"

// Params is webhook_search_and_dispatch's input, exactly as spec.md §4.7
// enumerates it. JSON tags make it stable as a task's task_parameters, so
// a crash-recovered row can be replayed from it via FactoryFromParams.
type Params struct {
	AnimeTitle          string            `json:"anime_title"`
	MediaType           string            `json:"media_type"`
	Season              int               `json:"season"`
	CurrentEpisodeIndex int               `json:"current_episode_index"`
	SearchKeyword       string            `json:"search_keyword"`
	ExternalIDs         map[string]string `json:"external_ids"`
	WebhookSource       string            `json:"webhook_source"`
	Year                int               `json:"year"`
	SelectedEpisodes    []int             `json:"selected_episodes,omitempty"`
}

// Dispatcher runs the webhook flow: favorited-source fast path, else the
// unified search pipeline with the fallback ladder, then submits an
// import task.
type Dispatcher struct {
	Storage  storage.Storage
	Search   *search.Pipeline
	Tasks    *tasks.Manager
	Services *tasks.Services
	Convert  *NameConverter
	Logger   *zap.Logger
}

func NewDispatcher(store storage.Storage, pipeline *search.Pipeline, taskManager *tasks.Manager, svc *tasks.Services, convert *NameConverter, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		Storage:  store,
		Search:   pipeline,
		Tasks:    taskManager,
		Services: svc,
		Convert:  convert,
		Logger:   logger,
	}
}

// ErrNoMatch is returned when the search pipeline and fallback ladder
// produce no usable candidate for the webhook event.
var ErrNoMatch = errors.New("webhook: no matching source found")

// Submit enqueues the webhook event as a webhook_search_and_dispatch task
// on the fallback queue and returns its task_id without waiting for the
// search or import to run. uniqueKey coalesces a burst of duplicate events
// for the same series into the one already in flight, mirroring the
// per-key lock the synchronous version used to take; a second event for
// the same key is swallowed as success (the first is already handling it).
func (d *Dispatcher) Submit(ctx context.Context, p Params) (string, error) {
	params, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("webhook: marshaling params: %w", err)
	}
	uniqueKey := fmt.Sprintf("webhook-%s-S%d", p.AnimeTitle, p.Season)
	taskID, err := d.Tasks.Submit(ctx, p.AnimeTitle, TaskType, uniqueKey, params, d.factory(p))
	if errors.Is(err, tasks.ErrActiveTaskExists) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("webhook: submitting dispatch: %w", err)
	}
	return taskID, nil
}

// FactoryFromParams rebuilds a webhook_search_and_dispatch Factory from a
// crash-recovered task's stored task_parameters. Registered with
// tasks.Manager.RegisterRecovery so a process restart resumes an
// interrupted search instead of leaving it pending forever.
func (d *Dispatcher) FactoryFromParams(raw json.RawMessage) (tasks.Factory, error) {
	var p Params
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("webhook: unmarshaling recovered params: %w", err)
	}
	return d.factory(p), nil
}

func (d *Dispatcher) factory(p Params) tasks.Factory {
	return func(ctx context.Context, progress tasks.ProgressFunc) error {
		return d.dispatch(ctx, progress, p)
	}
}

// dispatch is the webhook_search_and_dispatch task body: favorited-source
// fast path, else the unified search pipeline with the fallback ladder,
// then submission of the resulting generic_import task(s).
func (d *Dispatcher) dispatch(ctx context.Context, progress tasks.ProgressFunc, p Params) error {
	d.Logger.Info("webhook event received",
		zap.String("title", p.AnimeTitle),
		zap.Int("season", p.Season),
		zap.String("webhook_source", p.WebhookSource))

	title := p.AnimeTitle
	if d.Convert != nil {
		if converted, err := d.Convert.Convert(ctx, title); err == nil && converted != "" {
			title = converted
		}
	}

	if err := progress(ctx, 10, "正在匹配已收藏的数据源"); err != nil {
		return err
	}

	if anime, found, err := d.Storage.FindAnime(ctx, title, p.Season, p.Year); err == nil && found {
		if sourceID, provider, mediaID, ok := d.favoritedSource(ctx, anime.ID); ok {
			taskID, err := d.submitImports(ctx, importTarget{
				Provider:    provider,
				MediaID:     mediaID,
				Title:       title,
				MediaType:   p.MediaType,
				Season:      p.Season,
				Year:        p.Year,
				Episode:     p.CurrentEpisodeIndex,
				ExternalIDs: p.ExternalIDs,
			}, sourceID, p.SelectedEpisodes)
			metrics.RecordWebhookEvent(p.WebhookSource, favoritedOutcome(taskID, err))
			if err != nil {
				return err
			}
			return tasks.Success("已提交收藏数据源导入任务 %s", taskID)
		}
	}

	if err := progress(ctx, 30, "正在执行搜索"); err != nil {
		return err
	}

	isMovie := p.MediaType == "movie"
	opts := search.DefaultOptions()
	opts.StrictFiltering = true
	opts.AliasSimilarityThreshold = 70
	opts.IsMovieQuery = isMovie

	searchTerm := p.SearchKeyword
	if searchTerm == "" {
		searchTerm = title
	}
	candidates, err := d.Search.SearchWithFallback(ctx, searchTerm, opts, p.CurrentEpisodeIndex, isMovie)
	if err != nil {
		metrics.RecordWebhookEvent(p.WebhookSource, "error")
		return fmt.Errorf("webhook: search failed: %w", err)
	}
	if len(candidates) == 0 {
		metrics.RecordWebhookEvent(p.WebhookSource, "no_match")
		return ErrNoMatch
	}
	winner := candidates[0]

	if err := progress(ctx, 80, "正在提交导入任务"); err != nil {
		return err
	}

	taskID, err := d.submitImports(ctx, importTarget{
		Provider:    winner.Provider,
		MediaID:     winner.MediaID,
		Title:       title,
		MediaType:   p.MediaType,
		Season:      p.Season,
		Year:        p.Year,
		Episode:     p.CurrentEpisodeIndex,
		ExternalIDs: p.ExternalIDs,
	}, 0, p.SelectedEpisodes)
	metrics.RecordWebhookEvent(p.WebhookSource, matchedOutcome(taskID, err))
	if err != nil {
		return err
	}
	return tasks.Success("已提交导入任务 %s", taskID)
}

// favoritedOutcome and matchedOutcome classify a submitImports result into
// the webhook_events_total result label.
func favoritedOutcome(taskID string, err error) string {
	if err != nil {
		return "error"
	}
	if taskID == "" {
		return "conflict"
	}
	return "favorited"
}

func matchedOutcome(taskID string, err error) string {
	if err != nil {
		return "error"
	}
	if taskID == "" {
		return "conflict"
	}
	return "matched"
}

// submitImports submits one import per entry in selectedEpisodes, or a
// single import for target.Episode if selectedEpisodes is empty — an
// event carrying multiple newly-aired episodes (e.g. a batch webhook
// replay) becomes one task per episode rather than one current_episode_index
// at a time. Returns the last submitted task id.
func (d *Dispatcher) submitImports(ctx context.Context, target importTarget, sourceID int64, selectedEpisodes []int) (string, error) {
	if len(selectedEpisodes) == 0 {
		return d.submitImport(ctx, target, sourceID)
	}
	var lastID string
	for _, ep := range selectedEpisodes {
		target.Episode = ep
		id, err := d.submitImport(ctx, target, sourceID)
		if err != nil {
			return lastID, err
		}
		if id != "" {
			lastID = id
		}
	}
	return lastID, nil
}

func (d *Dispatcher) favoritedSource(ctx context.Context, animeID int64) (sourceID int64, provider, mediaID string, ok bool) {
	sources, err := d.Storage.ListAnimeSources(ctx, animeID)
	if err != nil {
		return 0, "", "", false
	}
	for _, s := range sources {
		if s.IsFavorited {
			return s.ID, s.ProviderName, s.MediaID, true
		}
	}
	return 0, "", "", false
}

type importTarget struct {
	Provider, MediaID, Title, MediaType string
	Season, Year, Episode               int
	ExternalIDs                         map[string]string
}

// submitImport submits the resolved candidate as a generic_import task. A
// 409 active-task conflict is swallowed as success, per spec.md §4.7 step
// 4: a second webhook event for work already in flight is not an error.
func (d *Dispatcher) submitImport(ctx context.Context, t importTarget, sourceID int64) (string, error) {
	uniqueKey := fmt.Sprintf("import-%s-%s-S%d-ep%d", t.Provider, t.MediaID, t.Season, t.Episode)
	params := tasks.ImportParams{
		Provider:            t.Provider,
		MediaID:             t.MediaID,
		AnimeTitle:          t.Title,
		MediaType:           t.MediaType,
		Season:              t.Season,
		Year:                t.Year,
		CurrentEpisodeIndex: t.Episode,
		TmdbID:              t.ExternalIDs["tmdb"],
		ImdbID:              t.ExternalIDs["imdb"],
		TvdbID:              t.ExternalIDs["tvdb"],
		DoubanID:            t.ExternalIDs["douban"],
		BangumiID:           t.ExternalIDs["bangumi"],
	}
	factory := tasks.GenericImportFactory(d.Services, params)
	taskID, err := d.Tasks.Submit(ctx, t.Title, "generic_import", uniqueKey, nil, factory)
	if errors.Is(err, tasks.ErrActiveTaskExists) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("webhook: submitting import: %w", err)
	}
	return taskID, nil
}
