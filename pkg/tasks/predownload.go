package tasks

import (
	"context"
	"encoding/json"
	"fmt"
)

// PredownloadParams is predownload_task's task_parameters shape.
type PredownloadParams struct {
	Provider    string `json:"provider"`
	MediaID     string `json:"media_id"`
	AnimeTitle  string `json:"anime_title"`
	MediaType   string `json:"media_type"`
	Season      int    `json:"season"`
	Year        int    `json:"year"`
	NextEpisode int    `json:"next_episode"`
}

// UniqueKey is predownload's dedup key, keyed so a burst of serve-comment
// calls for the same next episode can't race itself, per spec.md §4.6.
func (p PredownloadParams) UniqueKey() string {
	return fmt.Sprintf("predownload_%s_%s_%d", p.Provider, p.MediaID, p.NextEpisode)
}

// SubmitPredownload spawns a fallback-queue import of the next episode
// after one has just been served. It reuses GenericImportFactory with
// CurrentEpisodeIndex pinned to NextEpisode, so predownload shares exactly
// the same smart-refresh/rate-limit behavior as a normal single-episode
// import — only the queue and unique key differ.
func SubmitPredownload(ctx context.Context, svc *Services, p PredownloadParams) (string, error) {
	importParams := ImportParams{
		Provider:            p.Provider,
		MediaID:             p.MediaID,
		AnimeTitle:          p.AnimeTitle,
		MediaType:           p.MediaType,
		Season:              p.Season,
		Year:                p.Year,
		CurrentEpisodeIndex: p.NextEpisode,
	}
	factory := GenericImportFactory(svc, importParams)
	params, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshaling predownload parameters: %w", err)
	}
	return svc.Manager.Submit(ctx, p.AnimeTitle, "predownload_task", p.UniqueKey(), params, factory)
}
