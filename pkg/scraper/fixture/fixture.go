// Package fixture provides a deterministic in-memory Scraper for tests:
// no network, no randomness, seeded entirely from the struct literal the
// test constructs.
package fixture

import (
	"context"
	"fmt"

	"github.com/hikari-danmu/server/pkg/danmaku"
	"github.com/hikari-danmu/server/pkg/scraper"
)

// Scraper is a fully in-memory scraper.Scraper implementation.
type Scraper struct {
	ProviderName string
	Results      []scraper.SearchResult
	Episodes     map[string][]scraper.EpisodeInfo
	Comments     map[string][]danmaku.Comment
	Err          error
}

func (f *Scraper) Name() string { return f.ProviderName }

func (f *Scraper) Search(_ context.Context, _ string, maxResults int) ([]scraper.SearchResult, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if maxResults > 0 && maxResults < len(f.Results) {
		return f.Results[:maxResults], nil
	}
	return f.Results, nil
}

func (f *Scraper) GetEpisodes(_ context.Context, mediaID string) ([]scraper.EpisodeInfo, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	eps, ok := f.Episodes[mediaID]
	if !ok {
		return nil, fmt.Errorf("fixture: no episodes for media id %q", mediaID)
	}
	return eps, nil
}

func (f *Scraper) GetComments(_ context.Context, providerEpisodeID string) ([]danmaku.Comment, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Comments[providerEpisodeID], nil
}
