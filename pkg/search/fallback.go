package search

import (
	"context"

	"github.com/hikari-danmu/server/pkg/scraper"
)

// runFallbackLadder iterates ranked candidates in order and accepts the
// first one whose scraper reports it actually has the requested episode
// (or, for a movie query, is itself a movie). Intended for contexts where
// no AI/ranking winner is trustworthy enough on title alone, e.g. the
// webhook dispatcher confirming an episode actually exists before import.
func runFallbackLadder(ctx context.Context, scrapers *scraper.Registry, ranked []Candidate, requestedEpisode int, isMovieQuery bool) (Candidate, bool) {
	for _, c := range ranked {
		s, ok := scrapers.Get(c.Provider)
		if !ok {
			continue
		}

		if isMovieQuery {
			if c.Type == TypeMovie {
				return c, true
			}
			continue
		}

		episodes, err := s.GetEpisodes(ctx, c.MediaID)
		if err != nil {
			continue
		}
		for _, ep := range episodes {
			if ep.Index == requestedEpisode {
				return c, true
			}
		}
	}
	return Candidate{}, false
}
