package search

import (
	"context"
	"sync"
	"time"

	"github.com/hikari-danmu/server/pkg/ai"
	"github.com/hikari-danmu/server/pkg/cache"
	"github.com/hikari-danmu/server/pkg/metasource"
	"github.com/hikari-danmu/server/pkg/metrics"
	"github.com/hikari-danmu/server/pkg/ratelimit"
	"github.com/hikari-danmu/server/pkg/scraper"
	"github.com/hikari-danmu/server/pkg/titlerecognition"
)

// Pipeline wires the scraper and metadata-source registries, the rate
// limiter, the alias cache, and an optional AI matcher into one
// unified_search implementation.
type Pipeline struct {
	Scrapers    *scraper.Registry
	MetaSources *metasource.Registry
	Limiter     ratelimit.Limiter
	AliasCache  cache.BlobStore
	AI          ai.Matcher
}

func New(scrapers *scraper.Registry, metaSources *metasource.Registry, limiter ratelimit.Limiter, aliasCache cache.BlobStore, matcher ai.Matcher) *Pipeline {
	return &Pipeline{
		Scrapers:    scrapers,
		MetaSources: metaSources,
		Limiter:     limiter,
		AliasCache:  aliasCache,
		AI:          matcher,
	}
}

// Search runs the full ten-stage pipeline and returns a ranked candidate
// list; callers decide whether to take [0] or let the user choose.
func (p *Pipeline) Search(ctx context.Context, term string, opts Options) ([]Candidate, error) {
	query := titlerecognition.ParseQuery(term)
	isMovieQuery := opts.IsMovieQuery
	if opts.EpisodeInfo.Title != "" {
		// episode_info carries caller-asserted season/episode hints that
		// take precedence over what was parsed from the raw term.
		if opts.EpisodeInfo.SeasonSpecified {
			query.Season = opts.EpisodeInfo.Season
			query.SeasonSpecified = true
		}
		if opts.EpisodeInfo.Episode > 0 {
			query.Episode = opts.EpisodeInfo.Episode
		}
	}

	var aliases []string
	var candidates []Candidate

	fanoutStart := time.Now()
	if opts.UseAliasExpansion {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			a, _ := expandAliases(ctx, p.MetaSources, p.AliasCache, query.Title, opts.aliasThreshold())
			aliases = a
		}()
		go func() {
			defer wg.Done()
			candidates, _ = fanOutSearchCollect(ctx, p.Scrapers, p.Limiter, query.Title, opts)
		}()
		wg.Wait()
	} else {
		candidates, _ = fanOutSearchCollect(ctx, p.Scrapers, p.Limiter, query.Title, opts)
	}
	metrics.RecordSearch("fanout", time.Since(fanoutStart))

	aliases = append(append([]string{query.Title}, aliases...), opts.CustomAliases...)

	applyTypeCorrection(candidates)
	candidates = applySeasonFilter(candidates, query.Season, query.SeasonSpecified, isMovieQuery)

	simCache := newSimilarityCache()
	if opts.UseAliasFiltering {
		candidates = applyAliasFiltering(candidates, aliases, opts.aliasThreshold(), simCache)
	}
	if opts.UseTitleFiltering {
		candidates = applyTitleFiltering(candidates, aliases, opts.StrictFiltering, simCache)
	}

	for i := range candidates {
		candidates[i].ProviderOrder = opts.providerOrder(candidates[i].Provider)
	}

	if opts.AIEnabled && p.AI != nil {
		result, err := p.AI.SelectBestMatch(ctx, toAIRequest(query, candidates))
		if err == nil && result.Matched && result.Index >= 0 && result.Index < len(candidates) {
			winner := reorderWithWinner(candidates, result.Index)
			metrics.RecordSearchResults(len(winner))
			return winner, nil
		}
		if !opts.AIFallbackEnabled {
			metrics.RecordSearchResults(0)
			return nil, nil
		}
	}

	rankStart := time.Now()
	rc := RankContext{
		QueryTitle:   query.Title,
		QuerySeason:  query.Season,
		IsMovieQuery: isMovieQuery,
		QueryYear:    opts.QueryYear,
		ExistingYear: opts.ExistingYear,
	}
	ranked := rankAll(candidates, rc, simCache)
	metrics.RecordSearch("rank", time.Since(rankStart))
	metrics.RecordSearchResults(len(ranked))
	return ranked, nil
}

// SearchWithFallback runs Search and, whenever opts.EnableFallbackLadder
// is set, walks the fallback ladder and returns its pick reordered to the
// front.
func (p *Pipeline) SearchWithFallback(ctx context.Context, term string, opts Options, requestedEpisode int, isMovieQuery bool) ([]Candidate, error) {
	ranked, err := p.Search(ctx, term, opts)
	if err != nil {
		return nil, err
	}
	if !opts.EnableFallbackLadder {
		return ranked, nil
	}
	fallbackStart := time.Now()
	winner, ok := runFallbackLadder(ctx, p.Scrapers, ranked, requestedEpisode, isMovieQuery)
	metrics.RecordSearch("fallback", time.Since(fallbackStart))
	if !ok {
		return ranked, nil
	}
	for i, c := range ranked {
		if c.Provider == winner.Provider && c.MediaID == winner.MediaID {
			return reorderWithWinner(ranked, i), nil
		}
	}
	return ranked, nil
}

func reorderWithWinner(candidates []Candidate, index int) []Candidate {
	winner := candidates[index]
	out := make([]Candidate, 0, len(candidates))
	out = append(out, winner)
	for i, c := range candidates {
		if i != index {
			out = append(out, c)
		}
	}
	return out
}

func fanOutSearchCollect(ctx context.Context, scrapers *scraper.Registry, limiter ratelimit.Limiter, term string, opts Options) ([]Candidate, []sourceTiming) {
	return fanOutSearch(ctx, scrapers, limiter, term, opts.maxResultsPerSource())
}

func toAIRequest(query titlerecognition.Query, candidates []Candidate) ai.MatchRequest {
	summaries := make([]ai.CandidateSummary, len(candidates))
	for i, c := range candidates {
		summaries[i] = ai.CandidateSummary{
			Index:       i,
			Title:       c.Title,
			Type:        c.Type,
			Season:      c.Season,
			Year:        c.Year,
			Provider:    c.Provider,
			IsFavorited: c.IsFavorited,
		}
	}
	return ai.MatchRequest{
		QueryTitle:   query.Title,
		QuerySeason:  query.Season,
		QueryEpisode: query.Episode,
		Candidates:   summaries,
	}
}
