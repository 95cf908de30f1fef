package search

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/hikari-danmu/server/pkg/ratelimit"
	"github.com/hikari-danmu/server/pkg/scraper"
)

// sourceTiming is the observability record the spec calls for: per-source
// duration and result count from one fan-out search.
type sourceTiming struct {
	Provider string
	Duration time.Duration
	Count    int
	Err      error
}

// fanOutSearch calls Search concurrently on every enabled scraper, budgeted
// by the rate limiter's check/increment pair per provider.
func fanOutSearch(ctx context.Context, scrapers *scraper.Registry, limiter ratelimit.Limiter, term string, maxResults int) ([]Candidate, []sourceTiming) {
	enabled := scrapers.Enabled()
	timings := make([]sourceTiming, len(enabled))
	perSource := make([][]Candidate, len(enabled))

	var wg sync.WaitGroup
	for i, s := range enabled {
		wg.Add(1)
		go func(i int, s scraper.Scraper) {
			defer wg.Done()
			name := s.Name()
			start := time.Now()

			if limiter != nil {
				if err := limiter.Check(ctx, name); err != nil {
					timings[i] = sourceTiming{Provider: name, Err: err}
					return
				}
			}

			results, err := s.Search(ctx, term, maxResults)
			timings[i] = sourceTiming{Provider: name, Duration: time.Since(start), Count: len(results), Err: err}
			if err != nil {
				return
			}
			if limiter != nil {
				_ = limiter.Increment(ctx, name)
			}

			out := make([]Candidate, 0, len(results))
			for _, r := range results {
				out = append(out, Candidate{
					Provider: name,
					MediaID:  r.MediaID,
					Title:    r.Title,
					Year:     r.Year,
					Season:   r.Season,
					Type:     r.Type,
				})
			}
			perSource[i] = out
		}(i, s)
	}
	wg.Wait()

	var all []Candidate
	for _, c := range perSource {
		all = append(all, c...)
	}
	return all, timings
}

var movieMarker = regexp.MustCompile(`剧场版|劇場版|[Mm]ovie|映画`)

// applyTypeCorrection flips tv_series to movie when the title carries a
// theatrical-release marker the provider itself mislabeled.
func applyTypeCorrection(candidates []Candidate) {
	for i := range candidates {
		if candidates[i].Type == TypeTVSeries && movieMarker.MatchString(candidates[i].Title) {
			candidates[i].Type = TypeMovie
		}
	}
}

// applySeasonFilter drops results whose type isn't tv_series or whose
// season doesn't match, when the parsed query specified a season and isn't
// itself a movie query.
func applySeasonFilter(candidates []Candidate, season int, seasonSpecified, isMovieQuery bool) []Candidate {
	if !seasonSpecified || isMovieQuery {
		return candidates
	}
	out := candidates[:0:0]
	for _, c := range candidates {
		if c.Type != TypeTVSeries {
			continue
		}
		if c.Season != season {
			continue
		}
		out = append(out, c)
	}
	return out
}
