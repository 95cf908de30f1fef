// Package ai defines the disambiguation-matcher boundary the unified
// search pipeline calls into when AI-assisted matching is enabled. No
// concrete implementation ships here — providers (an LLM API client, a
// local model server, …) live outside this module's scope; pkg/search
// only depends on this interface and falls back to traditional ranking
// when it is nil or returns an error.
package ai

import "context"

// CandidateSummary is the minimal, provider-agnostic view of one search
// result the matcher is asked to judge — deliberately not pkg/search's own
// candidate type, so this package stays free of a dependency on it.
type CandidateSummary struct {
	Index       int
	Title       string
	Type        string
	Season      int
	Year        int
	Provider    string
	IsFavorited bool
}

// MatchRequest is the query intent plus the candidate list to choose among.
type MatchRequest struct {
	QueryTitle   string
	QuerySeason  int
	QueryEpisode int
	Candidates   []CandidateSummary
}

// MatchResult is the matcher's verdict. Matched is false when it could not
// confidently pick one candidate, which the caller treats the same as an
// error for fallback purposes.
type MatchResult struct {
	Index   int
	Matched bool
}

// Matcher is the sole surface the search pipeline depends on.
type Matcher interface {
	SelectBestMatch(ctx context.Context, req MatchRequest) (MatchResult, error)
}
