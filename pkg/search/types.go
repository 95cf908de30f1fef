// Package search implements the unified search pipeline: parse, alias
// expansion, fan-out, type correction, season filtering, alias/title
// filtering, optional AI disambiguation, traditional lexicographic
// ranking, favorited-source override, and the fallback ladder.
package search

import "github.com/hikari-danmu/server/pkg/titlerecognition"

// Candidate is one ProviderSearchResult as it flows through the pipeline,
// accumulating a Score as ranking stages run.
type Candidate struct {
	Provider      string
	MediaID       string
	Title         string
	Year          int
	Season        int
	Type          string // "tv_series", "movie", "ova", "other"
	IsFavorited   bool
	ProviderOrder int
	Score         int
}

const (
	TypeTVSeries = "tv_series"
	TypeMovie    = "movie"
	TypeOVA      = "ova"
	TypeOther    = "other"
)

// Options mirrors the pipeline's enumerated recognized options.
type Options struct {
	UseAliasExpansion        bool
	UseAliasFiltering        bool
	UseTitleFiltering        bool
	UseSourcePrioritySorting bool
	StrictFiltering          bool
	CustomAliases            []string
	MaxResultsPerSource      int
	EpisodeInfo              titlerecognition.Query
	AliasSimilarityThreshold int
	AIEnabled                bool
	AIFallbackEnabled        bool
	EnableFallbackLadder     bool
	// IsMovieQuery tells season filtering and ranking that the query
	// itself targets a movie rather than a TV series episode.
	IsMovieQuery bool
	// QueryYear and ExistingYear feed the ranking stage's year-match and
	// long-running-series rules; both 0 means "no year context available".
	QueryYear    int
	ExistingYear int
	// ProviderOrder maps a provider name to its display-order rank (lower
	// sorts first); unlisted providers sort after all listed ones in the
	// order Enabled() returns them.
	ProviderOrder map[string]int
}

// DefaultOptions matches the documented defaults: 30 results/source, alias
// acceptance threshold 75, AI fallback on.
func DefaultOptions() Options {
	return Options{
		MaxResultsPerSource:      30,
		AliasSimilarityThreshold: 75,
		AIFallbackEnabled:        true,
		EnableFallbackLadder:     true,
	}
}

func (o Options) aliasThreshold() int {
	if o.AliasSimilarityThreshold > 0 {
		return o.AliasSimilarityThreshold
	}
	return 75
}

func (o Options) maxResultsPerSource() int {
	if o.MaxResultsPerSource > 0 {
		return o.MaxResultsPerSource
	}
	return 30
}

func (o Options) providerOrder(provider string) int {
	if o.ProviderOrder == nil {
		return 0
	}
	if order, ok := o.ProviderOrder[provider]; ok {
		return order
	}
	return len(o.ProviderOrder)
}
