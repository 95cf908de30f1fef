// Package scraper defines the provider-facing interface every video-site
// integration implements, plus the name-keyed registry the search pipeline
// and task bodies resolve providers through.
package scraper

import (
	"context"

	"github.com/hikari-danmu/server/pkg/danmaku"
)

// EpisodeInfo is what a provider returns for one episode of a media item.
type EpisodeInfo struct {
	ProviderEpisodeID string
	Index             int
	Title             string
	SourceURL         string
}

// SearchResult is one candidate a provider's Search returns.
type SearchResult struct {
	MediaID string
	Title   string
	Year    int
	Season  int
	Type    string
}

// Scraper is the required surface every provider implements.
type Scraper interface {
	Name() string
	Search(ctx context.Context, term string, maxResults int) ([]SearchResult, error)
	GetEpisodes(ctx context.Context, mediaID string) ([]EpisodeInfo, error)
	GetComments(ctx context.Context, providerEpisodeID string) ([]danmaku.Comment, error)
}

// URLTester is an optional capability for proxy/health checks.
type URLTester interface {
	TestURL(ctx context.Context, url string) (bool, error)
}

// InfoFromURL is an optional capability letting a user paste a provider
// URL directly instead of searching by title.
type InfoFromURL interface {
	GetInfoFromURL(ctx context.Context, url string) (SearchResult, error)
}

// QuotaProvider lets a provider declare its own default rate-limit quota.
// pkg/ratelimit does not read it: per-provider quotas come only from the
// limiter's configured perProvider map.
type QuotaProvider interface {
	RateLimitQuota() int
}
