package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hikari-danmu/server/pkg/cache"
	"github.com/hikari-danmu/server/pkg/metasource"
	"github.com/hikari-danmu/server/pkg/metrics"
	"github.com/hikari-danmu/server/pkg/similarity"
)

const aliasCacheTTL = time.Hour

func aliasCacheKey(coreTitle string) string {
	return fmt.Sprintf("search_aliases_%s", coreTitle)
}

// expandAliases queries every registered metadata source concurrently for
// alternative names of coreTitle, validates each against the core title by
// token-set-ratio, and caches the accepted set under
// "search_aliases_{core_title}" for an hour.
func expandAliases(ctx context.Context, sources *metasource.Registry, blob cache.BlobStore, coreTitle string, threshold int) ([]string, error) {
	key := aliasCacheKey(coreTitle)

	if blob != nil {
		if raw, ok, err := blob.Get(ctx, key); err == nil && ok {
			var aliases []string
			if err := json.Unmarshal(raw, &aliases); err == nil {
				metrics.RecordCacheHit("search_aliases")
				return aliases, nil
			}
		}
		metrics.RecordCacheMiss("search_aliases")
	}

	all := sources.All()
	results := make([][]string, len(all))
	var wg sync.WaitGroup
	for i, src := range all {
		wg.Add(1)
		go func(i int, src metasource.Source) {
			defer wg.Done()
			candidates, err := src.Search(ctx, coreTitle, 0)
			if err != nil {
				return
			}
			var accepted []string
			for _, c := range candidates {
				if similarity.TokenSetRatio(coreTitle, c.Title) >= threshold {
					accepted = append(accepted, c.Title)
				}
			}
			results[i] = accepted
		}(i, src)
	}
	wg.Wait()

	seen := map[string]bool{coreTitle: true}
	var aliases []string
	for _, accepted := range results {
		for _, a := range accepted {
			if !seen[a] {
				seen[a] = true
				aliases = append(aliases, a)
			}
		}
	}

	if blob != nil {
		if raw, err := json.Marshal(aliases); err == nil {
			_ = blob.Set(ctx, key, raw, aliasCacheTTL)
		}
	}
	return aliases, nil
}
