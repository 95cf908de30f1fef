package search

import (
	"strings"
	"sync"

	"github.com/hikari-danmu/server/pkg/similarity"
)

const maxTitleLengthDiff = 30

// similarityCache memoizes (normalized_item_title, alias) -> similarity so
// repeated candidate/alias pairs across a session don't re-run the
// Jaro-Winkler comparisons.
type similarityCache struct {
	mu      sync.Mutex
	entries map[[3]string]int
}

func newSimilarityCache() *similarityCache {
	return &similarityCache{entries: make(map[[3]string]int)}
}

func (c *similarityCache) score(kind, a, b string, compute func(a, b string) int) int {
	key := [3]string{kind, a, b}
	c.mu.Lock()
	if v, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return v
	}
	c.mu.Unlock()

	v := compute(a, b)

	c.mu.Lock()
	c.entries[key] = v
	c.mu.Unlock()
	return v
}

func (c *similarityCache) tokenSetRatio(a, b string) int {
	return c.score("token_set", a, b, similarity.TokenSetRatio)
}

func (c *similarityCache) partialRatio(a, b string) int {
	return c.score("partial", a, b, similarity.PartialRatio)
}

func normalizeForCompare(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// applyAliasFiltering discards candidates whose title scores below
// threshold by token-set-ratio against every alias (including the core
// title itself).
func applyAliasFiltering(candidates []Candidate, aliases []string, threshold int, cache *similarityCache) []Candidate {
	out := candidates[:0:0]
	for _, c := range candidates {
		if bestAliasScore(c.Title, aliases, cache) >= threshold {
			out = append(out, c)
		}
	}
	return out
}

// applyTitleFiltering discards candidates whose normalized title scores
// below the partial-ratio threshold (85 normally; under strict mode see
// titleFilterThreshold) against any alias.
func applyTitleFiltering(candidates []Candidate, aliases []string, strict bool, cache *similarityCache) []Candidate {
	out := candidates[:0:0]
	for _, c := range candidates {
		threshold := titleFilterThreshold(strict, c.Title, aliases)
		if bestPartialRatio(c.Title, aliases, cache) >= threshold {
			out = append(out, c)
		}
	}
	return out
}

func titleFilterThreshold(strict bool, title string, aliases []string) int {
	if !strict {
		return 85
	}
	// strict: 95 when the item title is longer (in bytes) than every alias,
	// otherwise 85; the threshold does not scale with the length difference.
	maxAliasLen := 0
	for _, a := range aliases {
		if len(a) > maxAliasLen {
			maxAliasLen = len(a)
		}
	}
	if len(title) > maxAliasLen {
		return 95
	}
	return 85
}

func bestAliasScore(title string, aliases []string, cache *similarityCache) int {
	normTitle := normalizeForCompare(title)
	best := 0
	for _, alias := range aliases {
		normAlias := normalizeForCompare(alias)
		if similarity.LengthDiffExceeds(normTitle, normAlias, maxTitleLengthDiff) {
			continue
		}
		if similarity.CharSetsDisjoint(normTitle, normAlias) {
			continue
		}
		if r := cache.tokenSetRatio(normTitle, normAlias); r > best {
			best = r
		}
	}
	return best
}

func bestPartialRatio(title string, aliases []string, cache *similarityCache) int {
	normTitle := normalizeForCompare(title)
	best := 0
	for _, alias := range aliases {
		normAlias := normalizeForCompare(alias)
		if similarity.LengthDiffExceeds(normTitle, normAlias, maxTitleLengthDiff) {
			continue
		}
		if similarity.CharSetsDisjoint(normTitle, normAlias) {
			continue
		}
		if r := cache.partialRatio(normTitle, normAlias); r > best {
			best = r
		}
	}
	return best
}
