package webhook

import (
	"context"
	"unicode"

	"golang.org/x/text/unicode/rangetable"

	"github.com/hikari-danmu/server/pkg/metasource"
)

// cjkRange bounds the CJK Unified Ideographs, Hiragana, and Katakana
// blocks — enough to cheaply tell "this title is already Chinese-ish"
// from "this title needs name conversion" without a language-detection
// dependency nobody in the pack carries.
var cjkRange = rangetable.Merge(unicode.Han, unicode.Hiragana, unicode.Katakana)

// isCJK reports whether s contains at least one CJK rune.
func isCJK(s string) bool {
	for _, r := range s {
		if unicode.Is(cjkRange, r) {
			return true
		}
	}
	return false
}

// NameConverter looks up a Chinese title for a non-CJK incoming webhook
// title, querying metadata sources in priority order, per the original's
// nameConversionEnabled/nameConversionSourcePriority settings
// (src/tasks/webhook.py, supplemented here since the distilled spec
// dropped it).
type NameConverter struct {
	Enabled        bool
	SourcePriority []string
	MetaSources    *metasource.Registry
}

// Convert returns title unchanged if conversion is disabled or title is
// already CJK; otherwise it queries MetaSources in SourcePriority order
// and returns the first hit's title.
func (c *NameConverter) Convert(ctx context.Context, title string) (string, error) {
	if c == nil || !c.Enabled || isCJK(title) {
		return title, nil
	}
	for _, name := range c.SourcePriority {
		src, ok := c.MetaSources.Get(name)
		if !ok {
			continue
		}
		candidates, err := src.Search(ctx, title, 0)
		if err != nil || len(candidates) == 0 {
			continue
		}
		if isCJK(candidates[0].Title) {
			return candidates[0].Title, nil
		}
	}
	return title, nil
}
