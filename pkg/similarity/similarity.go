// Package similarity implements the fuzzy string scoring the search
// pipeline's alias/title filtering and traditional ranking stages need:
// token-sort-ratio, token-set-ratio, and partial-ratio, all built on top
// of github.com/xrash/smetrics's Jaro-Winkler primitive — the pack carries
// no ready-made token-ratio library, but does carry smetrics (an indirect
// dependency of developerkorteks-apigateway), so these are composed rather
// than hand-rolled from scratch.
package similarity

import (
	"sort"
	"strings"
	"unicode"

	"github.com/xrash/smetrics"
)

const (
	jaroWinklerBoostThreshold = 0.7
	jaroWinklerPrefixSize     = 4
)

// Ratio scores a and b on a 0-100 scale via Jaro-Winkler, the building
// block every other ratio in this package composes.
func Ratio(a, b string) int {
	if a == "" && b == "" {
		return 100
	}
	if a == "" || b == "" {
		return 0
	}
	score := smetrics.JaroWinkler(a, b, jaroWinklerBoostThreshold, jaroWinklerPrefixSize)
	return int(score*100 + 0.5)
}

// TokenSortRatio tokenizes both strings, sorts each token set, and scores
// the rejoined strings — so word order differences don't tank the score.
func TokenSortRatio(a, b string) int {
	return Ratio(sortedJoin(a), sortedJoin(b))
}

// TokenSetRatio tokenizes both strings into sets and compares the
// intersection against each side's remainder, taking the best of three
// comparisons — so a superset/subset relationship (e.g. a title with an
// extra subtitle) scores highly even though token-sort-ratio would not.
func TokenSetRatio(a, b string) int {
	tokensA := tokenSet(a)
	tokensB := tokenSet(b)

	intersection := intersect(tokensA, tokensB)
	onlyA := difference(tokensA, intersection)
	onlyB := difference(tokensB, intersection)

	sort.Strings(intersection)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	base := strings.Join(intersection, " ")
	combinedA := strings.TrimSpace(base + " " + strings.Join(onlyA, " "))
	combinedB := strings.TrimSpace(base + " " + strings.Join(onlyB, " "))

	best := Ratio(base, combinedA)
	if r := Ratio(base, combinedB); r > best {
		best = r
	}
	if r := Ratio(combinedA, combinedB); r > best {
		best = r
	}
	return best
}

// PartialRatio finds the best-aligned substring of the longer string
// against the shorter one, so a short query matches well against a long
// title that merely contains it.
func PartialRatio(a, b string) int {
	shorter, longer := a, b
	if len(a) > len(b) {
		shorter, longer = b, a
	}
	if shorter == "" {
		return Ratio(a, b)
	}
	if len(shorter) >= len(longer) {
		return Ratio(a, b)
	}

	best := 0
	window := len(shorter)
	for start := 0; start+window <= len(longer); start++ {
		r := Ratio(shorter, longer[start:start+window])
		if r > best {
			best = r
		}
	}
	return best
}

// LengthDiffExceeds is the cheap pre-filter that skips a similarity
// computation outright when the two strings' rune lengths differ by more
// than max.
func LengthDiffExceeds(a, b string, max int) bool {
	return absInt(len([]rune(a))-len([]rune(b))) > max
}

// CharSetsDisjoint is the second cheap pre-filter: if a and b share no
// runes at all (ignoring case), no similarity algorithm here will ever
// score them as a match.
func CharSetsDisjoint(a, b string) bool {
	setA := runeSet(a)
	for r := range runeSet(b) {
		if setA[r] {
			return false
		}
	}
	return true
}

func runeSet(s string) map[rune]bool {
	set := make(map[rune]bool)
	for _, r := range strings.ToLower(s) {
		if unicode.IsSpace(r) {
			continue
		}
		set[r] = true
	}
	return set
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	return fields
}

func sortedJoin(s string) string {
	tokens := tokenize(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func tokenSet(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range tokenize(s) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func intersect(a, b []string) []string {
	set := make(map[string]bool, len(b))
	for _, t := range b {
		set[t] = true
	}
	var out []string
	for _, t := range a {
		if set[t] {
			out = append(out, t)
		}
	}
	return out
}

func difference(a, remove []string) []string {
	set := make(map[string]bool, len(remove))
	for _, t := range remove {
		set[t] = true
	}
	var out []string
	for _, t := range a {
		if !set[t] {
			out = append(out, t)
		}
	}
	return out
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
