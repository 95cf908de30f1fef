package search

import (
	"regexp"
	"strings"

	"github.com/hikari-danmu/server/pkg/similarity"
)

// RankContext supplies the query-side facts the traditional scorer
// compares each candidate against.
type RankContext struct {
	QueryTitle   string
	QueryYear    int // 0 when the query carries no year
	QuerySeason  int
	IsMovieQuery bool
	// ExistingYear is the already-catalogued anime's year, when ranking is
	// happening in a refresh/rematch context rather than a fresh import; 0
	// when there is none.
	ExistingYear int
}

var punctuation = regexp.MustCompile(`[\p{P}\s]+`)

func normalizePunctuation(s string) string {
	return strings.ToLower(punctuation.ReplaceAllString(s, ""))
}

// score implements the eleven lexicographic ranking rules, returning a
// single additive point total (rules don't actually compete
// lexicographically against each other — the "lexicographic" framing in
// the spec describes priority order when the totals tie often enough to
// matter, e.g. an exact match's +10000 swamps every other rule).
func score(c Candidate, rc RankContext, cache *similarityCache) int {
	total := 0
	normQuery := normalizeForCompare(rc.QueryTitle)
	normTitle := normalizeForCompare(c.Title)

	exact := normQuery == normTitle
	if exact {
		total += 10000
	}
	if normalizePunctuation(rc.QueryTitle) == normalizePunctuation(c.Title) {
		total += 5000
	}

	lengthDiff := absInt(len([]rune(normQuery)) - len([]rune(normTitle)))
	tsr := cache.score("token_sort", normQuery, normTitle, similarity.TokenSortRatio)
	if tsr > 98 && lengthDiff <= 10 {
		total += 2000
	}
	if tsr > 95 && lengthDiff <= 20 {
		total += 1000
	}

	if exact && rc.ExistingYear > 0 && rc.ExistingYear-c.Year >= 3 {
		total += 800
	}

	if rc.QueryYear > 0 && rc.QueryYear == c.Year {
		total += 500
	} else if rc.QueryYear > 0 && c.Year > 0 {
		total -= 500
	}

	if c.Type == TypeTVSeries && rc.QuerySeason > 0 && c.Season == rc.QuerySeason {
		total += 100
	}

	if tset := cache.tokenSetRatio(normQuery, normTitle); tset >= 85 {
		total += tset - 85
	}

	total -= lengthDiff
	total -= c.ProviderOrder

	return total
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// rankAll scores every candidate and sorts descending, applying the
// favorited-source override: a favorited candidate whose type matches the
// query and whose token-set-ratio is >= 70 wins unconditionally, landing
// at index 0 regardless of its computed score.
func rankAll(candidates []Candidate, rc RankContext, cache *similarityCache) []Candidate {
	scored := make([]Candidate, len(candidates))
	copy(scored, candidates)
	for i := range scored {
		scored[i].Score = score(scored[i], rc, cache)
	}

	sortByScoreDesc(scored)

	wantType := TypeTVSeries
	if rc.IsMovieQuery {
		wantType = TypeMovie
	}
	for i, c := range scored {
		if !c.IsFavorited || c.Type != wantType {
			continue
		}
		if cache.tokenSetRatio(normalizeForCompare(rc.QueryTitle), normalizeForCompare(c.Title)) < 70 {
			continue
		}
		if i == 0 {
			break
		}
		winner := scored[i]
		scored = append(scored[:i], scored[i+1:]...)
		scored = append([]Candidate{winner}, scored...)
		break
	}

	return scored
}

func sortByScoreDesc(c []Candidate) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].Score > c[j-1].Score; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}
