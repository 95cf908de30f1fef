// Package titlerecognition implements the filename-style query parser and
// the MoviePilot-style "recognition words" post-processing rules the
// import pipeline uses to normalize a provider's raw title/season/episode
// into the canonical form that lands in the database.
package titlerecognition

import (
	"regexp"
	"strconv"
	"strings"
)

// Query is the parsed shape of a search term.
type Query struct {
	Title           string
	Season          int
	Episode         int
	IsOVA           bool
	SeasonSpecified bool
}

var (
	sxxExx       = regexp.MustCompile(`(?i)S(\d{1,2})E(\d{1,3})`)
	seasonCN     = regexp.MustCompile(`第\s*(\d+|[一二三四五六七八九十])\s*季`)
	seasonEN     = regexp.MustCompile(`(?i)Season\s*(\d+)`)
	ovaMarker    = regexp.MustCompile(`(?i)\b(OVA|OAD|SP)\b`)
	bracketNoise = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)|【[^】]*】|（[^）]*）`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// ParseQuery extracts {title, season, episode} from a raw search term using
// filename-style heuristics: SxxEyy, "第N季" (N in digits or one Chinese
// numeral 一–十)/"Season N", OVA/OAD/SP markers, and stripping of
// bracketed metadata noise ([1080p], (BD), …).
func ParseQuery(term string) Query {
	q := Query{Season: 1}
	text := term

	if m := sxxExx.FindStringSubmatch(text); m != nil {
		q.Season = atoiOr(m[1], 1)
		q.Episode = atoiOr(m[2], 0)
		q.SeasonSpecified = true
		text = sxxExx.ReplaceAllString(text, " ")
	} else if m := seasonCN.FindStringSubmatch(text); m != nil {
		q.Season = atoiOr(m[1], 0)
		if q.Season == 0 {
			q.Season = strings.Index("一二三四五六七八九十", m[1])/3 + 1
		}
		q.SeasonSpecified = true
		text = seasonCN.ReplaceAllString(text, " ")
	} else if m := seasonEN.FindStringSubmatch(text); m != nil {
		q.Season = atoiOr(m[1], 1)
		q.SeasonSpecified = true
		text = seasonEN.ReplaceAllString(text, " ")
	}

	if ovaMarker.MatchString(text) {
		q.IsOVA = true
		text = ovaMarker.ReplaceAllString(text, " ")
	}

	text = bracketNoise.ReplaceAllString(text, " ")
	text = whitespace.ReplaceAllString(text, " ")
	q.Title = strings.TrimSpace(text)
	return q
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
