package danmaku

import "strings"

// PathVars is the fixed variable whitelist substituted into path templates.
// No other ${...} token is recognized; an unrecognized token is left
// verbatim in the rendered path rather than silently dropped, so a typo in
// a configured template is visible in the resulting file path.
type PathVars struct {
	AnimeID   string
	EpisodeID string
	SourceID  string
	Title     string
	TitleBase string
	Season    string
	Episode   string
	Year      string
	Provider  string
}

// DefaultTVTemplate and DefaultMovieTemplate match the spec's stated
// defaults.
const (
	DefaultTVTemplate    = "${animeId}/${episodeId}.xml"
	DefaultMovieTemplate = "${title}/${episodeId}.xml"
)

var replacer = func(v PathVars) *strings.Replacer {
	return strings.NewReplacer(
		"${animeId}", v.AnimeID,
		"${episodeId}", v.EpisodeID,
		"${sourceId}", v.SourceID,
		"${title}", v.Title,
		"${titleBase}", v.TitleBase,
		"${season}", v.Season,
		"${episode}", v.Episode,
		"${year}", v.Year,
		"${provider}", v.Provider,
	)
}

// RenderPath substitutes v's fields into template and returns the relative
// path (forward slashes; callers join it under the configured root).
func RenderPath(template string, v PathVars) string {
	return replacer(v).Replace(template)
}
