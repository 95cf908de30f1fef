package configstore

import (
	"strconv"
	"strings"
)

// Key names as the control API and spec enumerate them — unchanged from
// the original's config-store key spelling so exported API payloads don't
// need a translation layer.
const (
	KeySearchTTLSeconds         = "searchTtlSeconds"
	KeyEpisodesTTLSeconds       = "episodesTtlSeconds"
	KeyBaseInfoTTLSeconds       = "baseInfoTtlSeconds"
	KeyMetadataSearchTTLSeconds = "metadataSearchTtlSeconds"

	KeySearchMaxResultsPerSource = "searchMaxResultsPerSource"

	KeyProxyMode            = "proxyMode"
	KeyProxyURL              = "proxyUrl"
	KeyAccelerateProxyURL    = "accelerateProxyUrl"
	KeyProxySSLVerify        = "proxySslVerify"

	KeyCustomDanmakuPathEnabled       = "customDanmakuPathEnabled"
	KeyMovieDanmakuDirectoryPath      = "movieDanmakuDirectoryPath"
	KeyMovieDanmakuFilenameTemplate   = "movieDanmakuFilenameTemplate"
	KeyTVDanmakuDirectoryPath         = "tvDanmakuDirectoryPath"
	KeyTVDanmakuFilenameTemplate      = "tvDanmakuFilenameTemplate"

	KeyDanmakuOutputLimitPerSource = "danmakuOutputLimitPerSource"
	KeyDanmakuRandomColorMode      = "danmakuRandomColorMode"
	KeyDanmakuRandomColorPalette   = "danmakuRandomColorPalette"
	KeyDanmakuBlacklistEnabled     = "danmakuBlacklistEnabled"
	KeyDanmakuBlacklistPatterns    = "danmakuBlacklistPatterns"

	KeyMatchFallbackEnabled          = "matchFallbackEnabled"
	KeySearchFallbackEnabled         = "searchFallbackEnabled"
	KeyWebhookFallbackEnabled        = "webhookFallbackEnabled"
	KeyExternalAPIFallbackEnabled    = "externalApiFallbackEnabled"
	KeyPreDownloadNextEpisodeEnabled = "preDownloadNextEpisodeEnabled"

	KeyAIMatchEnabled    = "aiMatchEnabled"
	KeyAIFallbackEnabled = "aiFallbackEnabled"
	KeyAIProvider        = "aiProvider"
	KeyAIAPIKey          = "aiApiKey"
	KeyAIBaseURL         = "aiBaseUrl"
	KeyAIModel           = "aiModel"
	KeyAICacheEnabled    = "aiCacheEnabled"
	KeyAICacheTTL        = "aiCacheTtl"
	KeyAIPromptMatch        = "aiPromptMatch"
	KeyAIPromptDisambiguate = "aiPromptDisambiguate"
	KeyAIPromptNameConvert  = "aiPromptNameConvert"
	KeyAIPromptFallback     = "aiPromptFallback"

	KeyHomeSearchEnableTmdbSeasonMapping     = "homeSearchEnableTmdbSeasonMapping"
	KeyFallbackSearchEnableTmdbSeasonMapping = "fallbackSearchEnableTmdbSeasonMapping"
	KeyWebhookEnableTmdbSeasonMapping        = "webhookEnableTmdbSeasonMapping"
	KeyMatchFallbackEnableTmdbSeasonMapping  = "matchFallbackEnableTmdbSeasonMapping"
	KeyExternalSearchEnableTmdbSeasonMapping = "externalSearchEnableTmdbSeasonMapping"
	KeyAutoImportEnableTmdbSeasonMapping     = "autoImportEnableTmdbSeasonMapping"

	KeyNameConversionEnabled        = "nameConversionEnabled"
	KeyNameConversionSourcePriority = "nameConversionSourcePriority"

	KeySearchResultGlobalBlacklistCN  = "search_result_global_blacklist_cn"
	KeySearchResultGlobalBlacklistEng = "search_result_global_blacklist_eng"
)

// Settings is every CLI-visible config key typed into one struct, per
// SPEC_FULL.md §6's configstore.Settings. ConfigStore.Load populates it
// from the persisted rows, falling back to Defaults() for anything unset.
type Settings struct {
	SearchTTLSeconds         int
	EpisodesTTLSeconds       int
	BaseInfoTTLSeconds       int
	MetadataSearchTTLSeconds int

	SearchMaxResultsPerSource int

	ProxyMode           string
	ProxyURL            string
	AccelerateProxyURL  string
	ProxySSLVerify      bool

	CustomDanmakuPathEnabled     bool
	MovieDanmakuDirectoryPath    string
	MovieDanmakuFilenameTemplate string
	TVDanmakuDirectoryPath       string
	TVDanmakuFilenameTemplate    string

	DanmakuOutputLimitPerSource int
	DanmakuRandomColorMode      string
	DanmakuRandomColorPalette   []string
	DanmakuBlacklistEnabled     bool
	DanmakuBlacklistPatterns    []string

	MatchFallbackEnabled          bool
	SearchFallbackEnabled         bool
	WebhookFallbackEnabled        bool
	ExternalAPIFallbackEnabled    bool
	PreDownloadNextEpisodeEnabled bool

	AIMatchEnabled    bool
	AIFallbackEnabled bool
	AIProvider        string
	AIAPIKey          string
	AIBaseURL         string
	AIModel           string
	AICacheEnabled    bool
	AICacheTTL        int
	AIPromptMatch        string
	AIPromptDisambiguate string
	AIPromptNameConvert  string
	AIPromptFallback     string

	HomeSearchEnableTmdbSeasonMapping     bool
	FallbackSearchEnableTmdbSeasonMapping bool
	WebhookEnableTmdbSeasonMapping        bool
	MatchFallbackEnableTmdbSeasonMapping  bool
	ExternalSearchEnableTmdbSeasonMapping bool
	AutoImportEnableTmdbSeasonMapping     bool

	NameConversionEnabled        bool
	NameConversionSourcePriority []string

	SearchResultGlobalBlacklistCN  string
	SearchResultGlobalBlacklistEng string
}

// Defaults returns the documented default values; any key absent from the
// store falls back to the matching field here.
func Defaults() Settings {
	return Settings{
		SearchTTLSeconds:         10800,
		EpisodesTTLSeconds:       10800,
		BaseInfoTTLSeconds:       10800,
		MetadataSearchTTLSeconds: 10800,

		SearchMaxResultsPerSource: 30,

		ProxyMode:      "none",
		ProxySSLVerify: true,

		DanmakuOutputLimitPerSource: -1,
		DanmakuRandomColorMode:      "off",

		MatchFallbackEnabled:          true,
		SearchFallbackEnabled:         true,
		WebhookFallbackEnabled:        true,
		ExternalAPIFallbackEnabled:    false,
		PreDownloadNextEpisodeEnabled: false,

		AICacheEnabled: true,
		AICacheTTL:     10800,
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func parseBool(s string, fallback bool) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fallback
	}
	return b
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func joinList(items []string) string {
	return strings.Join(items, ",")
}

func splitList(s string, fallback []string) []string {
	if s == "" {
		return fallback
	}
	return strings.Split(s, ",")
}

// asMap flattens Settings into the raw string rows Store persists.
func (s Settings) asMap() map[string]string {
	return map[string]string{
		KeySearchTTLSeconds:         strconv.Itoa(s.SearchTTLSeconds),
		KeyEpisodesTTLSeconds:       strconv.Itoa(s.EpisodesTTLSeconds),
		KeyBaseInfoTTLSeconds:       strconv.Itoa(s.BaseInfoTTLSeconds),
		KeyMetadataSearchTTLSeconds: strconv.Itoa(s.MetadataSearchTTLSeconds),

		KeySearchMaxResultsPerSource: strconv.Itoa(s.SearchMaxResultsPerSource),

		KeyProxyMode:           s.ProxyMode,
		KeyProxyURL:            s.ProxyURL,
		KeyAccelerateProxyURL:  s.AccelerateProxyURL,
		KeyProxySSLVerify:      boolString(s.ProxySSLVerify),

		KeyCustomDanmakuPathEnabled:     boolString(s.CustomDanmakuPathEnabled),
		KeyMovieDanmakuDirectoryPath:    s.MovieDanmakuDirectoryPath,
		KeyMovieDanmakuFilenameTemplate: s.MovieDanmakuFilenameTemplate,
		KeyTVDanmakuDirectoryPath:       s.TVDanmakuDirectoryPath,
		KeyTVDanmakuFilenameTemplate:    s.TVDanmakuFilenameTemplate,

		KeyDanmakuOutputLimitPerSource: strconv.Itoa(s.DanmakuOutputLimitPerSource),
		KeyDanmakuRandomColorMode:      s.DanmakuRandomColorMode,
		KeyDanmakuRandomColorPalette:   joinList(s.DanmakuRandomColorPalette),
		KeyDanmakuBlacklistEnabled:     boolString(s.DanmakuBlacklistEnabled),
		KeyDanmakuBlacklistPatterns:    strings.Join(s.DanmakuBlacklistPatterns, "|"),

		KeyMatchFallbackEnabled:          boolString(s.MatchFallbackEnabled),
		KeySearchFallbackEnabled:         boolString(s.SearchFallbackEnabled),
		KeyWebhookFallbackEnabled:        boolString(s.WebhookFallbackEnabled),
		KeyExternalAPIFallbackEnabled:    boolString(s.ExternalAPIFallbackEnabled),
		KeyPreDownloadNextEpisodeEnabled: boolString(s.PreDownloadNextEpisodeEnabled),

		KeyAIMatchEnabled:    boolString(s.AIMatchEnabled),
		KeyAIFallbackEnabled: boolString(s.AIFallbackEnabled),
		KeyAIProvider:        s.AIProvider,
		KeyAIAPIKey:          s.AIAPIKey,
		KeyAIBaseURL:         s.AIBaseURL,
		KeyAIModel:           s.AIModel,
		KeyAICacheEnabled:    boolString(s.AICacheEnabled),
		KeyAICacheTTL:        strconv.Itoa(s.AICacheTTL),
		KeyAIPromptMatch:        s.AIPromptMatch,
		KeyAIPromptDisambiguate: s.AIPromptDisambiguate,
		KeyAIPromptNameConvert:  s.AIPromptNameConvert,
		KeyAIPromptFallback:     s.AIPromptFallback,

		KeyHomeSearchEnableTmdbSeasonMapping:     boolString(s.HomeSearchEnableTmdbSeasonMapping),
		KeyFallbackSearchEnableTmdbSeasonMapping: boolString(s.FallbackSearchEnableTmdbSeasonMapping),
		KeyWebhookEnableTmdbSeasonMapping:        boolString(s.WebhookEnableTmdbSeasonMapping),
		KeyMatchFallbackEnableTmdbSeasonMapping:  boolString(s.MatchFallbackEnableTmdbSeasonMapping),
		KeyExternalSearchEnableTmdbSeasonMapping: boolString(s.ExternalSearchEnableTmdbSeasonMapping),
		KeyAutoImportEnableTmdbSeasonMapping:     boolString(s.AutoImportEnableTmdbSeasonMapping),

		KeyNameConversionEnabled:        boolString(s.NameConversionEnabled),
		KeyNameConversionSourcePriority: joinList(s.NameConversionSourcePriority),

		KeySearchResultGlobalBlacklistCN:  s.SearchResultGlobalBlacklistCN,
		KeySearchResultGlobalBlacklistEng: s.SearchResultGlobalBlacklistEng,
	}
}

// fromMap fills Settings from raw rows, using d's fields as the fallback
// for anything rows doesn't contain.
func fromMap(rows map[string]string, d Settings) Settings {
	get := func(key string) (string, bool) {
		v, ok := rows[key]
		return v, ok
	}
	s := d
	if v, ok := get(KeySearchTTLSeconds); ok {
		s.SearchTTLSeconds = parseInt(v, d.SearchTTLSeconds)
	}
	if v, ok := get(KeyEpisodesTTLSeconds); ok {
		s.EpisodesTTLSeconds = parseInt(v, d.EpisodesTTLSeconds)
	}
	if v, ok := get(KeyBaseInfoTTLSeconds); ok {
		s.BaseInfoTTLSeconds = parseInt(v, d.BaseInfoTTLSeconds)
	}
	if v, ok := get(KeyMetadataSearchTTLSeconds); ok {
		s.MetadataSearchTTLSeconds = parseInt(v, d.MetadataSearchTTLSeconds)
	}
	if v, ok := get(KeySearchMaxResultsPerSource); ok {
		s.SearchMaxResultsPerSource = parseInt(v, d.SearchMaxResultsPerSource)
	}
	if v, ok := get(KeyProxyMode); ok {
		s.ProxyMode = v
	}
	if v, ok := get(KeyProxyURL); ok {
		s.ProxyURL = v
	}
	if v, ok := get(KeyAccelerateProxyURL); ok {
		s.AccelerateProxyURL = v
	}
	if v, ok := get(KeyProxySSLVerify); ok {
		s.ProxySSLVerify = parseBool(v, d.ProxySSLVerify)
	}
	if v, ok := get(KeyCustomDanmakuPathEnabled); ok {
		s.CustomDanmakuPathEnabled = parseBool(v, d.CustomDanmakuPathEnabled)
	}
	if v, ok := get(KeyMovieDanmakuDirectoryPath); ok {
		s.MovieDanmakuDirectoryPath = v
	}
	if v, ok := get(KeyMovieDanmakuFilenameTemplate); ok {
		s.MovieDanmakuFilenameTemplate = v
	}
	if v, ok := get(KeyTVDanmakuDirectoryPath); ok {
		s.TVDanmakuDirectoryPath = v
	}
	if v, ok := get(KeyTVDanmakuFilenameTemplate); ok {
		s.TVDanmakuFilenameTemplate = v
	}
	if v, ok := get(KeyDanmakuOutputLimitPerSource); ok {
		s.DanmakuOutputLimitPerSource = parseInt(v, d.DanmakuOutputLimitPerSource)
	}
	if v, ok := get(KeyDanmakuRandomColorMode); ok {
		s.DanmakuRandomColorMode = v
	}
	if v, ok := get(KeyDanmakuRandomColorPalette); ok {
		s.DanmakuRandomColorPalette = splitList(v, d.DanmakuRandomColorPalette)
	}
	if v, ok := get(KeyDanmakuBlacklistEnabled); ok {
		s.DanmakuBlacklistEnabled = parseBool(v, d.DanmakuBlacklistEnabled)
	}
	if v, ok := get(KeyDanmakuBlacklistPatterns); ok && v != "" {
		s.DanmakuBlacklistPatterns = strings.Split(v, "|")
	}
	if v, ok := get(KeyMatchFallbackEnabled); ok {
		s.MatchFallbackEnabled = parseBool(v, d.MatchFallbackEnabled)
	}
	if v, ok := get(KeySearchFallbackEnabled); ok {
		s.SearchFallbackEnabled = parseBool(v, d.SearchFallbackEnabled)
	}
	if v, ok := get(KeyWebhookFallbackEnabled); ok {
		s.WebhookFallbackEnabled = parseBool(v, d.WebhookFallbackEnabled)
	}
	if v, ok := get(KeyExternalAPIFallbackEnabled); ok {
		s.ExternalAPIFallbackEnabled = parseBool(v, d.ExternalAPIFallbackEnabled)
	}
	if v, ok := get(KeyPreDownloadNextEpisodeEnabled); ok {
		s.PreDownloadNextEpisodeEnabled = parseBool(v, d.PreDownloadNextEpisodeEnabled)
	}
	if v, ok := get(KeyAIMatchEnabled); ok {
		s.AIMatchEnabled = parseBool(v, d.AIMatchEnabled)
	}
	if v, ok := get(KeyAIFallbackEnabled); ok {
		s.AIFallbackEnabled = parseBool(v, d.AIFallbackEnabled)
	}
	if v, ok := get(KeyAIProvider); ok {
		s.AIProvider = v
	}
	if v, ok := get(KeyAIAPIKey); ok {
		s.AIAPIKey = v
	}
	if v, ok := get(KeyAIBaseURL); ok {
		s.AIBaseURL = v
	}
	if v, ok := get(KeyAIModel); ok {
		s.AIModel = v
	}
	if v, ok := get(KeyAICacheEnabled); ok {
		s.AICacheEnabled = parseBool(v, d.AICacheEnabled)
	}
	if v, ok := get(KeyAICacheTTL); ok {
		s.AICacheTTL = parseInt(v, d.AICacheTTL)
	}
	if v, ok := get(KeyAIPromptMatch); ok {
		s.AIPromptMatch = v
	}
	if v, ok := get(KeyAIPromptDisambiguate); ok {
		s.AIPromptDisambiguate = v
	}
	if v, ok := get(KeyAIPromptNameConvert); ok {
		s.AIPromptNameConvert = v
	}
	if v, ok := get(KeyAIPromptFallback); ok {
		s.AIPromptFallback = v
	}
	if v, ok := get(KeyHomeSearchEnableTmdbSeasonMapping); ok {
		s.HomeSearchEnableTmdbSeasonMapping = parseBool(v, d.HomeSearchEnableTmdbSeasonMapping)
	}
	if v, ok := get(KeyFallbackSearchEnableTmdbSeasonMapping); ok {
		s.FallbackSearchEnableTmdbSeasonMapping = parseBool(v, d.FallbackSearchEnableTmdbSeasonMapping)
	}
	if v, ok := get(KeyWebhookEnableTmdbSeasonMapping); ok {
		s.WebhookEnableTmdbSeasonMapping = parseBool(v, d.WebhookEnableTmdbSeasonMapping)
	}
	if v, ok := get(KeyMatchFallbackEnableTmdbSeasonMapping); ok {
		s.MatchFallbackEnableTmdbSeasonMapping = parseBool(v, d.MatchFallbackEnableTmdbSeasonMapping)
	}
	if v, ok := get(KeyExternalSearchEnableTmdbSeasonMapping); ok {
		s.ExternalSearchEnableTmdbSeasonMapping = parseBool(v, d.ExternalSearchEnableTmdbSeasonMapping)
	}
	if v, ok := get(KeyAutoImportEnableTmdbSeasonMapping); ok {
		s.AutoImportEnableTmdbSeasonMapping = parseBool(v, d.AutoImportEnableTmdbSeasonMapping)
	}
	if v, ok := get(KeyNameConversionEnabled); ok {
		s.NameConversionEnabled = parseBool(v, d.NameConversionEnabled)
	}
	if v, ok := get(KeyNameConversionSourcePriority); ok {
		s.NameConversionSourcePriority = splitList(v, d.NameConversionSourcePriority)
	}
	if v, ok := get(KeySearchResultGlobalBlacklistCN); ok {
		s.SearchResultGlobalBlacklistCN = v
	}
	if v, ok := get(KeySearchResultGlobalBlacklistEng); ok {
		s.SearchResultGlobalBlacklistEng = v
	}
	return s
}
