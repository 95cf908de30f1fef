package danmaku

import (
	"fmt"
	"strconv"
	"strings"
)

// normalizePAttr reduces any recognized provider p-attribute shape down to
// the four core fields (time, mode, fontsize, color); the caller appends
// the bracketed provider tag separately. Unrecognized or malformed input
// falls back to the all-default shape rather than failing the whole file.
func normalizePAttr(p string) (t float64, mode, fontSize, color int) {
	// Strip a trailing bracketed provider tag (formatPAttr's own output
	// shape) before counting core fields, so a round-tripped comment isn't
	// mistaken for an unrecognized 5-field row.
	if idx := strings.LastIndex(p, ",["); idx != -1 && strings.HasSuffix(p, "]") {
		p = p[:idx]
	}

	fields := strings.Split(p, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	switch len(fields) {
	case 8:
		// Bilibili: t,mode,fontsize,color,ts,pool,uid,dmid — keep first four.
		return parseBilibiliOrDandan4(fields)
	case 4:
		// Could be dandanplay's own 4-field t,mode,color,uidhash, or a
		// still-8-field Bilibili row truncated upstream. Disambiguate with
		// the spec's heuristic on what would be field[2] (fontsize vs color).
		if looksLikeDandan4(fields) {
			return parseDandan4(fields)
		}
		return parseBilibiliOrDandan4(fields)
	case 3:
		return parseDandan3(fields)
	default:
		return 0, DefaultMode, DefaultFontSize, DefaultColor
	}
}

// looksLikeDandan4 applies the spec's heuristic: field[2] is meant to be
// "color" in the 4-field dandanplay shape and "fontsize" in a truncated
// Bilibili-like shape, while field[3] is "uidhash" vs. a numeric pool id.
// Treat it as dandanplay's shape when field[2] looks too large to be a
// fontsize, or field[3] doesn't look like a plain numeric id.
func looksLikeDandan4(fields []string) bool {
	if len(fields) < 4 {
		return false
	}
	if v, err := strconv.Atoi(fields[2]); err == nil && v > 1000 {
		return true
	}
	v, err := strconv.Atoi(fields[3])
	if err != nil {
		return true
	}
	return v > 16_777_215
}

func parseDandan4(fields []string) (t float64, mode, fontSize, color int) {
	t = parseFloatOr(fields[0], 0)
	mode = parseIntOr(fields[1], DefaultMode)
	color = parseIntOr(fields[2], DefaultColor)
	return t, mode, DefaultFontSize, color
}

func parseDandan3(fields []string) (t float64, mode, fontSize, color int) {
	t = parseFloatOr(fields[0], 0)
	mode = parseIntOr(fields[1], DefaultMode)
	color = parseIntOr(fields[2], DefaultColor)
	return t, mode, DefaultFontSize, color
}

func parseBilibiliOrDandan4(fields []string) (t float64, mode, fontSize, color int) {
	t = parseFloatOr(fields[0], 0)
	mode = parseIntOr(fields[1], DefaultMode)
	fontSize = parseIntOr(fields[2], DefaultFontSize)
	color = parseIntOr(fields[3], DefaultColor)
	return t, mode, fontSize, color
}

func parseFloatOr(s string, fallback float64) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return v
}

func parseIntOr(s string, fallback int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

// formatPAttr renders a Comment's core fields plus its bracketed provider
// tag back into the on-disk p-attribute shape.
func formatPAttr(c Comment) string {
	core := fmt.Sprintf("%s,%d,%d,%d",
		formatFloat(c.Time), c.Mode, c.FontSize, c.Color)
	if c.Provider == "" {
		return core
	}
	return core + ",[" + c.Provider + "]"
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
