package titlerecognition

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Rule is one line of a recognition-words configuration, in the
// MoviePilot-derived format the UI's title-recognition settings page
// documents:
//
//	屏蔽词                              (blocklist)
//	被替换词 => 替换词                   (simple replace)
//	前定位词 <> 后定位词 >> 集偏移量（EP） (episode offset)
//	被替换词 => 替换词 && 前 <> 后 >> EP-1 (compound)
//	标题 => {[source=tencent;season_offset=9>13]} (per-provider season offset,
//	                                                optionally with title=)
type Rule struct {
	Blocklist string // substring to strip, if this is a bare blocklist line

	ReplaceFrom string // "A" of "A => B"
	ReplaceTo   string // "B" of "A => B", empty when B is a brace directive

	OffsetBefore string // "前定位词" anchor
	OffsetAfter  string // "后定位词" anchor
	OffsetExpr   string // "EP-1", "2*EP", "2*EP-1", …

	Source       string // source= inside a brace directive, empty means any
	SeasonOffset string // season_offset= expression, e.g. "9>13", "*+4"
	TitleOverride string // title= inside a brace directive
}

var episodeOffsetExpr = regexp.MustCompile(`^(\d*)\*?EP\s*([+-]\s*\d+)?$`)

// ParseRules parses the full recognition-words document (comment lines
// starting with # and blank lines are ignored).
func ParseRules(content string) ([]Rule, error) {
	var rules []Rule
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		r, err := parseRuleLine(line)
		if err != nil {
			return nil, fmt.Errorf("titlerecognition: %q: %w", line, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func parseRuleLine(line string) (Rule, error) {
	if idx := strings.Index(line, "&&"); idx >= 0 {
		head := strings.TrimSpace(line[:idx])
		tail := strings.TrimSpace(line[idx+2:])
		r, err := parseRuleLine(head)
		if err != nil {
			return Rule{}, err
		}
		offsetRule, err := parseRuleLine(tail)
		if err != nil {
			return Rule{}, err
		}
		r.OffsetBefore = offsetRule.OffsetBefore
		r.OffsetAfter = offsetRule.OffsetAfter
		r.OffsetExpr = offsetRule.OffsetExpr
		return r, nil
	}

	if strings.Contains(line, "=>") {
		parts := strings.SplitN(line, "=>", 2)
		from := strings.TrimSpace(parts[0])
		to := strings.TrimSpace(parts[1])
		if strings.HasPrefix(to, "{[") && strings.HasSuffix(to, "]}") {
			return parseMetadataDirective(from, to)
		}
		return Rule{ReplaceFrom: from, ReplaceTo: to}, nil
	}

	if strings.Contains(line, "<>") && strings.Contains(line, ">>") {
		beforeAfter, expr := splitOnce(line, ">>")
		before, after := splitOnce(beforeAfter, "<>")
		return Rule{
			OffsetBefore: strings.TrimSpace(before),
			OffsetAfter:  strings.TrimSpace(after),
			OffsetExpr:   strings.TrimSpace(expr),
		}, nil
	}

	return Rule{Blocklist: line}, nil
}

func parseMetadataDirective(from, directive string) (Rule, error) {
	inner := strings.TrimSuffix(strings.TrimPrefix(directive, "{["), "]}")
	r := Rule{ReplaceFrom: from}
	for _, field := range strings.Split(inner, ";") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		kv := strings.SplitN(field, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key, val := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		switch key {
		case "source":
			r.Source = val
		case "season_offset":
			r.SeasonOffset = val
		case "title":
			r.TitleOverride = val
		}
	}
	return r, nil
}

func splitOnce(s, sep string) (string, string) {
	idx := strings.Index(s, sep)
	if idx < 0 {
		return s, ""
	}
	return s[:idx], s[idx+len(sep):]
}

// ApplyBlocklistAndReplace strips blocklisted substrings and applies
// simple/compound title replacements, in rule order.
func ApplyBlocklistAndReplace(rules []Rule, title string) string {
	for _, r := range rules {
		switch {
		case r.Blocklist != "":
			title = strings.ReplaceAll(title, r.Blocklist, "")
		case r.ReplaceFrom != "" && r.ReplaceTo != "" && r.SeasonOffset == "":
			title = strings.ReplaceAll(title, r.ReplaceFrom, r.ReplaceTo)
		}
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(title, " "))
}

// ApplyEpisodeOffset scans text for "<before><digits><after>" and rewrites
// the digits per the rule's offset expression, for every rule that defines
// one.
func ApplyEpisodeOffset(rules []Rule, text string) (string, error) {
	for _, r := range rules {
		if r.OffsetBefore == "" && r.OffsetAfter == "" {
			continue
		}
		pattern := regexp.QuoteMeta(r.OffsetBefore) + `(\d+)` + regexp.QuoteMeta(r.OffsetAfter)
		re, err := regexp.Compile(pattern)
		if err != nil {
			return text, err
		}
		var applyErr error
		text = re.ReplaceAllStringFunc(text, func(m string) string {
			sub := re.FindStringSubmatch(m)
			n, err := strconv.Atoi(sub[1])
			if err != nil {
				applyErr = err
				return m
			}
			shifted, err := applyEpisodeExpr(r.OffsetExpr, n)
			if err != nil {
				applyErr = err
				return m
			}
			return r.OffsetBefore + strconv.Itoa(shifted) + r.OffsetAfter
		})
		if applyErr != nil {
			return text, applyErr
		}
	}
	return text, nil
}

// applyEpisodeExpr evaluates forms like "EP+1", "EP-1", "2*EP", "2*EP-1"
// against the episode number n found between the anchors.
func applyEpisodeExpr(expr string, n int) (int, error) {
	expr = strings.ReplaceAll(expr, " ", "")
	if expr == "" {
		return n, nil
	}
	m := episodeOffsetExpr.FindStringSubmatch(expr)
	if m == nil {
		return 0, fmt.Errorf("unrecognized episode offset expression %q", expr)
	}
	multiplier := 1
	if m[1] != "" {
		mult, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, err
		}
		multiplier = mult
	}
	result := multiplier * n
	if m[2] != "" {
		delta, err := strconv.Atoi(strings.ReplaceAll(m[2], " ", ""))
		if err != nil {
			return 0, err
		}
		result += delta
	}
	return result, nil
}

// ApplySeasonOffset finds a per-provider season-offset rule matching
// source and applies its expression to season.
func ApplySeasonOffset(rules []Rule, source string, season int) (int, error) {
	for _, r := range rules {
		if r.SeasonOffset == "" {
			continue
		}
		if r.Source != "" && r.Source != source {
			continue
		}
		return applySeasonExpr(r.SeasonOffset, season)
	}
	return season, nil
}

// applySeasonExpr evaluates "9>13" (force), "9+4"/"9-1" (relative, only
// when season == 9), "*+4"/"*-1" (relative to any season), "*>1" (force
// any season to 1).
func applySeasonExpr(expr string, season int) (int, error) {
	for _, op := range []string{">", "+", "-"} {
		idx := strings.Index(expr, op)
		if idx <= 0 {
			continue
		}
		lhs, rhs := expr[:idx], expr[idx+1:]
		delta, err := strconv.Atoi(strings.TrimSpace(rhs))
		if err != nil {
			return season, err
		}
		if lhs != "*" {
			from, err := strconv.Atoi(strings.TrimSpace(lhs))
			if err != nil {
				return season, err
			}
			if from != season {
				return season, nil
			}
		}
		switch op {
		case ">":
			return delta, nil
		case "+":
			return season + delta, nil
		case "-":
			return season - delta, nil
		}
	}
	return season, fmt.Errorf("unrecognized season offset expression %q", expr)
}
