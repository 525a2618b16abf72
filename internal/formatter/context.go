package formatter

import (
	"regexp"
	"strings"

	"autopost/internal/domain"
)

var versionRe = regexp.MustCompile(`v?\d+\.\d+[\w.]*`)

var categoryEmoji = map[string]string{
	"patch_notes":         "🔄",
	"season_start":        "🚀",
	"item_shop":           "🛒",
	"collab_announcement": "🔥",
	"event_announcement":  "🏟️",
	"esports_result":      "🏆",
	"esports_matchup":     "🎮",
	"roster_change":       "🔄",
	"community_clip":      "🔥",
	"reddit_highlight":    "👀",
	"rank_milestone":      "🏆",
	"pro_player_content":  "🎬",
	"top1_verified":       "🚨",
	"level_verified":      "🏆",
	"level_beaten":        "🎮",
	"demon_list_update":   "📊",
	"game_update":         "🔺",
	"mod_update":          "🔧",
	"level_rated":         "⭐",
	"daily_level":         "📅",
	"weekly_demon":        "👹",
	"youtube_video":       "🎬",
	"creator_spotlight":   "🎨",
	"speedrun_wr":         "🏆",
	"breaking_news":       "🚨",
}

// buildContext derives template fields from rec. Empty values are left out so
// a variant that needs them fails to render instead of printing a blank.
// Collector metadata overrides derived fields.
func buildContext(rec *domain.RawContent) map[string]string {
	title := strings.TrimSpace(rec.Title)
	url := strings.TrimSpace(rec.URL)
	body := strings.TrimSpace(rec.Body)
	author := strings.TrimSpace(rec.Author)

	summary := capWords(body, 200)
	if summary == "" {
		summary = title
	}
	details := capWords(body, 120)
	if details == "" {
		details = title
	}

	lines := splitLines(body)
	bullet1, bullet2, bullet3 := title, "See full details", url
	if len(lines) > 0 {
		bullet1 = capWords(lines[0], 120)
	}
	if len(lines) > 1 {
		bullet2 = capWords(lines[1], 120)
	}
	if len(lines) > 2 {
		bullet3 = capWords(lines[2], 120)
	}

	emoji, ok := categoryEmoji[rec.Category]
	if !ok {
		emoji = "📢"
	}

	fields := map[string]string{
		"title":       title,
		"headline":    title,
		"url":         url,
		"summary":     summary,
		"details":     details,
		"description": details,
		"context":     details,
		"author":      author,
		"player":      author,
		"creator":     author,
		"emoji":       emoji,
		"version":     versionRe.FindString(title),
		"bullet1":     bullet1,
		"bullet2":     bullet2,
		"bullet3":     bullet3,
		"highlights":  summary,
		"highlight1":  bullet1,
		"highlight2":  bullet2,
		"highlight3":  bullet3,
		"event":       title,
		"event_short": prefix(title, 30),
		"brand":       title,
		"items":       summary,
		"achievement": title,
		"level":       title,
		"level_name":  title,
		"changes":     summary,
		"mod_name":    title,
	}

	for k, v := range rec.Metadata {
		fields[k] = v
	}

	ctx := make(map[string]string, len(fields))
	for k, v := range fields {
		if v = strings.TrimSpace(v); v != "" {
			ctx[k] = v
		}
	}
	return ctx
}

// splitLines breaks body into non-empty lines, or into sentences when it has
// fewer than two lines.
func splitLines(body string) []string {
	var lines []string
	for _, l := range strings.Split(body, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) >= 2 {
		return lines
	}
	return splitSentences(body)
}

func splitSentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes)-1; i++ {
		if strings.ContainsRune(".!?", runes[i]) && isSpace(runes[i+1]) {
			if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}

// capWords limits text to limit runes at a word boundary.
func capWords(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	cut := string(runes[:limit])
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, ",.;: ") + "…"
}

func prefix(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
