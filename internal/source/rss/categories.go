package rss

import "strings"

type rule struct {
	keywords []string
	category string
}

// Rules are checked in order against the lower-cased title and summary;
// the first match wins.
var nicheRules = map[string][]rule{
	"rocketleague": {
		{[]string{"patch note", "hotfix", "maintenance", "v2.", "v1.", "update notes"}, "patch_notes"},
		{[]string{"season "}, "season_start"},
		{[]string{"item shop"}, "item_shop"},
		{[]string{"collab", " x ", "crossover", "partnership"}, "collab_announcement"},
		{[]string{"esports", "rlcs", "championship", "grand final", "major", "league"}, "event_announcement"},
		{[]string{"roster", " signs ", "signed", "transfer", "free agent"}, "roster_change"},
		{[]string{"update", "patch"}, "patch_notes"},
	},
	"geometrydash": {
		{[]string{"geode", "mod loader"}, "mod_update"},
		{[]string{"update", "patch", "new version", " 2.2", " 2.1"}, "game_update"},
		{[]string{"demon list", "top 1"}, "demon_list_update"},
		{[]string{"rated"}, "level_rated"},
		{[]string{"daily"}, "daily_level"},
		{[]string{"weekly demon"}, "weekly_demon"},
	},
}

var nicheDefaults = map[string]string{
	"rocketleague": "patch_notes",
	"geometrydash": "game_update",
}

// DetectCategory guesses an entry's category from its text. Unknown niches
// get an empty category and fall back to the normalizer default.
func DetectCategory(niche, title, summary string) string {
	haystack := strings.ToLower(title + " " + summary)
	for _, r := range nicheRules[niche] {
		for _, kw := range r.keywords {
			if strings.Contains(haystack, kw) {
				return r.category
			}
		}
	}
	return nicheDefaults[niche]
}
