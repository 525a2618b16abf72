package scraper

import "strings"

type rule struct {
	keywords []string
	category string
}

var nicheRules = map[string][]rule{
	"rocketleague": {
		{[]string{"patch", "update", "v2.", "hotfix", "fix"}, "patch_notes"},
		{[]string{"rlcs", "major", "championship", "grand final", "tournament", "bracket", "qualifier"}, "esports_result"},
		{[]string{"signs", "roster", "trade", "transfer", "leaves", "joins", "released"}, "roster_change"},
		{[]string{"new season", "season start", "season launch"}, "season_start"},
		{[]string{"collab", "collaboration", " x ", "crossover", "partnership"}, "collab_announcement"},
		{[]string{"item shop", "shop update", "black market", "painted", "decal"}, "item_shop"},
		{[]string{"event", "cup"}, "event_announcement"},
	},
	"geometrydash": {
		{[]string{"update", "geometry dash 2", "robtop", "2.2", "patch", "hotfix"}, "game_update"},
		{[]string{"verified", "demon", "extreme", "top 1", "#1"}, "level_verified"},
		{[]string{"geode", "mod", "plugin", "modding"}, "mod_update"},
		{[]string{"rated", "rating", "star", "new level"}, "level_rated"},
		{[]string{"speedrun", "world record", "wr", "any%"}, "speedrun_wr"},
	},
}

// Classify picks a category from a headline. Headlines nothing matches are
// posted as plain highlights.
func Classify(niche, headline string) string {
	lower := strings.ToLower(headline)
	for _, r := range nicheRules[niche] {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.category
			}
		}
	}
	return "reddit_highlight"
}
