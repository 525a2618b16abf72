// Package priority maps content categories to queue priorities. Lower is sooner.
package priority

const (
	// Breaking is the only tier allowed to post outside the window and before
	// the minimum interval has elapsed.
	Breaking = 1
	Default  = 5
)

var defaults = map[string]int{
	"top1_verified": 1,
	"breaking_news": 1,
	"robtop_tweet":  1,

	"official_tweet":     2,
	"patch_notes":        2,
	"game_update":        2,
	"season_start":       2,
	"event_announcement": 2,

	"esports_result":      3,
	"roster_change":       3,
	"demon_list_update":   3,
	"level_verified":      3,
	"collab_announcement": 3,

	"item_shop":       4,
	"daily_level":     4,
	"weekly_demon":    4,
	"mod_update":      4,
	"level_rated":     4,
	"esports_matchup": 4,

	"level_beaten":       5,
	"youtube_video":      5,
	"pro_player_content": 5,
	"creator_spotlight":  5,
	"speedrun_wr":        5,

	"reddit_highlight": 7,
	"community_clip":   7,

	"rank_milestone": 8,
}

type Classifier struct {
	table map[string]int
}

// New returns a classifier over the built-in table with overrides applied on top.
func New(overrides map[string]int) *Classifier {
	table := make(map[string]int, len(defaults)+len(overrides))
	for category, p := range defaults {
		table[category] = p
	}
	for category, p := range overrides {
		table[category] = p
	}
	return &Classifier{table: table}
}

func (c *Classifier) Classify(category string) int {
	if p, ok := c.table[category]; ok {
		return p
	}
	return Default
}

func IsBreaking(p int) bool {
	return p <= Breaking
}
