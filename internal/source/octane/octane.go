// Package octane collects Rocket League esports results and upcoming matches
// from the Octane.gg API.
package octane

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"autopost/internal/domain"
	"autopost/internal/source"
	"autopost/internal/source/httpjson"
)

const (
	DefaultBaseURL  = "https://zsr.octane.gg"
	resultsPerPage  = 10
	upcomingPerPage = 5
	eventShortRunes = 20
)

type Config struct {
	BaseURL string `json:"base_url"`
	// Tier filters events, e.g. "S,A".
	Tier string `json:"tier"`
}

type Collector struct {
	src    domain.Source
	cfg    Config
	client *httpjson.Client
	logger *slog.Logger
	now    func() time.Time
}

func New(src domain.Source, deps source.Deps) (source.Collector, error) {
	var cfg Config
	if err := source.DecodeConfig(src, &cfg); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Tier == "" {
		cfg.Tier = "S,A"
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Collector{
		src:    src,
		cfg:    cfg,
		client: deps.Client(time.Second, "octane"),
		logger: logger.With("source", src.Name),
		now:    time.Now,
	}, nil
}

func (c *Collector) Name() string {
	return c.src.Name
}

type side struct {
	Score *int `json:"score"`
	Team  *struct {
		Team struct {
			Name string `json:"name"`
		} `json:"team"`
	} `json:"team"`
}

func (s side) name(def string) string {
	if s.Team == nil || s.Team.Team.Name == "" {
		return def
	}
	return s.Team.Team.Name
}

func (s side) score() int {
	if s.Score == nil {
		return 0
	}
	return *s.Score
}

type named struct {
	Name string `json:"name"`
}

type match struct {
	ID     string `json:"_id"`
	Date   string `json:"date"`
	Event  *named `json:"event"`
	Stage  *named `json:"stage"`
	Blue   side   `json:"blue"`
	Orange side   `json:"orange"`
}

func (m match) finished() bool {
	return m.Blue.Score != nil || m.Orange.Score != nil
}

func (m match) event() string {
	if m.Event == nil || m.Event.Name == "" {
		return "RLCS"
	}
	return m.Event.Name
}

func (m match) stage() string {
	if m.Stage == nil {
		return ""
	}
	return m.Stage.Name
}

type matchesResponse struct {
	Matches []match `json:"matches"`
}

// Collect returns results and upcoming matches. It fails only when both
// listings failed.
func (c *Collector) Collect(ctx context.Context) ([]domain.RawContent, error) {
	var items []domain.RawContent

	results, resErr := c.fetch(ctx, url.Values{
		"tier":    {c.cfg.Tier},
		"page":    {"1"},
		"perPage": {strconv.Itoa(resultsPerPage)},
		"sort":    {"date:desc"},
	})
	if resErr != nil {
		c.logger.Warn("results fetch failed", "error", resErr)
	}
	for _, m := range results {
		if m.ID == "" || !m.finished() {
			continue
		}
		items = append(items, c.result(m))
	}

	upcoming, upErr := c.fetch(ctx, url.Values{
		"tier":    {c.cfg.Tier},
		"page":    {"1"},
		"perPage": {strconv.Itoa(upcomingPerPage)},
		"sort":    {"date:asc"},
		"after":   {c.now().UTC().Format(time.RFC3339)},
	})
	if upErr != nil {
		c.logger.Warn("upcoming fetch failed", "error", upErr)
	}
	for _, m := range upcoming {
		if m.ID == "" {
			continue
		}
		items = append(items, c.upcoming(m))
	}

	if resErr != nil && upErr != nil {
		return nil, fmt.Errorf("fetch matches: %w", resErr)
	}
	return items, nil
}

func (c *Collector) fetch(ctx context.Context, params url.Values) ([]match, error) {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/matches?" + params.Encode()

	var resp matchesResponse
	if err := c.client.GetJSON(ctx, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Matches, nil
}

func (c *Collector) result(m match) domain.RawContent {
	blue, orange := m.Blue.name("Blue"), m.Orange.name("Orange")
	blueScore, orangeScore := m.Blue.score(), m.Orange.score()

	winner, loser := orange, blue
	if blueScore > orangeScore {
		winner, loser = blue, orange
	}
	score := fmt.Sprintf("%d-%d", max(blueScore, orangeScore), min(blueScore, orangeScore))

	event := m.event()
	short := []rune(event)
	if len(short) > eventShortRunes {
		short = short[:eventShortRunes]
	}

	return domain.RawContent{
		SourceID:   c.src.ID,
		ExternalID: "octane_result_" + m.ID,
		Niche:      c.src.Niche,
		Category:   "esports_result",
		Title:      fmt.Sprintf("%s def. %s %s at %s", winner, loser, score, event),
		URL:        "https://octane.gg/matches/" + m.ID,
		Body:       strings.TrimSuffix(event+": "+m.stage(), ": "),
		Metadata: map[string]string{
			"event":       event,
			"event_short": string(short),
			"stage":       m.stage(),
			"team1":       blue,
			"team2":       orange,
			"score1":      strconv.Itoa(blueScore),
			"score2":      strconv.Itoa(orangeScore),
			"winner":      winner,
			"loser":       loser,
			"score":       score,
			"emoji":       "🏆",
		},
	}
}

func (c *Collector) upcoming(m match) domain.RawContent {
	blue, orange := m.Blue.name("TBD"), m.Orange.name("TBD")
	event := m.event()

	start := "TBD"
	if t, err := time.Parse(time.RFC3339, m.Date); err == nil {
		start = t.UTC().Format("2006-01-02 15:04") + " UTC"
	}

	return domain.RawContent{
		SourceID:   c.src.ID,
		ExternalID: "octane_upcoming_" + m.ID,
		Niche:      c.src.Niche,
		Category:   "esports_matchup",
		Title:      fmt.Sprintf("%s vs %s at %s", blue, orange, event),
		URL:        "https://octane.gg/matches/" + m.ID,
		Body:       strings.TrimSuffix(event+": "+m.stage(), ": "),
		Metadata: map[string]string{
			"event": event,
			"stage": m.stage(),
			"team1": blue,
			"team2": orange,
			"time":  start,
		},
	}
}
