// Package gdbrowser collects the daily level, the weekly demon and recently
// rated levels from GDBrowser.
package gdbrowser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"autopost/internal/domain"
	"autopost/internal/source"
	"autopost/internal/source/httpjson"
)

const (
	DefaultBaseURL = "https://gdbrowser.com/api"
	ratedCount     = 10
)

var difficulties = map[int]string{
	0:  "N/A",
	1:  "Easy",
	2:  "Normal",
	3:  "Hard",
	4:  "Harder",
	5:  "Insane",
	6:  "Easy Demon",
	7:  "Medium Demon",
	8:  "Hard Demon",
	9:  "Insane Demon",
	10: "Extreme Demon",
}

type Config struct {
	BaseURL string `json:"base_url"`
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

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Collector{
		src:    src,
		cfg:    cfg,
		client: deps.Client(time.Second, "gdbrowser"),
		logger: logger.With("source", src.Name),
		now:    time.Now,
	}, nil
}

func (c *Collector) Name() string {
	return c.src.Name
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if string(data) == "null" {
		*f = ""
		return nil
	}
	*f = flexString(data)
	return nil
}

type level struct {
	ID         flexString `json:"id"`
	Name       string     `json:"name"`
	Author     string     `json:"author"`
	Difficulty flexString `json:"difficulty"`
	Stars      flexString `json:"stars"`
	Likes      flexString `json:"likes"`
}

func (l level) difficulty() string {
	d := string(l.Difficulty)
	if n, err := strconv.Atoi(d); err == nil {
		if label, ok := difficulties[n]; ok {
			return label
		}
		return "Unknown"
	}
	if d == "" {
		return "Unknown"
	}
	return d
}

// Collect returns whatever parts succeeded. It fails only when every
// endpoint failed.
func (c *Collector) Collect(ctx context.Context) ([]domain.RawContent, error) {
	now := c.now().UTC()
	var items []domain.RawContent
	var failures int
	var lastErr error

	daily, err := c.fetchLevel(ctx, "daily")
	if err != nil {
		failures++
		lastErr = err
		c.logger.Warn("daily fetch failed", "error", err)
	} else if daily.ID != "" {
		items = append(items, c.convert(daily, "daily_level",
			fmt.Sprintf("daily_%s_%s", now.Format("2006-01-02"), daily.ID),
			fmt.Sprintf("Daily Level: %s by %s", daily.Name, daily.Author)))
	}

	weekly, err := c.fetchLevel(ctx, "weekly")
	if err != nil {
		failures++
		lastErr = err
		c.logger.Warn("weekly fetch failed", "error", err)
	} else if weekly.ID != "" {
		items = append(items, c.convert(weekly, "weekly_demon",
			fmt.Sprintf("weekly_%s_%s", weekKey(now), weekly.ID),
			fmt.Sprintf("Weekly Demon: %s by %s", weekly.Name, weekly.Author)))
	}

	rated, err := c.fetchRated(ctx)
	if err != nil {
		failures++
		lastErr = err
		c.logger.Warn("rated fetch failed", "error", err)
	}
	for _, l := range rated {
		if l.ID == "" {
			continue
		}
		items = append(items, c.convert(l, "level_rated",
			"rated_"+string(l.ID),
			fmt.Sprintf("%s by %s", l.Name, l.Author)))
	}

	if failures == 3 {
		return nil, fmt.Errorf("all gdbrowser endpoints failed: %w", lastErr)
	}
	return items, nil
}

func (c *Collector) fetchLevel(ctx context.Context, kind string) (level, error) {
	var l level
	if err := c.client.GetJSON(ctx, c.base()+"/"+kind, nil, &l); err != nil {
		return level{}, fmt.Errorf("fetch %s: %w", kind, err)
	}
	return l, nil
}

func (c *Collector) fetchRated(ctx context.Context) ([]level, error) {
	endpoint := fmt.Sprintf("%s/search/*?type=recent&diff=1,2,3,4,5&count=%d", c.base(), ratedCount)

	var levels []level
	if err := c.client.GetJSON(ctx, endpoint, nil, &levels); err != nil {
		return nil, fmt.Errorf("fetch rated: %w", err)
	}
	return levels, nil
}

func (c *Collector) convert(l level, category, externalID, title string) domain.RawContent {
	diff := l.difficulty()
	stars := string(l.Stars)
	if stars == "" {
		stars = "0"
	}
	likes, _ := strconv.ParseInt(string(l.Likes), 10, 64)

	return domain.RawContent{
		SourceID:   c.src.ID,
		ExternalID: externalID,
		Niche:      c.src.Niche,
		Category:   category,
		Title:      title,
		URL:        "https://gdbrowser.com/" + string(l.ID),
		Body:       fmt.Sprintf("%s, %s stars", diff, stars),
		Author:     l.Author,
		Score:      likes,
		Metadata: map[string]string{
			"level":      l.Name,
			"level_name": l.Name,
			"creator":    l.Author,
			"difficulty": diff,
			"stars":      stars,
			"level_id":   string(l.ID),
		},
	}
}

func (c *Collector) base() string {
	return strings.TrimRight(c.cfg.BaseURL, "/")
}

// weekKey numbers weeks from the first Monday of the year, so days before it
// fall in week 00.
func weekKey(t time.Time) string {
	mondayBased := (int(t.Weekday()) + 6) % 7
	week := (t.YearDay() - 1 + 7 - mondayBased) / 7
	return fmt.Sprintf("%d-W%02d", t.Year(), week)
}
