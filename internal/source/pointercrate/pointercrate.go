// Package pointercrate collects the top of the Geometry Dash demon list.
package pointercrate

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"autopost/internal/domain"
	"autopost/internal/source"
	"autopost/internal/source/httpjson"
)

const (
	DefaultBaseURL = "https://pointercrate.com/api/v2"
	DefaultTop     = 150
	batchSize      = 100
)

type Config struct {
	Top     int    `json:"top"`
	BaseURL string `json:"base_url"`
}

type Collector struct {
	src    domain.Source
	cfg    Config
	client *httpjson.Client
}

func New(src domain.Source, deps source.Deps) (source.Collector, error) {
	var cfg Config
	if err := source.DecodeConfig(src, &cfg); err != nil {
		return nil, err
	}
	if cfg.Top <= 0 {
		cfg.Top = DefaultTop
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	return &Collector{
		src:    src,
		cfg:    cfg,
		client: deps.Client(500*time.Millisecond, "pointercrate"),
	}, nil
}

func (c *Collector) Name() string {
	return c.src.Name
}

type player struct {
	Name string `json:"name"`
}

type demon struct {
	ID        int64   `json:"id"`
	Position  int64   `json:"position"`
	Name      string  `json:"name"`
	Verifier  *player `json:"verifier"`
	Publisher *player `json:"publisher"`
	Video     string  `json:"video"`
	Thumbnail string  `json:"thumbnail"`
}

func (c *Collector) Collect(ctx context.Context) ([]domain.RawContent, error) {
	demons, err := c.fetchDemons(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]domain.RawContent, 0, len(demons))
	for _, d := range demons {
		items = append(items, c.convert(d))
	}
	return items, nil
}

func (c *Collector) fetchDemons(ctx context.Context) ([]demon, error) {
	var demons []demon
	base := strings.TrimRight(c.cfg.BaseURL, "/")

	for len(demons) < c.cfg.Top {
		limit := min(batchSize, c.cfg.Top-len(demons))
		endpoint := fmt.Sprintf("%s/demons/?limit=%d&after=%d", base, limit, len(demons))

		var batch []demon
		if err := c.client.GetJSON(ctx, endpoint, nil, &batch); err != nil {
			return nil, fmt.Errorf("fetch demons after %d: %w", len(demons), err)
		}
		if len(batch) == 0 {
			break
		}
		demons = append(demons, batch...)
	}

	return demons, nil
}

func (c *Collector) convert(d demon) domain.RawContent {
	verifier := "Unknown"
	if d.Verifier != nil && d.Verifier.Name != "" {
		verifier = d.Verifier.Name
	}
	publisher := verifier
	if d.Publisher != nil && d.Publisher.Name != "" {
		publisher = d.Publisher.Name
	}
	name := d.Name
	if name == "" {
		name = "Unknown"
	}
	pos := strconv.FormatInt(d.Position, 10)

	return domain.RawContent{
		SourceID:   c.src.ID,
		ExternalID: fmt.Sprintf("pc_%d", d.ID),
		Niche:      c.src.Niche,
		Category:   Classify(d.Position),
		Title:      name,
		URL:        d.Video,
		Body:       fmt.Sprintf("#%d on the Pointercrate Demon List. Verified by %s.", d.Position, verifier),
		ImageURL:   d.Thumbnail,
		Author:     verifier,
		Score:      max(0, DefaultTop-d.Position),
		Metadata: map[string]string{
			"level":       name,
			"level_name":  name,
			"position":    pos,
			"player":      verifier,
			"creator":     publisher,
			"details":     fmt.Sprintf("#%d on the Demon List, verified by %s", d.Position, verifier),
			"description": fmt.Sprintf("#%d on the Demon List", d.Position),
			"emoji":       emoji(d.Position),
		},
	}
}

// Classify maps a list position to a category.
func Classify(position int64) string {
	switch {
	case position == 1:
		return "top1_verified"
	case position <= 75:
		return "level_verified"
	default:
		return "demon_list_update"
	}
}

func emoji(position int64) string {
	switch {
	case position == 1:
		return "🚨"
	case position <= 10:
		return "🏆"
	default:
		return "🔺"
	}
}
