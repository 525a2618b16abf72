// Package reddit collects hot posts from a subreddit's public JSON listing.
package reddit

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strconv"
	"strings"
	"time"

	"autopost/internal/domain"
	"autopost/internal/source"
	"autopost/internal/source/httpjson"
)

const DefaultBaseURL = "https://www.reddit.com"

const maxBodyRunes = 500

var clipFlairs = map[string]bool{
	"clip":      true,
	"highlight": true,
	"montage":   true,
	"insane":    true,
	"sick":      true,
}

var clipDomains = []string{"youtube.com", "youtu.be", "streamable.com", "medal.tv", "clips.twitch.tv"}

var imageExts = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

type Config struct {
	Subreddit string `json:"subreddit"`
	MinScore  *int64 `json:"min_score"`
	Limit     int    `json:"limit"`
	BaseURL   string `json:"base_url"`
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
	if cfg.Subreddit == "" {
		return nil, errors.New("reddit source requires subreddit")
	}
	if cfg.MinScore == nil {
		def := int64(50)
		cfg.MinScore = &def
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 25
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	return &Collector{
		src:    src,
		cfg:    cfg,
		client: deps.Client(2*time.Second, "reddit"),
	}, nil
}

func (c *Collector) Name() string {
	return c.src.Name
}

type listing struct {
	Data struct {
		Children []struct {
			Data post `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type post struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Permalink   string  `json:"permalink"`
	Selftext    string  `json:"selftext"`
	URL         string  `json:"url"`
	Domain      string  `json:"domain"`
	Author      string  `json:"author"`
	Score       int64   `json:"score"`
	Stickied    bool    `json:"stickied"`
	IsVideo     bool    `json:"is_video"`
	Flair       string  `json:"link_flair_text"`
	UpvoteRatio float64 `json:"upvote_ratio"`
	Preview     struct {
		Images []struct {
			Resolutions []struct {
				URL string `json:"url"`
			} `json:"resolutions"`
		} `json:"images"`
	} `json:"preview"`
}

func (c *Collector) Collect(ctx context.Context) ([]domain.RawContent, error) {
	endpoint := fmt.Sprintf("%s/r/%s/hot.json?limit=%d&raw_json=1",
		strings.TrimRight(c.cfg.BaseURL, "/"), url.PathEscape(c.cfg.Subreddit), c.cfg.Limit)

	var resp listing
	if err := c.client.GetJSON(ctx, endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch r/%s: %w", c.cfg.Subreddit, err)
	}

	var items []domain.RawContent
	for _, child := range resp.Data.Children {
		p := child.Data
		if p.Stickied || p.Score < *c.cfg.MinScore {
			continue
		}
		items = append(items, c.convert(p))
	}
	return items, nil
}

func (c *Collector) convert(p post) domain.RawContent {
	body := []rune(p.Selftext)
	if len(body) > maxBodyRunes {
		body = body[:maxBodyRunes]
	}

	return domain.RawContent{
		SourceID:   c.src.ID,
		ExternalID: p.ID,
		Niche:      c.src.Niche,
		Category:   category(p),
		Title:      p.Title,
		URL:        "https://reddit.com" + p.Permalink,
		Body:       string(body),
		ImageURL:   imageURL(p),
		Author:     p.Author,
		Score:      p.Score,
		Metadata: map[string]string{
			"subreddit":    c.cfg.Subreddit,
			"flair":        p.Flair,
			"post_url":     p.URL,
			"is_video":     strconv.FormatBool(p.IsVideo),
			"upvote_ratio": strconv.FormatFloat(p.UpvoteRatio, 'f', 2, 64),
		},
	}
}

func category(p post) string {
	if clipFlairs[strings.ToLower(p.Flair)] || p.IsVideo {
		return "community_clip"
	}
	for _, d := range clipDomains {
		if strings.Contains(p.Domain, d) {
			return "community_clip"
		}
	}
	return "reddit_highlight"
}

func imageURL(p post) string {
	lower := strings.ToLower(p.URL)
	for _, ext := range imageExts {
		if strings.HasSuffix(lower, ext) {
			return p.URL
		}
	}
	if len(p.Preview.Images) > 0 {
		res := p.Preview.Images[0].Resolutions
		if len(res) > 0 {
			return html.UnescapeString(res[len(res)-1].URL)
		}
	}
	return ""
}
