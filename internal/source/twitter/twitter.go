// Package twitter watches an X account and emits its original posts as
// repost signals.
package twitter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"autopost/internal/domain"
	"autopost/internal/source"
	"autopost/internal/source/httpjson"
)

const (
	DefaultBaseURL = "https://api.x.com"
	maxResults     = 10
	maxTitleRunes  = 100
)

var nicheCategories = map[string]string{
	"rocketleague": "official_tweet",
	"geometrydash": "robtop_tweet",
}

type Config struct {
	// AccountID is the username without the leading @.
	AccountID string `json:"account_id"`
	Category  string `json:"category"`
	BaseURL   string `json:"base_url"`
}

type Collector struct {
	src    domain.Source
	cfg    Config
	header http.Header
	client *httpjson.Client

	mu     sync.Mutex
	userID string
}

func New(src domain.Source, deps source.Deps) (source.Collector, error) {
	var cfg Config
	if err := source.DecodeConfig(src, &cfg); err != nil {
		return nil, err
	}
	cfg.AccountID = strings.TrimPrefix(cfg.AccountID, "@")
	if cfg.AccountID == "" {
		return nil, errors.New("twitter source requires account_id")
	}
	if deps.TwitterBearerToken == "" {
		return nil, errors.New("twitter source requires twitter.bearer_token")
	}
	if cfg.Category == "" {
		cfg.Category = nicheCategories[src.Niche]
		if cfg.Category == "" {
			cfg.Category = "official_tweet"
		}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	return &Collector{
		src:    src,
		cfg:    cfg,
		header: http.Header{"Authorization": {"Bearer " + deps.TwitterBearerToken}},
		client: deps.Client(time.Second, "twitter"),
	}, nil
}

func (c *Collector) Name() string {
	return c.src.Name
}

type timelineResponse struct {
	Data []struct {
		ID          string `json:"id"`
		Text        string `json:"text"`
		Attachments struct {
			MediaKeys []string `json:"media_keys"`
		} `json:"attachments"`
	} `json:"data"`
	Includes struct {
		Media []struct {
			MediaKey        string `json:"media_key"`
			URL             string `json:"url"`
			PreviewImageURL string `json:"preview_image_url"`
		} `json:"media"`
	} `json:"includes"`
}

func (c *Collector) Collect(ctx context.Context) ([]domain.RawContent, error) {
	userID, err := c.resolveUserID(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("max_results", fmt.Sprint(maxResults))
	params.Set("exclude", "retweets,replies")
	params.Set("tweet.fields", "created_at,attachments")
	params.Set("expansions", "attachments.media_keys")
	params.Set("media.fields", "url,preview_image_url")

	endpoint := fmt.Sprintf("%s/2/users/%s/tweets?%s", c.base(), userID, params.Encode())

	var resp timelineResponse
	if err := c.client.GetJSON(ctx, endpoint, c.header, &resp); err != nil {
		return nil, fmt.Errorf("fetch timeline of @%s: %w", c.cfg.AccountID, err)
	}

	media := make(map[string]string, len(resp.Includes.Media))
	for _, m := range resp.Includes.Media {
		u := m.URL
		if u == "" {
			u = m.PreviewImageURL
		}
		if m.MediaKey != "" && u != "" {
			media[m.MediaKey] = u
		}
	}

	items := make([]domain.RawContent, 0, len(resp.Data))
	for _, tw := range resp.Data {
		link := fmt.Sprintf("https://x.com/%s/status/%s", c.cfg.AccountID, tw.ID)

		image := ""
		for _, key := range tw.Attachments.MediaKeys {
			if u, ok := media[key]; ok {
				image = u
				break
			}
		}

		title := []rune(tw.Text)
		if len(title) > maxTitleRunes {
			title = title[:maxTitleRunes]
		}

		items = append(items, domain.RawContent{
			SourceID:   c.src.ID,
			ExternalID: tw.ID,
			Niche:      c.src.Niche,
			Category:   c.cfg.Category,
			Title:      string(title),
			URL:        link,
			Body:       tw.Text,
			ImageURL:   image,
			Author:     c.cfg.AccountID,
			Metadata: map[string]string{
				domain.MetaRepostID: tw.ID,
				"account":           c.cfg.AccountID,
			},
		})
	}
	return items, nil
}

func (c *Collector) resolveUserID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.userID != "" {
		return c.userID, nil
	}

	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	endpoint := c.base() + "/2/users/by/username/" + url.PathEscape(c.cfg.AccountID)
	if err := c.client.GetJSON(ctx, endpoint, c.header, &resp); err != nil {
		return "", fmt.Errorf("resolve @%s: %w", c.cfg.AccountID, err)
	}
	if resp.Data.ID == "" {
		return "", fmt.Errorf("user @%s not found", c.cfg.AccountID)
	}

	c.userID = resp.Data.ID
	return c.userID, nil
}

func (c *Collector) base() string {
	return strings.TrimRight(c.cfg.BaseURL, "/")
}
