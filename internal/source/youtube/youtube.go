// Package youtube collects a channel's latest uploads through the YouTube Data API v3.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"autopost/internal/domain"
	"autopost/internal/source"
	"autopost/internal/source/httpjson"
)

const (
	DefaultBaseURL = "https://www.googleapis.com/youtube/v3"
	maxResults     = 5
	maxBodyRunes   = 300
)

type Config struct {
	ChannelID string `json:"channel_id"`
	Category  string `json:"category"`
	BaseURL   string `json:"base_url"`
}

type Collector struct {
	src    domain.Source
	cfg    Config
	apiKey string
	client *httpjson.Client

	mu       sync.Mutex
	playlist string
}

func New(src domain.Source, deps source.Deps) (source.Collector, error) {
	var cfg Config
	if err := source.DecodeConfig(src, &cfg); err != nil {
		return nil, err
	}
	if cfg.ChannelID == "" {
		return nil, errors.New("youtube source requires channel_id")
	}
	if deps.YouTubeAPIKey == "" {
		return nil, errors.New("youtube source requires youtube.api_key")
	}
	if cfg.Category == "" {
		cfg.Category = "pro_player_content"
		if src.Niche == "geometrydash" {
			cfg.Category = "youtube_video"
		}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	return &Collector{
		src:    src,
		cfg:    cfg,
		apiKey: deps.YouTubeAPIKey,
		client: deps.Client(200*time.Millisecond, "youtube"),
	}, nil
}

func (c *Collector) Name() string {
	return c.src.Name
}

type channelsResponse struct {
	Items []struct {
		ContentDetails struct {
			RelatedPlaylists struct {
				Uploads string `json:"uploads"`
			} `json:"relatedPlaylists"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type thumbnail struct {
	URL string `json:"url"`
}

type playlistItemsResponse struct {
	Items []struct {
		Snippet struct {
			Title        string               `json:"title"`
			Description  string               `json:"description"`
			ChannelTitle string               `json:"channelTitle"`
			Thumbnails   map[string]thumbnail `json:"thumbnails"`
			ResourceID   struct {
				VideoID string `json:"videoId"`
			} `json:"resourceId"`
		} `json:"snippet"`
	} `json:"items"`
}

func (c *Collector) Collect(ctx context.Context) ([]domain.RawContent, error) {
	playlist, err := c.uploadsPlaylist(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("playlistId", playlist)
	params.Set("maxResults", fmt.Sprint(maxResults))
	params.Set("key", c.apiKey)

	var resp playlistItemsResponse
	if err := c.client.GetJSON(ctx, c.endpoint("playlistItems", params), nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch uploads of %s: %w", c.cfg.ChannelID, err)
	}

	var items []domain.RawContent
	for _, it := range resp.Items {
		sn := it.Snippet
		videoID := sn.ResourceID.VideoID
		if videoID == "" {
			continue
		}

		desc := []rune(sn.Description)
		if len(desc) > maxBodyRunes {
			desc = desc[:maxBodyRunes]
		}
		link := "https://youtu.be/" + videoID

		items = append(items, domain.RawContent{
			SourceID:   c.src.ID,
			ExternalID: videoID,
			Niche:      c.src.Niche,
			Category:   c.cfg.Category,
			Title:      sn.Title,
			URL:        link,
			Body:       string(desc),
			ImageURL:   bestThumbnail(sn.Thumbnails),
			Author:     sn.ChannelTitle,
			Metadata: map[string]string{
				"creator": sn.ChannelTitle,
			},
		})
	}
	return items, nil
}

func (c *Collector) uploadsPlaylist(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.playlist != "" {
		return c.playlist, nil
	}

	params := url.Values{}
	params.Set("part", "contentDetails")
	params.Set("id", c.cfg.ChannelID)
	params.Set("key", c.apiKey)

	var resp channelsResponse
	if err := c.client.GetJSON(ctx, c.endpoint("channels", params), nil, &resp); err != nil {
		return "", fmt.Errorf("look up channel %s: %w", c.cfg.ChannelID, err)
	}
	if len(resp.Items) == 0 || resp.Items[0].ContentDetails.RelatedPlaylists.Uploads == "" {
		return "", fmt.Errorf("channel %s not found", c.cfg.ChannelID)
	}

	c.playlist = resp.Items[0].ContentDetails.RelatedPlaylists.Uploads
	return c.playlist, nil
}

func (c *Collector) endpoint(resource string, params url.Values) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + resource + "?" + params.Encode()
}

func bestThumbnail(thumbs map[string]thumbnail) string {
	for _, size := range []string{"maxres", "high", "medium", "default"} {
		if t, ok := thumbs[size]; ok && t.URL != "" {
			return t.URL
		}
	}
	return ""
}
