// Package rss collects RSS and Atom feeds.
package rss

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"autopost/internal/domain"
	"autopost/internal/normalize"
	"autopost/internal/source"
	"autopost/internal/source/httpjson"
)

const feedAccept = "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8"

type Config struct {
	URL string `json:"url"`
	// Category forces a category for every entry instead of keyword detection.
	Category string `json:"category"`
}

type Collector struct {
	src    domain.Source
	cfg    Config
	client *httpjson.Client
	parser *gofeed.Parser
}

func New(src domain.Source, deps source.Deps) (source.Collector, error) {
	var cfg Config
	if err := source.DecodeConfig(src, &cfg); err != nil {
		return nil, err
	}
	if cfg.URL == "" {
		return nil, errors.New("rss source requires url")
	}

	return &Collector{
		src:    src,
		cfg:    cfg,
		client: deps.Client(time.Second, "rss"),
		parser: gofeed.NewParser(),
	}, nil
}

func (c *Collector) Name() string {
	return c.src.Name
}

func (c *Collector) Collect(ctx context.Context) ([]domain.RawContent, error) {
	body, err := c.client.Get(ctx, c.cfg.URL, http.Header{"Accept": {feedAccept}})
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", c.cfg.URL, err)
	}

	feed, err := c.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", c.cfg.URL, err)
	}

	items := make([]domain.RawContent, 0, len(feed.Items))
	for _, item := range feed.Items {
		items = append(items, c.convert(item))
	}
	return items, nil
}

func (c *Collector) convert(item *gofeed.Item) domain.RawContent {
	title := html.UnescapeString(item.Title)

	summary := item.Description
	if summary == "" {
		summary = item.Content
	}
	summary = normalize.StripHTML(summary)

	category := c.cfg.Category
	if category == "" {
		category = DetectCategory(c.src.Niche, title, summary)
	}

	author := ""
	if item.Author != nil {
		author = item.Author.Name
	}

	meta := map[string]string{}
	if item.Published != "" {
		meta["published"] = item.Published
	}
	if len(item.Categories) > 0 {
		meta["tags"] = strings.Join(item.Categories, ", ")
	}

	return domain.RawContent{
		SourceID:   c.src.ID,
		ExternalID: externalID(item),
		Niche:      c.src.Niche,
		Category:   category,
		Title:      title,
		URL:        item.Link,
		Body:       summary,
		ImageURL:   imageURL(item),
		Author:     author,
		Metadata:   meta,
	}
}

func externalID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	if item.Link != "" {
		return item.Link
	}
	sum := sha256.Sum256([]byte(item.Title))
	return hex.EncodeToString(sum[:])
}

func imageURL(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	if media, ok := item.Extensions["media"]; ok {
		for _, key := range []string{"content", "thumbnail"} {
			for _, e := range media[key] {
				medium, typ := e.Attrs["medium"], e.Attrs["type"]
				if key == "content" && medium != "image" && !strings.HasPrefix(typ, "image") {
					continue
				}
				if u := e.Attrs["url"]; u != "" {
					return u
				}
			}
		}
	}
	for _, enc := range item.Enclosures {
		if strings.HasPrefix(enc.Type, "image") && enc.URL != "" {
			return enc.URL
		}
	}
	return ""
}
