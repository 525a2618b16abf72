// Package scraper extracts headline and link pairs from news pages that use
// article or heading markup.
package scraper

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"autopost/internal/domain"
	"autopost/internal/source"
	"autopost/internal/source/httpjson"
)

const (
	maxItems      = 10
	minTitleRunes = 15
	maxTitleRunes = 200
	maxArticles   = 30
	maxHeadings   = 40
)

var pageHeader = http.Header{
	"Accept":          {"text/html,application/xhtml+xml"},
	"Accept-Language": {"en-US,en;q=0.9"},
}

type Config struct {
	URL string `json:"url"`
}

type Collector struct {
	src    domain.Source
	page   *url.URL
	client *httpjson.Client
}

func New(src domain.Source, deps source.Deps) (source.Collector, error) {
	var cfg Config
	if err := source.DecodeConfig(src, &cfg); err != nil {
		return nil, err
	}
	if cfg.URL == "" {
		return nil, errors.New("scraper source requires url")
	}
	page, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse scraper url: %w", err)
	}

	return &Collector{
		src:    src,
		page:   page,
		client: deps.Client(2*time.Second, "scraper"),
	}, nil
}

func (c *Collector) Name() string {
	return c.src.Name
}

type candidate struct {
	title string
	href  string
}

func (c *Collector) Collect(ctx context.Context) ([]domain.RawContent, error) {
	body, err := c.client.Get(ctx, c.page.String(), pageHeader)
	if err != nil {
		return nil, fmt.Errorf("fetch page %s: %w", c.page, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse page %s: %w", c.page, err)
	}

	return c.extract(doc), nil
}

func (c *Collector) extract(doc *goquery.Document) []domain.RawContent {
	var candidates []candidate

	doc.Find("article").Slice(0, min(doc.Find("article").Length(), maxArticles)).Each(func(_ int, art *goquery.Selection) {
		heading := art.Find("h1, h2, h3").First()
		link := art.Find("a[href]").First()
		if heading.Length() > 0 && link.Length() > 0 {
			href, _ := link.Attr("href")
			candidates = append(candidates, candidate{title: text(heading), href: href})
		}
	})

	if len(candidates) < 3 {
		headings := doc.Find("h2, h3")
		headings.Slice(0, min(headings.Length(), maxHeadings)).Each(func(_ int, h *goquery.Selection) {
			link := h.Find("a[href]").First()
			if link.Length() == 0 {
				link = h.Closest("a[href]")
			}
			href, ok := link.Attr("href")
			if !ok || href == "" {
				return
			}
			candidates = append(candidates, candidate{title: text(h), href: href})
		})
	}

	seen := make(map[string]bool)
	var items []domain.RawContent
	for _, cand := range candidates {
		if len([]rune(cand.title)) < minTitleRunes {
			continue
		}
		link, ok := c.resolve(cand.href)
		if !ok || seen[link] {
			continue
		}
		seen[link] = true

		title := []rune(cand.title)
		if len(title) > maxTitleRunes {
			title = title[:maxTitleRunes]
		}

		items = append(items, domain.RawContent{
			SourceID:   c.src.ID,
			ExternalID: externalID(link),
			Niche:      c.src.Niche,
			Category:   Classify(c.src.Niche, string(title)),
			Title:      string(title),
			URL:        link,
			Metadata:   map[string]string{},
		})
		if len(items) >= maxItems {
			break
		}
	}
	return items
}

// resolve makes href absolute and drops the fragment and trailing slash.
func (c *Collector) resolve(href string) (string, bool) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	abs := c.page.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	abs.Fragment = ""
	return strings.TrimRight(abs.String(), "/"), true
}

func text(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}

func externalID(link string) string {
	sum := sha256.Sum256([]byte(link))
	return "scrape_" + hex.EncodeToString(sum[:])[:16]
}
