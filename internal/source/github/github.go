// Package github collects stable releases of a GitHub repository.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"autopost/internal/domain"
	"autopost/internal/source"
	"autopost/internal/source/httpjson"
)

const (
	DefaultBaseURL = "https://api.github.com"
	maxReleases    = 5
	maxBodyLines   = 6
	maxBodyRunes   = 300
)

var apiHeader = http.Header{"Accept": {"application/vnd.github+json"}}

type Config struct {
	// Repo is "owner/name".
	Repo     string `json:"repo"`
	Category string `json:"category"`
	BaseURL  string `json:"base_url"`
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
	if strings.Count(cfg.Repo, "/") != 1 {
		return nil, errors.New("github source requires repo as owner/name")
	}
	if cfg.Category == "" {
		cfg.Category = "mod_update"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	return &Collector{
		src:    src,
		cfg:    cfg,
		client: deps.Client(time.Second, "github"),
	}, nil
}

func (c *Collector) Name() string {
	return c.src.Name
}

type release struct {
	ID         int64  `json:"id"`
	TagName    string `json:"tag_name"`
	Name       string `json:"name"`
	Body       string `json:"body"`
	HTMLURL    string `json:"html_url"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

func (c *Collector) Collect(ctx context.Context) ([]domain.RawContent, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/releases?per_page=%d",
		strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Repo, maxReleases)

	var releases []release
	if err := c.client.GetJSON(ctx, endpoint, apiHeader, &releases); err != nil {
		return nil, fmt.Errorf("fetch releases of %s: %w", c.cfg.Repo, err)
	}

	repoName := c.cfg.Repo[strings.Index(c.cfg.Repo, "/")+1:]

	var items []domain.RawContent
	for _, r := range releases[:min(len(releases), maxReleases)] {
		if r.Draft || r.Prerelease {
			continue
		}

		name := strings.TrimSpace(r.Name)
		if name == "" {
			name = r.TagName
		}
		body := summarize(r.Body)
		desc := body
		if desc == "" {
			desc = fmt.Sprintf("%s %s released", repoName, r.TagName)
		}

		items = append(items, domain.RawContent{
			SourceID:   c.src.ID,
			ExternalID: fmt.Sprintf("gh_%d", r.ID),
			Niche:      c.src.Niche,
			Category:   c.cfg.Category,
			Title:      fmt.Sprintf("%s (%s)", name, repoName),
			URL:        r.HTMLURL,
			Body:       body,
			Metadata: map[string]string{
				"mod_name":     name,
				"version":      r.TagName,
				"download_url": r.HTMLURL,
				"description":  desc,
			},
		})
	}
	return items, nil
}

// summarize keeps the non-blank lines among the first few of a release body.
func summarize(body string) string {
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	lines = lines[:min(len(lines), maxBodyLines)]

	var kept []string
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			kept = append(kept, l)
		}
	}

	out := []rune(strings.Join(kept, "\n"))
	if len(out) > maxBodyRunes {
		out = out[:maxBodyRunes]
	}
	return string(out)
}
