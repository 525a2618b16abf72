package scraper

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autopost/internal/domain"
	"autopost/internal/source"
	"autopost/internal/source/httpjson"
)

const articlesPage = `<html><body>
<article><h2>RLCS Grand Final preview and predictions</h2><a href="/news/grand-final/">Read</a></article>
<article><h3>Vitality signs a new roster member</h3><a href="https://esports.example.com/vitality#top">Read</a></article>
<article><h2>Short</h2><a href="/short">x</a></article>
<article><h2>RLCS Grand Final preview and predictions</h2><a href="/news/grand-final">Dup</a></article>
<article><h2>Community spotlight of the month</h2><a href="mailto:hi@example.com">Mail</a></article>
</body></html>`

const headingsPage = `<html><body>
<h2><a href="//cdn.example.com/geode-release">Geode loader reaches version four</a></h2>
<a href="/levels/acheron"><h3>Acheron verified as the new top one</h3></a>
<h3>Heading without any link at all</h3>
</body></html>`

func testDeps() source.Deps {
	return source.Deps{
		HTTP:   httpjson.Config{Timeout: time.Second, MaxAttempts: 1, MinInterval: time.Millisecond},
		Logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})),
	}
}

func collect(t *testing.T, niche, page string) []domain.RawContent {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(page))
	}))
	t.Cleanup(srv.Close)

	c, err := New(domain.Source{
		ID:     8,
		Niche:  niche,
		Name:   "news-page",
		Config: types.JSONText(`{"url":"` + srv.URL + `/news"}`),
	}, testDeps())
	require.NoError(t, err)

	items, err := c.Collect(context.Background())
	require.NoError(t, err)
	return items
}

func TestCollect_Articles(t *testing.T) {
	items := collect(t, "rocketleague", articlesPage)
	require.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, "RLCS Grand Final preview and predictions", first.Title)
	assert.Regexp(t, `^http://127\.0\.0\.1:\d+/news/grand-final$`, first.URL)
	assert.Equal(t, "esports_result", first.Category)
	assert.Regexp(t, `^scrape_[0-9a-f]{16}$`, first.ExternalID)

	second := items[1]
	assert.Equal(t, "https://esports.example.com/vitality", second.URL)
	assert.Equal(t, "roster_change", second.Category)
}

func TestCollect_HeadingFallback(t *testing.T) {
	items := collect(t, "geometrydash", headingsPage)
	require.Len(t, items, 2)

	assert.Equal(t, "http://cdn.example.com/geode-release", items[0].URL)
	assert.Equal(t, "mod_update", items[0].Category)
	assert.Equal(t, "Acheron verified as the new top one", items[1].Title)
	assert.Equal(t, "level_verified", items[1].Category)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, "patch_notes", Classify("rocketleague", "Hotfix deployed"))
	assert.Equal(t, "game_update", Classify("geometrydash", "RobTop teases more"))
	assert.Equal(t, "reddit_highlight", Classify("rocketleague", "Nothing to see"))
	assert.Equal(t, "reddit_highlight", Classify("chess", "update"))
}
