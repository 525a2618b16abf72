package rss

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

const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Rocket League News</title>
  <item>
    <title>Season 14 Begins Today &amp; More</title>
    <link>https://www.rocketleague.com/news/season-14</link>
    <guid>rl-season-14</guid>
    <description>&lt;p&gt;New arena and &lt;b&gt;rewards&lt;/b&gt;.&lt;/p&gt;</description>
    <enclosure url="https://cdn.example.com/s14.jpg" type="image/jpeg" length="1000"/>
  </item>
  <item>
    <title>Hotfix for the matchmaking bug</title>
    <link>https://www.rocketleague.com/news/hotfix</link>
    <description>Deployed now.</description>
  </item>
  <item>
    <title>Mystery post</title>
    <description>No link and no guid.</description>
  </item>
</channel>
</rss>`

func testDeps() source.Deps {
	return source.Deps{
		HTTP:   httpjson.Config{Timeout: time.Second, MaxAttempts: 1, MinInterval: time.Millisecond},
		Logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})),
	}
}

func TestCollect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Accept"), "application/rss+xml")
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(feedXML))
	}))
	defer srv.Close()

	src := domain.Source{
		ID:     7,
		Niche:  "rocketleague",
		Name:   "rl-official",
		Type:   "rss",
		Config: types.JSONText(`{"url":"` + srv.URL + `"}`),
	}
	c, err := New(src, testDeps())
	require.NoError(t, err)
	assert.Equal(t, "rl-official", c.Name())

	items, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 3)

	first := items[0]
	assert.Equal(t, int64(7), first.SourceID)
	assert.Equal(t, "rocketleague", first.Niche)
	assert.Equal(t, "rl-season-14", first.ExternalID)
	assert.Equal(t, "Season 14 Begins Today & More", first.Title)
	assert.Equal(t, "New arena and rewards .", first.Body)
	assert.Equal(t, "season_start", first.Category)
	assert.Equal(t, "https://cdn.example.com/s14.jpg", first.ImageURL)

	assert.Equal(t, "https://www.rocketleague.com/news/hotfix", items[1].ExternalID)
	assert.Equal(t, "patch_notes", items[1].Category)

	assert.Len(t, items[2].ExternalID, 64)
}

func TestCollect_CategoryOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feedXML))
	}))
	defer srv.Close()

	c, err := New(domain.Source{
		Niche:  "rocketleague",
		Name:   "rl-esports",
		Config: types.JSONText(`{"url":"` + srv.URL + `","category":"esports_result"}`),
	}, testDeps())
	require.NoError(t, err)

	items, err := c.Collect(context.Background())
	require.NoError(t, err)
	for _, it := range items {
		assert.Equal(t, "esports_result", it.Category)
	}
}

func TestCollect_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := New(domain.Source{Name: "broken", Config: types.JSONText(`{"url":"` + srv.URL + `"}`)}, testDeps())
	require.NoError(t, err)

	_, err = c.Collect(context.Background())
	assert.ErrorContains(t, err, "fetch feed")
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New(domain.Source{Name: "empty"}, testDeps())
	assert.Error(t, err)
}

func TestDetectCategory(t *testing.T) {
	tests := []struct {
		niche, title, want string
	}{
		{"rocketleague", "RLCS World Championship recap", "event_announcement"},
		{"rocketleague", "Item Shop for today", "item_shop"},
		{"rocketleague", "Community spotlight", "patch_notes"},
		{"geometrydash", "Geode v4 is out", "mod_update"},
		{"geometrydash", "New level rated", "level_rated"},
		{"geometrydash", "A quiet week", "game_update"},
		{"chess", "Anything", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectCategory(tt.niche, tt.title, ""), tt.title)
	}
}
