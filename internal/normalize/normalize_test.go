package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autopost/internal/domain"
)

func TestNormalize_StampsSourceAndNiche(t *testing.T) {
	got, err := Normalize(domain.RawContent{ExternalID: " pc_500 ", Category: "TOP1_Verified", Title: "Flamewall"}, 7, "geometrydash")
	require.NoError(t, err)

	assert.Equal(t, int64(7), got.SourceID)
	assert.Equal(t, "geometrydash", got.Niche)
	assert.Equal(t, "pc_500", got.ExternalID)
	assert.Equal(t, "top1_verified", got.Category)
	assert.NotNil(t, got.Metadata)
}

func TestNormalize_KeepsCollectorNiche(t *testing.T) {
	got, err := Normalize(domain.RawContent{ExternalID: "1", Niche: "rocketleague", SourceID: 3}, 7, "geometrydash")
	require.NoError(t, err)

	assert.Equal(t, int64(3), got.SourceID)
	assert.Equal(t, "rocketleague", got.Niche)
}

func TestNormalize_CleansText(t *testing.T) {
	got, err := Normalize(domain.RawContent{
		ExternalID: "1",
		Title:      "  Patch &amp; Hotfix  ",
		Body:       "<p>New <b>season</b></p>\n\n<p>starts   today</p><script>track()</script>",
		URL:        " https://example.com/a ",
		Metadata:   map[string]string{"version": " 2.21 "},
	}, 1, "rocketleague")
	require.NoError(t, err)

	assert.Equal(t, "Patch & Hotfix", got.Title)
	assert.Equal(t, "New season\nstarts today", got.Body)
	assert.Equal(t, "https://example.com/a", got.URL)
	assert.Equal(t, "2.21", got.Metadata["version"])
}

func TestNormalize_DefaultCategory(t *testing.T) {
	got, err := Normalize(domain.RawContent{ExternalID: "1"}, 1, "geometrydash")
	require.NoError(t, err)

	assert.Equal(t, DefaultCategory, got.Category)
}

func TestNormalize_DerivesExternalID(t *testing.T) {
	fromURL, err := Normalize(domain.RawContent{URL: "https://example.com/a", Title: "A"}, 1, "n")
	require.NoError(t, err)
	assert.Len(t, fromURL.ExternalID, 32)

	again, err := Normalize(domain.RawContent{URL: "https://example.com/a", Title: "B"}, 1, "n")
	require.NoError(t, err)
	assert.Equal(t, fromURL.ExternalID, again.ExternalID, "derived id depends on the url only")

	fromTitle, err := Normalize(domain.RawContent{Title: "Only a title"}, 1, "n")
	require.NoError(t, err)
	assert.Len(t, fromTitle.ExternalID, 32)
	assert.NotEqual(t, fromURL.ExternalID, fromTitle.ExternalID)
}

func TestNormalize_NoIdentity(t *testing.T) {
	_, err := Normalize(domain.RawContent{Body: "orphan"}, 1, "n")

	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	meta := map[string]string{"k": " v "}
	in := domain.RawContent{ExternalID: "1", Metadata: meta}

	_, err := Normalize(in, 1, "n")
	require.NoError(t, err)

	assert.Equal(t, " v ", meta["k"])
}

func TestNormalize_KeepsBodyLines(t *testing.T) {
	got, err := Normalize(domain.RawContent{
		ExternalID: "1",
		Title:      "Geode v4.1.0\nreleased",
		Body:       "- Fixed  crash\r\n\n-   Added icons\n\t- New menu  ",
	}, 1, "geometrydash")
	require.NoError(t, err)

	assert.Equal(t, "Geode v4.1.0 released", got.Title)
	assert.Equal(t, "- Fixed crash\n- Added icons\n- New menu", got.Body)
}

func TestStripHTMLLines(t *testing.T) {
	assert.Equal(t, "one\ntwo", StripHTMLLines("  one \n\n\n two "))
	assert.Equal(t, "a\nb", StripHTMLLines("a<br>b"))
	assert.Equal(t, "Intro\nFirst\nSecond", StripHTMLLines("<p>Intro</p><ul><li>First</li><li>Second</li></ul>"))
	assert.Equal(t, "Tom & Jerry", StripHTMLLines("Tom &amp; Jerry"))
	assert.Equal(t, "", StripHTMLLines(" \n "))
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "plain text", StripHTML("  plain \n text "))
	assert.Equal(t, "a b", StripHTML("a<br>b"))
	assert.Equal(t, "Tom & Jerry", StripHTML("Tom &amp; Jerry"))
	assert.Equal(t, "", StripHTML(""))
}
