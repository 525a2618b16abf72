// Package normalize turns collector output into the canonical RawContent shape
// the dedup gate and formatter expect.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"autopost/internal/domain"
)

// DefaultCategory is used when a collector could not tell what an item is.
const DefaultCategory = "breaking_news"

var ErrNoIdentity = errors.New("item has no external id, url or title")

// Normalize returns a cleaned copy of rec owned by sourceID and niche.
// Fields the collector already set for source and niche win.
func Normalize(rec domain.RawContent, sourceID int64, niche string) (domain.RawContent, error) {
	out := rec

	if out.SourceID == 0 {
		out.SourceID = sourceID
	}
	out.Niche = strings.TrimSpace(out.Niche)
	if out.Niche == "" {
		out.Niche = niche
	}

	out.Title = StripHTML(out.Title)
	out.Body = StripHTMLLines(out.Body)
	out.URL = strings.TrimSpace(out.URL)
	out.ImageURL = strings.TrimSpace(out.ImageURL)
	out.Author = strings.TrimSpace(out.Author)

	out.Category = strings.ToLower(strings.TrimSpace(out.Category))
	if out.Category == "" {
		out.Category = DefaultCategory
	}

	out.ExternalID = strings.TrimSpace(out.ExternalID)
	if out.ExternalID == "" {
		switch {
		case out.URL != "":
			out.ExternalID = hashID(out.URL)
		case out.Title != "":
			out.ExternalID = hashID(out.Title)
		default:
			return domain.RawContent{}, ErrNoIdentity
		}
	}

	meta := make(map[string]string, len(rec.Metadata))
	for k, v := range rec.Metadata {
		meta[k] = strings.TrimSpace(v)
	}
	out.Metadata = meta

	return out, nil
}

// StripHTML decodes entities, drops markup and collapses whitespace.
func StripHTML(s string) string {
	return collapse(plainText(s))
}

// StripHTMLLines is StripHTML for multi-line text: line breaks and block
// elements survive as "\n", blank lines are dropped.
func StripHTMLLines(s string) string {
	var lines []string
	for _, l := range strings.Split(plainText(s), "\n") {
		if l = collapse(l); l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n")
}

var blockElements = map[string]bool{
	"br": true, "p": true, "div": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "pre": true,
}

func plainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}

	var parts []string
	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, c *goquery.Selection) {
			name := goquery.NodeName(c)
			switch name {
			case "#text":
				parts = append(parts, c.Text())
			case "script", "style":
			default:
				walk(c)
				if blockElements[name] {
					parts = append(parts, "\n")
				}
			}
		})
	}
	walk(doc.Selection)

	return strings.Join(parts, " ")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func hashID(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:32]
}
