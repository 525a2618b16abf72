// Package collectors wires every built-in adapter into a source registry.
package collectors

import (
	"autopost/internal/source"
	"autopost/internal/source/gdbrowser"
	"autopost/internal/source/github"
	"autopost/internal/source/octane"
	"autopost/internal/source/pointercrate"
	"autopost/internal/source/reddit"
	"autopost/internal/source/rss"
	"autopost/internal/source/scraper"
	"autopost/internal/source/twitter"
	"autopost/internal/source/youtube"
)

func Registry() *source.Registry {
	r := source.NewRegistry()

	r.Register("rss", rss.New)
	r.Register("reddit", reddit.New)
	r.Register("youtube", youtube.New)
	r.Register("twitter", twitter.New)
	r.Register("scraper", scraper.New)

	r.RegisterAPI("pointercrate", pointercrate.New)
	r.RegisterAPI("gdbrowser", gdbrowser.New)
	r.RegisterAPI("octane", octane.New)
	r.RegisterAPI("github", github.New)

	return r
}
