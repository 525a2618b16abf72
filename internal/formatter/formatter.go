// Package formatter renders collected items into post text using per-niche,
// per-category template variants.
package formatter

import (
	_ "embed"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"autopost/internal/domain"
)

//go:embed templates.yaml
var defaultTemplates []byte

type Kind int

const (
	// None means the item cannot be turned into a post.
	None Kind = iota
	Text
	Repost
)

type Result struct {
	Kind     Kind
	Text     string
	RepostID string
}

type templateSet struct {
	Repost   bool     `yaml:"repost"`
	Variants []string `yaml:"variants"`
}

type compiledSet struct {
	repost   bool
	variants []*template.Template
}

type Formatter struct {
	sets     map[string]map[string]compiledSet
	maxChars int
	shuffle  func(n int) []int
	logger   *slog.Logger
}

// Load reads templates from path, or the built-in set when path is empty.
func Load(path string, maxChars int, logger *slog.Logger) (*Formatter, error) {
	data := defaultTemplates
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read templates: %w", err)
		}
	}
	return New(data, maxChars, logger)
}

func New(data []byte, maxChars int, logger *slog.Logger) (*Formatter, error) {
	var raw map[string]map[string]templateSet
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	sets := make(map[string]map[string]compiledSet, len(raw))
	for niche, categories := range raw {
		sets[niche] = make(map[string]compiledSet, len(categories))
		for category, set := range categories {
			compiled := compiledSet{repost: set.Repost}
			for i, v := range set.Variants {
				name := fmt.Sprintf("%s/%s/%d", niche, category, i)
				tmpl, err := template.New(name).Option("missingkey=error").Parse(v)
				if err != nil {
					return nil, fmt.Errorf("compile template %s: %w", name, err)
				}
				compiled.variants = append(compiled.variants, tmpl)
			}
			if !compiled.repost && len(compiled.variants) == 0 {
				return nil, fmt.Errorf("template set %s/%s has no variants", niche, category)
			}
			sets[niche][category] = compiled
		}
	}

	return &Formatter{
		sets:     sets,
		maxChars: maxChars,
		shuffle:  rand.Perm,
		logger:   logger,
	}, nil
}

// Format renders rec. A variant wins if every field it uses is known and the
// result fits; otherwise the first renderable variant is truncated, and as a
// last resort the title and url are posted.
func (f *Formatter) Format(rec *domain.RawContent) Result {
	set, ok := f.sets[rec.Niche][rec.Category]
	if !ok {
		f.logger.Debug("no template for category",
			"niche", rec.Niche,
			"category", rec.Category,
		)
		return f.fallback(rec)
	}

	if set.repost {
		if id := rec.Metadata[domain.MetaRepostID]; id != "" {
			return Result{Kind: Repost, RepostID: id}
		}
		f.logger.Warn("repost signal without post id, skipping",
			"niche", rec.Niche,
			"external_id", rec.ExternalID,
		)
		return Result{Kind: None}
	}

	ctx := buildContext(rec)
	order := f.shuffle(len(set.variants))

	var firstRendered string
	for _, i := range order {
		text, ok := render(set.variants[i], ctx)
		if !ok {
			continue
		}
		if runeLen(text) <= f.maxChars {
			return Result{Kind: Text, Text: text}
		}
		if firstRendered == "" {
			firstRendered = text
		}
	}

	if firstRendered != "" {
		return Result{Kind: Text, Text: Truncate(firstRendered, f.maxChars)}
	}
	return f.fallback(rec)
}

func (f *Formatter) fallback(rec *domain.RawContent) Result {
	title := strings.TrimSpace(rec.Title)
	url := strings.TrimSpace(rec.URL)

	var text string
	switch {
	case title != "" && url != "":
		text = title + "\n\n" + url
	case title != "":
		text = title
	case url != "":
		text = url
	default:
		return Result{Kind: None}
	}
	return Result{Kind: Text, Text: Truncate(text, f.maxChars)}
}

func render(tmpl *template.Template, ctx map[string]string) (string, bool) {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, ctx); err != nil {
		return "", false
	}
	text := strings.TrimSpace(sb.String())
	return text, text != ""
}

// Truncate shortens text to at most limit runes, cutting at the last space
// and appending an ellipsis.
func Truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	if limit < 1 {
		return ""
	}

	cut := string(runes[:limit-1])
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " \n") + "…"
}

func runeLen(s string) int {
	return len([]rune(s))
}
