// Package source turns configured sources into collectors.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"autopost/internal/domain"
	"autopost/internal/source/httpjson"
)

// TypeAPI sources pick their adapter through the "collector" config key.
const TypeAPI = "api"

var ErrUnknownType = errors.New("unknown source type")

type Collector interface {
	Name() string
	Collect(ctx context.Context) ([]domain.RawContent, error)
}

// Deps is what a factory may need beyond the source row itself.
type Deps struct {
	HTTP               httpjson.Config
	YouTubeAPIKey      string
	TwitterBearerToken string
	Logger             *slog.Logger
}

// Client returns an HTTP client paced at minInterval unless the deps already
// set a pace.
func (d Deps) Client(minInterval time.Duration, component string) *httpjson.Client {
	cfg := d.HTTP
	if cfg.MinInterval == 0 {
		cfg.MinInterval = minInterval
	}
	return httpjson.New(cfg, d.logger().With("component", component))
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

type Factory func(src domain.Source, deps Deps) (Collector, error)

type Registry struct {
	types map[string]Factory
	apis  map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{
		types: make(map[string]Factory),
		apis:  make(map[string]Factory),
	}
}

// Register binds a source type tag to a factory.
func (r *Registry) Register(sourceType string, f Factory) {
	r.types[sourceType] = f
}

// RegisterAPI binds an "api" source's collector name to a factory.
func (r *Registry) RegisterAPI(collector string, f Factory) {
	r.apis[collector] = f
}

// Build returns the collector for src or an error wrapping ErrUnknownType.
func (r *Registry) Build(src domain.Source, deps Deps) (Collector, error) {
	if src.Type == TypeAPI {
		var sel struct {
			Collector string `json:"collector"`
		}
		if err := DecodeConfig(src, &sel); err != nil {
			return nil, err
		}
		f, ok := r.apis[sel.Collector]
		if !ok {
			return nil, fmt.Errorf("%w: api collector %q", ErrUnknownType, sel.Collector)
		}
		return f(src, deps)
	}

	f, ok := r.types[src.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, src.Type)
	}
	return f(src, deps)
}

// DecodeConfig unmarshals the source's JSON config into out. An empty config
// leaves out untouched.
func DecodeConfig(src domain.Source, out any) error {
	if len(src.Config) == 0 {
		return nil
	}
	if err := json.Unmarshal(src.Config, out); err != nil {
		return fmt.Errorf("decode config for source %s/%s: %w", src.Niche, src.Name, err)
	}
	return nil
}

// PollInterval reads "poll_interval" (seconds) from the source config.
func PollInterval(src domain.Source, def time.Duration) time.Duration {
	var cfg struct {
		PollInterval float64 `json:"poll_interval"`
	}
	if err := DecodeConfig(src, &cfg); err != nil || cfg.PollInterval <= 0 {
		return def
	}
	d := time.Duration(cfg.PollInterval * float64(time.Second))
	if d <= 0 {
		return def
	}
	return d
}
