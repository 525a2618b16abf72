package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"gopkg.in/yaml.v3"

	"autopost/internal/config"
	"autopost/internal/domain"
	"autopost/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	sourcesPath := flag.String("sources", "sources.yaml", "path to sources file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	data, err := os.ReadFile(*sourcesPath)
	if err != nil {
		logger.Error("failed to read sources file", "error", err)
		os.Exit(1)
	}

	sources, err := parseSources(data)
	if err != nil {
		logger.Error("failed to parse sources file", "error", err)
		os.Exit(1)
	}

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := postgres.NewSourceStore(db)
	txManager := postgres.NewTransactionManager(db)

	ctx := context.Background()
	err = txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		for i := range sources {
			id, err := store.Upsert(txCtx, &sources[i])
			if err != nil {
				return err
			}
			logger.Info("source upserted",
				"id", id,
				"niche", sources[i].Niche,
				"name", sources[i].Name,
				"type", sources[i].Type,
				"enabled", sources[i].Enabled,
			)
		}
		return nil
	})
	if err != nil {
		logger.Error("failed to seed sources", "error", err)
		os.Exit(1)
	}

	logger.Info("seeding completed", "sources", len(sources))
}

// parseSources reads a niche -> source list document. Keys other than name,
// type and enabled become the source's config object.
func parseSources(data []byte) ([]domain.Source, error) {
	var raw map[string][]map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	var out []domain.Source
	for _, niche := range slices.Sorted(maps.Keys(raw)) {
		for i, entry := range raw[niche] {
			src, err := toSource(niche, entry)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", niche, i, err)
			}
			out = append(out, src)
		}
	}
	return out, nil
}

func toSource(niche string, entry map[string]any) (domain.Source, error) {
	src := domain.Source{Niche: niche, Enabled: true}

	name, _ := entry["name"].(string)
	if name == "" {
		return src, errors.New("name is required")
	}
	typ, _ := entry["type"].(string)
	if typ == "" {
		return src, fmt.Errorf("source %s: type is required", name)
	}
	src.Name = name
	src.Type = typ

	if v, ok := entry["enabled"]; ok {
		enabled, ok := v.(bool)
		if !ok {
			return src, fmt.Errorf("source %s: enabled must be a boolean", name)
		}
		src.Enabled = enabled
	}

	cfg := make(map[string]any, len(entry))
	for k, v := range entry {
		switch k {
		case "name", "type", "enabled":
			continue
		}
		cfg[k] = v
	}
	body, err := json.Marshal(cfg)
	if err != nil {
		return src, fmt.Errorf("source %s: encode config: %w", name, err)
	}
	src.Config = body

	return src, nil
}
