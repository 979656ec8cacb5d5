package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/kalambet/marketlens/internal/api"
	"github.com/kalambet/marketlens/internal/config"
	"github.com/kalambet/marketlens/internal/fetch"
	"github.com/kalambet/marketlens/internal/llm"
	"github.com/kalambet/marketlens/internal/pipeline"
	"github.com/kalambet/marketlens/internal/proxy"
	"github.com/kalambet/marketlens/internal/storage"
)

// app bundles the components shared by serve and mcp.
type app struct {
	deps  api.Deps
	store storage.Store
	model string
}

func (a *app) Close() error {
	return a.store.Close()
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// newGenerator builds the model client for the configured provider, rate
// limited to cfg.Model.RequestsPerMinute.
func newGenerator(ctx context.Context, cfg config.Config) (llm.Generator, string, error) {
	key, err := cfg.ModelAPIKey()
	if err != nil {
		return nil, "", err
	}

	var gen llm.Generator
	model := cfg.Model.Name
	switch cfg.Model.Provider {
	case config.ProviderOpenRouter:
		if model == "" || model == llm.DefaultGeminiModel {
			model = proxy.DefaultModel
		}
		gen = proxy.NewClient(key, model)
	default:
		g, err := llm.NewGemini(ctx, llm.GeminiOptions{APIKey: key, Model: model})
		if err != nil {
			return nil, "", err
		}
		gen, model = g, g.Model()
	}
	return llm.WithRateLimit(gen, cfg.Model.RequestsPerMinute), model, nil
}

func openStore(cfg config.Config) (storage.Store, error) {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	store, err := storage.Open(cfg.Storage.Backend, cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return store, nil
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	gen, model, err := newGenerator(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	analyzer := pipeline.NewAnalyzer(gen, store, pipeline.Options{
		Grounding:          cfg.Model.Grounding,
		PersonaConcurrency: cfg.Pipeline.PersonaConcurrency,
	})

	return &app{
		deps: api.Deps{
			Analyzer:       analyzer,
			Store:          store,
			Fetcher:        fetch.New(nil, cfg.Fetch.Timeout),
			Token:          cfg.Secrets.APIToken,
			AllowedOrigins: cfg.Origins(),
		},
		store: store,
		model: model,
	}, nil
}
