package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IshaanNene/pricewatch/internal/ai"
	"github.com/IshaanNene/pricewatch/internal/config"
	"github.com/IshaanNene/pricewatch/internal/engine"
	"github.com/IshaanNene/pricewatch/internal/fetcher"
	"github.com/IshaanNene/pricewatch/internal/forecast"
	"github.com/IshaanNene/pricewatch/internal/notify"
	"github.com/IshaanNene/pricewatch/internal/observability"
	"github.com/IshaanNene/pricewatch/internal/parser"
	"github.com/IshaanNene/pricewatch/internal/sentiment"
	"github.com/IshaanNene/pricewatch/internal/storage"
	"github.com/IshaanNene/pricewatch/internal/strategy"
)

// app holds every component built from the configuration.
type app struct {
	cfg     *config.Config
	engine  *engine.Engine
	fetcher *fetcher.PageFetcher
	store   storage.Store
	latest  *storage.LatestStore
	metrics *observability.Metrics
	logger  *slog.Logger
}

// openStore opens the CSV history and attaches the enabled mirrors.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	csvStore, err := storage.NewCSVStore(cfg.Storage.Dir, cfg.Storage.ObservationFile, cfg.Storage.ReviewFile, logger)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}

	var mirrors []storage.Mirror
	if cfg.Storage.Mongo.Enabled {
		m, err := storage.NewMongoMirror(ctx, cfg.Storage.Mongo.URI, cfg.Storage.Mongo.Database, logger)
		if err != nil {
			logger.Warn("mongodb mirror disabled", "error", err)
		} else {
			mirrors = append(mirrors, m)
		}
	}
	if cfg.Storage.Postgres.Enabled {
		m, err := storage.NewPostgresMirror(ctx, cfg.Storage.Postgres.DSN, cfg.Storage.Postgres.MaxConns, logger)
		if err != nil {
			logger.Warn("postgres mirror disabled", "error", err)
		} else {
			mirrors = append(mirrors, m)
		}
	}
	if len(mirrors) == 0 {
		return csvStore, nil
	}
	return storage.NewMirroredStore(csvStore, mirrors, logger), nil
}

// newApp wires the full pipeline. The caller must call close.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	pf, err := fetcher.NewFromConfig(cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("create fetcher: %w", err)
	}

	completer := ai.NewLLMClient(ai.LLMConfig{
		Provider: ai.LLMProvider(cfg.AI.Provider),
		Endpoint: cfg.AI.Endpoint,
		Model:    cfg.AI.Model,
		APIKey:   cfg.AI.APIKey,
		Timeout:  cfg.AI.Timeout,
	}, logger)

	var classifier sentiment.Classifier
	switch cfg.Sentiment.Provider {
	case "http":
		classifier = sentiment.NewHTTPClassifier(cfg.Sentiment.Endpoint, cfg.Sentiment.APIKey, cfg.AI.Timeout)
	default:
		classifier = sentiment.NewLLMClassifier(completer, "")
	}

	a := &app{
		cfg:     cfg,
		fetcher: pf,
		store:   store,
		logger:  logger,
	}

	deps := engine.Deps{
		Fetcher:     pf,
		Extractor:   parser.NewExtractor(cfg.Parser, logger),
		Store:       store,
		Forecaster:  forecast.New(forecast.ARModel{Order: cfg.Forecast.Order}, logger),
		Sentiment:   sentiment.NewAggregator(classifier, logger),
		Recommender: strategy.New(completer, strategy.Options{Model: cfg.AI.Model, Temperature: cfg.AI.Temperature}, logger),
	}

	dispatcher := notify.NewDispatcherFromConfig(cfg.Notify, logger)
	if !dispatcher.Enabled() {
		logger.Warn("no notification channel configured; recommendations will only be logged")
	}
	deps.Dispatcher = dispatcher

	if cfg.Storage.Redis.Enabled {
		r := cfg.Storage.Redis
		client, err := storage.NewRedisClient(ctx, r.Addr, r.Password, r.DB)
		if err != nil {
			logger.Warn("latest snapshots disabled", "error", err)
		} else {
			a.latest = storage.NewLatestStore(client, r.Prefix, r.TTL, logger)
			deps.Publisher = a.latest
		}
	}

	if cfg.Metrics.Enabled {
		a.metrics = observability.NewMetrics(logger)
		deps.Metrics = a.metrics
		go func() {
			if err := a.metrics.Serve(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				logger.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	a.engine = engine.New(engine.OptionsFromConfig(cfg), deps, logger)
	return a, nil
}

func (a *app) close() {
	if err := a.fetcher.Close(); err != nil {
		a.logger.Warn("closing fetcher", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store", "error", err)
	}
	if a.latest != nil {
		if err := a.latest.Close(); err != nil {
			a.logger.Warn("closing redis", "error", err)
		}
	}
}
