// Package engine runs the monitoring pipeline over a product catalog:
// ingestion through a worker pool, then per-product forecasting,
// sentiment, recommendation and dispatch.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/IshaanNene/pricewatch/internal/config"
	"github.com/IshaanNene/pricewatch/internal/fetcher"
	"github.com/IshaanNene/pricewatch/internal/observability"
	"github.com/IshaanNene/pricewatch/internal/storage"
	"github.com/IshaanNene/pricewatch/internal/strategy"
	"github.com/IshaanNene/pricewatch/internal/types"
)

// Fetcher loads a product page.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) (*types.Page, error)
}

// Extractor recovers fields from a loaded page.
type Extractor interface {
	Extract(ctx context.Context, page *types.Page) types.PartialRecord
}

// Forecaster projects a discount series forward.
type Forecaster interface {
	Forecast(series types.TimeSeries, horizon int) (*types.Forecast, error)
}

// SentimentAggregator classifies a batch of reviews.
type SentimentAggregator interface {
	Classify(ctx context.Context, reviews []string, maxLen int) []types.SentimentResult
}

// Recommender synthesizes a strategy for one product.
type Recommender interface {
	Recommend(ctx context.Context, in strategy.Input) (*types.Recommendation, error)
}

// Dispatcher delivers a recommendation.
type Dispatcher interface {
	Dispatch(ctx context.Context, rec *types.Recommendation) ([]types.DispatchResult, error)
}

// Publisher stores the latest per-product snapshot.
type Publisher interface {
	Publish(ctx context.Context, snap storage.Snapshot) error
}

// Options tunes the engine.
type Options struct {
	Concurrency     int
	Horizon         int
	MaxReviewLength int
}

// OptionsFromConfig reads Options from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Concurrency:     cfg.Engine.Concurrency,
		Horizon:         cfg.Forecast.Horizon,
		MaxReviewLength: cfg.Sentiment.MaxLength,
	}
}

// Deps are the components the engine drives. Fetcher, Extractor and Store
// are required for ingestion; the rest are required by Run except
// Dispatcher, Publisher and Metrics, which may be nil.
type Deps struct {
	Fetcher     Fetcher
	Extractor   Extractor
	Store       storage.Store
	Forecaster  Forecaster
	Sentiment   SentimentAggregator
	Recommender Recommender
	Dispatcher  Dispatcher
	Publisher   Publisher
	Metrics     *observability.Metrics
}

// Engine is the pipeline orchestrator.
type Engine struct {
	opts   Options
	deps   Deps
	pool   *Pool
	logger *slog.Logger
	now    func() time.Time
}

// New creates an Engine.
func New(opts Options, deps Deps, logger *slog.Logger) *Engine {
	if opts.Horizon < 1 {
		opts.Horizon = 5
	}
	e := &Engine{
		opts:   opts,
		deps:   deps,
		pool:   NewPool(opts.Concurrency, logger),
		logger: logger.With("component", "engine"),
		now:    time.Now,
	}
	if deps.Metrics != nil {
		e.pool.onActive = func(n int32) { deps.Metrics.ActiveWorkers.Set(float64(n)) }
	}
	return e
}

// Ingest fetches and extracts every catalog product and appends the results
// to the store. The returned slice is in catalog order with one Observation
// per product. If ctx is cancelled, products not yet started are recorded
// with all defaults without being fetched, and ctx.Err() is returned.
func (e *Engine) Ingest(ctx context.Context, catalog []types.Product) ([]types.Observation, error) {
	out := make([]types.Observation, len(catalog))
	started := e.pool.Run(ctx, len(catalog), func(ctx context.Context, i int) {
		out[i] = e.ingestOne(ctx, catalog[i])
	})
	for i, ok := range started {
		if !ok {
			out[i] = e.recordSkipped(ctx, catalog[i])
		}
	}
	return out, ctx.Err()
}

// recordSkipped appends the fully defaulted observation for a product the
// run never reached.
func (e *Engine) recordSkipped(ctx context.Context, p types.Product) types.Observation {
	obs := types.DefaultedObservation(p.Name, e.now())
	if err := e.deps.Store.AppendObservation(context.WithoutCancel(ctx), obs); err != nil {
		e.storeFailed(e.logger.With("product", p.Name), "observation", err)
	}
	e.logger.Info("product skipped, recording defaults", "product", p.Name)
	return obs
}

// ingestOne produces exactly one Observation for p. A fetch failure yields
// the fully defaulted observation.
func (e *Engine) ingestOne(ctx context.Context, p types.Product) types.Observation {
	logger := e.logger.With("product", p.Name)
	ts := e.now()

	var (
		obs     types.Observation
		reviews []string
	)
	page, err := e.deps.Fetcher.Fetch(ctx, p.URL)
	if err != nil {
		if fetcher.IsCancelled(err) {
			logger.Info("fetch cancelled, recording defaults", "url", p.URL)
		} else {
			logger.Warn("fetch failed, recording defaults", "url", p.URL, "error", err)
		}
		e.countFetch(observability.OutcomeFailed)
		obs = types.DefaultedObservation(p.Name, ts)
	} else {
		rec := e.deps.Extractor.Extract(ctx, page)
		_ = page.Close()
		for _, ferr := range rec.Errors {
			logger.Debug("field defaulted", "field", ferr.Field.String(), "selector", ferr.Selector, "error", ferr.Err)
		}
		e.countFetch(observability.OutcomeOK)
		obs = rec.Observation(p.Name, ts)
		reviews = rec.Reviews
	}

	if m := e.deps.Metrics; m != nil {
		for _, f := range obs.Defaulted().List() {
			m.FieldsDefaulted.WithLabelValues(f).Inc()
		}
	}

	// Appends complete even when the run is being cancelled.
	storeCtx := context.WithoutCancel(ctx)
	if err := e.deps.Store.AppendObservation(storeCtx, obs); err != nil {
		e.storeFailed(logger, "observation", err)
	}
	for _, text := range reviews {
		rev := types.ReviewRecord{Product: p.Name, Text: text, Timestamp: ts}
		if err := e.deps.Store.AppendReview(storeCtx, rev); err != nil {
			e.storeFailed(logger, "review", err)
		}
	}

	logger.Info("product ingested",
		"price", obs.Price,
		"discount", obs.Discount,
		"rating", obs.Rating,
		"reviews", len(reviews),
		"defaulted", obs.Defaulted().String(),
	)
	return obs
}

func (e *Engine) storeFailed(logger *slog.Logger, what string, err error) {
	logger.Error("store append failed", "record", what, "error", err)
	if e.deps.Metrics != nil {
		e.deps.Metrics.StoreErrors.Inc()
	}
}

func (e *Engine) countFetch(outcome string) {
	if e.deps.Metrics != nil {
		e.deps.Metrics.Fetches.WithLabelValues(outcome).Inc()
	}
}
