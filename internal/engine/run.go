package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/IshaanNene/pricewatch/internal/observability"
	"github.com/IshaanNene/pricewatch/internal/sentiment"
	"github.com/IshaanNene/pricewatch/internal/storage"
	"github.com/IshaanNene/pricewatch/internal/strategy"
	"github.com/IshaanNene/pricewatch/internal/types"
)

// ProductReport is the outcome of one product's pipeline.
type ProductReport struct {
	Product        types.Product
	Skipped        bool
	Observation    types.Observation
	Forecast       *types.Forecast
	ForecastErr    error
	Sentiment      []types.SentimentResult
	Recommendation *types.Recommendation
	RecommendErr   error
	Dispatch       []types.DispatchResult
	DispatchErr    error
	Duration       time.Duration
}

// Analyzed reports whether the product got past ingestion.
func (r ProductReport) Analyzed() bool {
	return !r.Skipped && (r.Recommendation != nil || r.RecommendErr != nil)
}

// RunReport summarizes a full pipeline run.
type RunReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Cancelled  bool
	Products   []ProductReport
}

// Delivered counts products whose recommendation reached every channel.
func (r *RunReport) Delivered() int {
	n := 0
	for _, p := range r.Products {
		if p.Recommendation != nil && p.DispatchErr == nil {
			n++
		}
	}
	return n
}

// Run executes the whole pipeline for every catalog product. Per-product
// failures are recorded in the report and never abort the run. Products
// not started before ctx is cancelled are marked Skipped with a defaulted
// observation written to the store, and a product
// whose ingestion finishes after cancellation skips its analysis.
func (e *Engine) Run(ctx context.Context, catalog []types.Product) *RunReport {
	report := &RunReport{
		RunID:     uuid.NewString(),
		StartedAt: e.now(),
		Products:  make([]ProductReport, len(catalog)),
	}
	logger := e.logger.With("run_id", report.RunID)
	logger.Info("run starting", "products", len(catalog), "concurrency", e.opts.Concurrency)
	if m := e.deps.Metrics; m != nil {
		m.Runs.Inc()
	}

	started := e.pool.Run(ctx, len(catalog), func(ctx context.Context, i int) {
		report.Products[i] = e.runOne(ctx, report.RunID, catalog[i])
	})
	for i, ok := range started {
		if !ok {
			report.Products[i] = ProductReport{
				Product:     catalog[i],
				Skipped:     true,
				Observation: e.recordSkipped(ctx, catalog[i]),
			}
		}
	}

	report.Cancelled = ctx.Err() != nil
	report.FinishedAt = e.now()
	if m := e.deps.Metrics; m != nil {
		m.RunDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
		m.LastRunTimestamp.Set(float64(report.FinishedAt.Unix()))
	}
	logger.Info("run finished",
		"duration", report.FinishedAt.Sub(report.StartedAt),
		"delivered", report.Delivered(),
		"cancelled", report.Cancelled,
	)
	return report
}

func (e *Engine) runOne(ctx context.Context, runID string, p types.Product) ProductReport {
	start := time.Now()
	rep := ProductReport{Product: p}
	rep.Observation = e.ingestOne(ctx, p)

	if ctx.Err() != nil {
		e.logger.Info("run cancelled, skipping analysis", "product", p.Name)
		rep.Duration = time.Since(start)
		return rep
	}

	e.analyze(ctx, runID, &rep)
	rep.Duration = time.Since(start)
	if m := e.deps.Metrics; m != nil {
		m.ProductDuration.Observe(rep.Duration.Seconds())
	}
	return rep
}

// analyze runs forecast and sentiment over the stored history, then the
// recommendation and its dispatch.
func (e *Engine) analyze(ctx context.Context, runID string, rep *ProductReport) {
	name := rep.Product.Name
	logger := e.logger.With("product", name, "run_id", runID)

	series, err := e.deps.Store.SeriesFor(ctx, name)
	if err != nil {
		rep.ForecastErr = err
	} else {
		rep.Forecast, rep.ForecastErr = e.deps.Forecaster.Forecast(series, e.opts.Horizon)
	}
	if rep.ForecastErr != nil {
		logger.Warn("forecast unavailable", "error", rep.ForecastErr)
	}
	e.count(func(m *observability.Metrics) {
		m.Forecasts.WithLabelValues(observability.Outcome(rep.ForecastErr)).Inc()
	})

	var texts []string
	if reviews, err := e.deps.Store.ReviewsFor(ctx, name); err != nil {
		logger.Warn("reading reviews failed", "error", err)
	} else {
		texts = make([]string, len(reviews))
		for i, r := range reviews {
			texts[i] = r.Text
		}
	}
	rep.Sentiment = e.deps.Sentiment.Classify(ctx, texts, e.opts.MaxReviewLength)

	recent, err := e.deps.Store.ObservationsFor(ctx, name)
	if err != nil {
		logger.Warn("reading history failed", "error", err)
		recent = []types.Observation{rep.Observation}
	}

	rep.Recommendation, rep.RecommendErr = e.deps.Recommender.Recommend(ctx, strategy.Input{
		Product:     rep.Product,
		Recent:      recent,
		Forecast:    rep.Forecast,
		ForecastErr: rep.ForecastErr,
		Sentiment:   rep.Sentiment,
	})
	e.count(func(m *observability.Metrics) {
		m.Recommendations.WithLabelValues(observability.Outcome(rep.RecommendErr)).Inc()
	})
	if rep.RecommendErr != nil {
		logger.Error("recommendation failed", "error", rep.RecommendErr)
		e.publish(ctx, runID, rep)
		return
	}

	if e.deps.Dispatcher != nil {
		rep.Dispatch, rep.DispatchErr = e.deps.Dispatcher.Dispatch(ctx, rep.Recommendation)
		e.count(func(m *observability.Metrics) {
			for _, d := range rep.Dispatch {
				outcome := observability.OutcomeOK
				switch {
				case d.Skipped:
					outcome = observability.OutcomeSkipped
				case !d.Delivered:
					outcome = observability.OutcomeFailed
				}
				m.Dispatches.WithLabelValues(d.Channel, outcome).Inc()
			}
		})
	}
	e.publish(ctx, runID, rep)
}

func (e *Engine) publish(ctx context.Context, runID string, rep *ProductReport) {
	if e.deps.Publisher == nil {
		return
	}
	snap := storage.Snapshot{
		RunID:       runID,
		Product:     rep.Product.Name,
		GeneratedAt: e.now(),
		Price:       rep.Observation.Price,
		Discount:    rep.Observation.Discount,
		Rating:      rep.Observation.Rating,
		Defaulted:   rep.Observation.Defaulted().List(),
		Forecast:    storage.ForecastPoints(rep.Forecast),
		Sentiment:   sentiment.Summarize(rep.Sentiment).Counts(),
	}
	if rep.ForecastErr != nil {
		snap.ForecastError = rep.ForecastErr.Error()
	}
	if rep.Recommendation != nil {
		snap.Recommendation = rep.Recommendation.Text
	}
	snap.Dispatched = len(rep.Dispatch) > 0 && rep.DispatchErr == nil && !rep.Dispatch[0].Skipped

	if err := e.deps.Publisher.Publish(ctx, snap); err != nil {
		e.logger.Warn("publishing snapshot failed", "product", rep.Product.Name, "error", err)
	}
}

func (e *Engine) count(fn func(m *observability.Metrics)) {
	if e.deps.Metrics != nil {
		fn(e.deps.Metrics)
	}
}
