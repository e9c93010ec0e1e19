package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Metrics tracks pipeline metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Runs             prometheus.Counter
	RunDuration      prometheus.Histogram
	Fetches          *prometheus.CounterVec
	FieldsDefaulted  *prometheus.CounterVec
	StoreErrors      prometheus.Counter
	Forecasts        *prometheus.CounterVec
	Recommendations  *prometheus.CounterVec
	Dispatches       *prometheus.CounterVec
	ProductDuration  prometheus.Histogram
	ActiveWorkers    prometheus.Gauge
	LastRunTimestamp prometheus.Gauge

	logger *slog.Logger
}

// NewMetrics creates and registers the pipeline metrics.
func NewMetrics(logger *slog.Logger) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Runs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pricewatch_runs_total",
			Help: "Pipeline runs started",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pricewatch_run_duration_seconds",
			Help:    "Wall time of a full pipeline run",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricewatch_fetches_total",
			Help: "Product page fetches by outcome",
		}, []string{"outcome"}),
		FieldsDefaulted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricewatch_fields_defaulted_total",
			Help: "Observation fields that fell back to their default",
		}, []string{"field"}),
		StoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pricewatch_store_errors_total",
			Help: "Failed history appends",
		}),
		Forecasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricewatch_forecasts_total",
			Help: "Forecast attempts by outcome",
		}, []string{"outcome"}),
		Recommendations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricewatch_recommendations_total",
			Help: "Recommendation attempts by outcome",
		}, []string{"outcome"}),
		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricewatch_dispatches_total",
			Help: "Notification deliveries by channel and outcome",
		}, []string{"channel", "outcome"}),
		ProductDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pricewatch_product_duration_seconds",
			Help:    "Time spent on one product, ingestion through dispatch",
			Buckets: prometheus.DefBuckets,
		}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pricewatch_active_workers",
			Help: "Ingestion workers currently processing a product",
		}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pricewatch_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}),
		logger: logger.With("component", "metrics"),
	}

	m.registry.MustRegister(
		m.Runs, m.RunDuration, m.Fetches, m.FieldsDefaulted, m.StoreErrors,
		m.Forecasts, m.Recommendations, m.Dispatches, m.ProductDuration,
		m.ActiveWorkers, m.LastRunTimestamp,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs the metrics server until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	m.logger.Info("metrics server starting", "addr", srv.Addr, "path", path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Outcome maps an error to an outcome label.
func Outcome(err error) string {
	if err != nil {
		return OutcomeFailed
	}
	return OutcomeOK
}
