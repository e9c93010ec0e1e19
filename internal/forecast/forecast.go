// Package forecast projects a product's discount series a few days ahead.
package forecast

import (
	"fmt"
	"log/slog"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/IshaanNene/pricewatch/internal/types"
)

// MinPoints is the smallest series a forecast is attempted on.
const MinPoints = 2

// Extrapolator continues a numeric series by horizon values.
type Extrapolator interface {
	Extrapolate(values []float64, horizon int) ([]float64, error)
}

// Engine produces dated discount forecasts from a TimeSeries.
type Engine struct {
	model  Extrapolator
	logger *slog.Logger
	now    func() time.Time
}

// New creates an Engine over model.
func New(model Extrapolator, logger *slog.Logger) *Engine {
	return &Engine{
		model:  model,
		logger: logger.With("component", "forecast"),
		now:    time.Now,
	}
}

// Forecast projects series horizon days past its last date. Too few points
// yields an InsufficientData error; a constant series or a model that cannot
// produce finite values yields a ModelNonConvergence error. Both are
// recoverable for callers.
func (e *Engine) Forecast(series types.TimeSeries, horizon int) (*types.Forecast, error) {
	if horizon < 1 {
		return nil, fmt.Errorf("forecast horizon must be >= 1, got %d", horizon)
	}
	if series.Len() < MinPoints {
		return nil, &types.ForecastError{
			Kind:    types.ForecastInsufficientData,
			Product: series.Product,
			Points:  series.Len(),
		}
	}

	values := series.Values()
	if stat.Variance(values, nil) == 0 {
		return nil, &types.ForecastError{
			Kind:    types.ForecastModelNonConvergence,
			Product: series.Product,
			Points:  series.Len(),
			Err:     fmt.Errorf("series is constant at %v", values[0]),
		}
	}

	out, err := e.model.Extrapolate(values, horizon)
	if err != nil {
		return nil, &types.ForecastError{
			Kind:    types.ForecastModelNonConvergence,
			Product: series.Product,
			Points:  series.Len(),
			Err:     err,
		}
	}

	last := series.Last().Date
	fc := &types.Forecast{
		Product:     series.Product,
		GeneratedAt: e.now(),
		Points:      make([]types.Point, len(out)),
	}
	for i, v := range out {
		fc.Points[i] = types.Point{Date: last.AddDate(0, 0, i+1), Value: v}
	}

	e.logger.Debug("forecast ready", "product", series.Product, "points", series.Len(), "horizon", horizon)
	return fc, nil
}
