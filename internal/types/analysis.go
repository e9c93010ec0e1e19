package types

import "time"

// Point is one dated value of a daily series.
type Point struct {
	Date  time.Time
	Value float64
}

// TimeSeries is the numeric, date-ordered discount projection of a
// product's observations. Dates are strictly increasing.
type TimeSeries struct {
	Product string
	Points  []Point
}

// Len returns the number of usable points.
func (ts TimeSeries) Len() int { return len(ts.Points) }

// Values returns the point values in order.
func (ts TimeSeries) Values() []float64 {
	out := make([]float64, len(ts.Points))
	for i, p := range ts.Points {
		out[i] = p.Value
	}
	return out
}

// Last returns the most recent point. It panics on an empty series.
func (ts TimeSeries) Last() Point { return ts.Points[len(ts.Points)-1] }

// Forecast is a short-horizon discount projection.
type Forecast struct {
	Product     string
	GeneratedAt time.Time
	Points      []Point
}

// Sentiment labels. Classifiers may return others; these are the ones the
// pipeline itself produces or normalizes to.
const (
	LabelPositive = "POSITIVE"
	LabelNegative = "NEGATIVE"
	LabelNeutral  = "NEUTRAL"
	LabelUnknown  = "UNKNOWN"
)

// SentimentResult is the classification of one review. ReviewRef is the
// index of the review in the classified input.
type SentimentResult struct {
	ReviewRef int
	Label     string
	Score     float64
}

// Recommendation is the synthesized strategy text for one product.
type Recommendation struct {
	Product     string
	GeneratedAt time.Time
	Prompt      string
	Text        string
}

// DispatchResult describes one notification attempt.
type DispatchResult struct {
	Channel   string
	Status    int
	Delivered bool
	Skipped   bool
}
