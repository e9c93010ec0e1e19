package storage

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/IshaanNene/pricewatch/internal/types"
)

var numberPattern = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?`)

// CoerceDiscount resolves raw discount text to percentage points: the
// absolute value of the first number in the text. "-20%", "20% off" and
// "20" all yield 20. Text without a number, including "N/A", is not usable.
func CoerceDiscount(raw string) (float64, bool) {
	m := numberPattern.FindString(raw)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return math.Abs(v), true
}

// BuildSeries derives the discount series of product from its observations.
// Unusable discounts are skipped and observations on the same calendar day
// collapse to the latest one, so dates are strictly increasing.
func BuildSeries(product string, observations []types.Observation) types.TimeSeries {
	type dayValue struct {
		at    time.Time
		value float64
	}
	byDay := make(map[time.Time]dayValue)

	for _, obs := range observations {
		if obs.Product != product {
			continue
		}
		v, ok := CoerceDiscount(obs.Discount)
		if !ok {
			continue
		}
		day := Day(obs.Timestamp)
		if cur, seen := byDay[day]; seen && obs.Timestamp.Before(cur.at) {
			continue
		}
		byDay[day] = dayValue{at: obs.Timestamp, value: v}
	}

	points := make([]types.Point, 0, len(byDay))
	for day, dv := range byDay {
		points = append(points, types.Point{Date: day, Value: dv.value})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })

	return types.TimeSeries{Product: product, Points: points}
}

// Day truncates t to its calendar date, expressed as midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
