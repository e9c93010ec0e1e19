// Package sentiment classifies review texts and summarizes the results.
package sentiment

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/IshaanNene/pricewatch/internal/types"
)

// DefaultMaxLength is the rune budget applied when none is given.
const DefaultMaxLength = 512

// Classifier labels a single text.
type Classifier interface {
	Classify(ctx context.Context, text string) (label string, score float64, err error)
}

// Aggregator runs a Classifier over a batch of reviews.
type Aggregator struct {
	classifier Classifier
	logger     *slog.Logger
}

// NewAggregator creates an Aggregator over classifier.
func NewAggregator(classifier Classifier, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		classifier: classifier,
		logger:     logger.With("component", "sentiment"),
	}
}

// Classify returns one result per review, in input order. Every review is
// truncated to maxLen runes first (DefaultMaxLength when maxLen <= 0). A
// review the classifier fails on is labelled UNKNOWN with score 0.
func (a *Aggregator) Classify(ctx context.Context, reviews []string, maxLen int) []types.SentimentResult {
	if maxLen <= 0 {
		maxLen = DefaultMaxLength
	}

	results := make([]types.SentimentResult, len(reviews))
	for i, review := range reviews {
		label, score, err := a.classifier.Classify(ctx, Truncate(review, maxLen))
		if err != nil {
			a.logger.Warn("review classification failed", "review", i, "error", err)
			label, score = types.LabelUnknown, 0
		}
		results[i] = types.SentimentResult{
			ReviewRef: i,
			Label:     strings.ToUpper(strings.TrimSpace(label)),
			Score:     score,
		}
	}
	return results
}

// Truncate cuts s to at most maxLen runes.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == maxLen {
			return s[:i]
		}
		n++
	}
	return s
}

// LabelStats summarizes the results carrying one label.
type LabelStats struct {
	Label     string
	Count     int
	MeanScore float64
}

// Summary is the per-label breakdown of a batch of results.
type Summary struct {
	Total  int
	Labels []LabelStats
}

// Counts returns the number of results per label.
func (s Summary) Counts() map[string]int {
	out := make(map[string]int, len(s.Labels))
	for _, l := range s.Labels {
		out[l.Label] = l.Count
	}
	return out
}

// Summarize groups results by label, most frequent first.
func Summarize(results []types.SentimentResult) Summary {
	scores := make(map[string][]float64)
	for _, r := range results {
		scores[r.Label] = append(scores[r.Label], r.Score)
	}

	s := Summary{Total: len(results)}
	for label, vals := range scores {
		s.Labels = append(s.Labels, LabelStats{
			Label:     label,
			Count:     len(vals),
			MeanScore: stat.Mean(vals, nil),
		})
	}
	sort.Slice(s.Labels, func(i, j int) bool {
		if s.Labels[i].Count != s.Labels[j].Count {
			return s.Labels[i].Count > s.Labels[j].Count
		}
		return s.Labels[i].Label < s.Labels[j].Label
	})
	return s
}
