// Package strategy turns a product's recent history, forecast and review
// sentiment into a pricing and promotion recommendation.
package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IshaanNene/pricewatch/internal/ai"
	"github.com/IshaanNene/pricewatch/internal/sentiment"
	"github.com/IshaanNene/pricewatch/internal/types"
)

// Placeholders used when an input is missing.
const (
	NoForecast = "No forecast available"
	NoReviews  = "No reviews available"
)

// RecentLimit is how many trailing observations go into the prompt.
const RecentLimit = 5

// Input is everything known about one product at recommendation time.
type Input struct {
	Product     types.Product
	Recent      []types.Observation
	Forecast    *types.Forecast
	ForecastErr error
	Sentiment   []types.SentimentResult
}

// Options configures the completion call.
type Options struct {
	Model       string
	Temperature float32
}

// Orchestrator builds the prompt and runs a single completion.
type Orchestrator struct {
	completer ai.Completer
	opts      Options
	logger    *slog.Logger
	now       func() time.Time
}

// New creates an Orchestrator.
func New(completer ai.Completer, opts Options, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		completer: completer,
		opts:      opts,
		logger:    logger.With("component", "strategy"),
		now:       time.Now,
	}
}

// Recommend asks the completion capability for a strategy. Failures are
// returned as *types.RecommendationError and are not retried.
func (o *Orchestrator) Recommend(ctx context.Context, in Input) (*types.Recommendation, error) {
	now := o.now()
	prompt := BuildPrompt(in, now)

	text, err := o.completer.Complete(ctx, ai.CompletionRequest{
		Prompt:      prompt,
		Model:       o.opts.Model,
		Temperature: o.opts.Temperature,
	})
	if err != nil {
		return nil, &types.RecommendationError{
			Kind:    types.RecommendationCompletionFailed,
			Product: in.Product.Name,
			Err:     err,
		}
	}

	o.logger.Info("recommendation generated", "product", in.Product.Name, "chars", len(text))
	return &types.Recommendation{
		Product:     in.Product.Name,
		GeneratedAt: now,
		Prompt:      prompt,
		Text:        text,
	}, nil
}

// BuildPrompt renders the recommendation prompt for in as of now.
func BuildPrompt(in Input, now time.Time) string {
	var b strings.Builder
	b.WriteString("You are a highly skilled business strategist specializing in e-commerce. ")
	b.WriteString("Based on the following details, suggest actionable strategies:\n\n")
	fmt.Fprintf(&b, "*Product Name*: %s\n", in.Product.Name)
	if in.Product.URL != "" {
		fmt.Fprintf(&b, "*Listing*: %s\n", in.Product.URL)
	}
	b.WriteString("*Competitor Data*:\n")
	writeCompetitorTable(&b, in.Recent)
	b.WriteString("*Discount Forecast*:\n")
	writeForecast(&b, in.Forecast, in.ForecastErr)
	b.WriteString("*Sentiment Analysis*: ")
	writeSentiment(&b, in.Sentiment)
	fmt.Fprintf(&b, "*Today's Date*: %s\n\n", now.Format(time.RFC3339))
	b.WriteString("Provide recommendations:\n")
	b.WriteString("- **Pricing Strategy**\n")
	b.WriteString("- **Promotional Campaign Ideas**\n")
	b.WriteString("- **Customer Satisfaction Recommendations**\n")
	return b.String()
}

func writeCompetitorTable(b *strings.Builder, obs []types.Observation) {
	if len(obs) > RecentLimit {
		obs = obs[len(obs)-RecentLimit:]
	}
	if len(obs) == 0 {
		b.WriteString("No competitor data available\n")
		return
	}
	b.WriteString("| Date | Price | Discount | Rating |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, o := range obs {
		fmt.Fprintf(b, "| %s | %d | %s | %s |\n", o.Timestamp.Format("2006-01-02"), o.Price, o.Discount, o.Rating)
	}
}

func writeForecast(b *strings.Builder, fc *types.Forecast, ferr error) {
	if fc == nil || len(fc.Points) == 0 {
		b.WriteString(NoForecast)
		if ferr != nil {
			fmt.Fprintf(b, " (%v)", ferr)
		}
		b.WriteString("\n")
		return
	}
	b.WriteString("| Date | Predicted Discount |\n")
	b.WriteString("|---|---|\n")
	for _, p := range fc.Points {
		fmt.Fprintf(b, "| %s | %.2f%% |\n", p.Date.Format("2006-01-02"), p.Value)
	}
}

func writeSentiment(b *strings.Builder, results []types.SentimentResult) {
	if len(results) == 0 {
		b.WriteString(NoReviews + "\n")
		return
	}
	s := sentiment.Summarize(results)
	parts := make([]string, 0, len(s.Labels))
	for _, l := range s.Labels {
		parts = append(parts, fmt.Sprintf("%s %d (mean score %.2f)", l.Label, l.Count, l.MeanScore))
	}
	fmt.Fprintf(b, "%d reviews: %s\n", s.Total, strings.Join(parts, ", "))
}
