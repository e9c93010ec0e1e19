package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"github.com/IshaanNene/pricewatch/internal/config"
	"github.com/IshaanNene/pricewatch/internal/types"
)

// FieldResult is the outcome of one field lookup. When Err is set, Value
// holds the field's documented default.
type FieldResult[T any] struct {
	Value T
	Err   *types.ExtractionError
}

// Extractor recovers the product fields from a loaded page. Each field is
// looked up independently; a failed lookup falls back to its default and
// never aborts the others.
type Extractor struct {
	rules  config.ParserConfig
	logger *slog.Logger
}

// NewExtractor creates an Extractor with the given rules.
func NewExtractor(rules config.ParserConfig, logger *slog.Logger) *Extractor {
	return &Extractor{
		rules:  rules,
		logger: logger.With("component", "extractor"),
	}
}

// Extract looks up every field on page. Reviews are looked up last because
// following the reviews link navigates the page's session away.
func (e *Extractor) Extract(ctx context.Context, page *types.Page) types.PartialRecord {
	var rec types.PartialRecord

	price := e.Price(page)
	rec.Price = price.Value
	rec.Extracted = record(&rec, types.FieldPrice, price.Err)

	discount := e.Discount(page)
	rec.Discount = discount.Value
	rec.Extracted = record(&rec, types.FieldDiscount, discount.Err)

	rating := e.Rating(page)
	rec.Rating = rating.Value
	rec.Extracted = record(&rec, types.FieldRating, rating.Err)

	reviews := e.Reviews(ctx, page)
	rec.Reviews = reviews.Value
	if len(reviews.Value) == 0 && reviews.Err == nil {
		// An empty review list is still the default.
		reviews.Err = &types.ExtractionError{Field: types.FieldReviews, Selector: e.rules.Review.Selector, Err: types.ErrFieldNotFound}
	}
	rec.Extracted = record(&rec, types.FieldReviews, reviews.Err)

	for _, err := range rec.Errors {
		e.logger.Debug("field defaulted", "url", page.Locator, "field", err.Field.String(), "error", err.Err)
	}
	return rec
}

func record(rec *types.PartialRecord, f types.Field, err *types.ExtractionError) types.Fields {
	if err != nil {
		rec.Errors = append(rec.Errors, err)
		return rec.Extracted
	}
	return rec.Extracted.With(f)
}

// Price returns the integer price with thousands separators removed.
func (e *Extractor) Price(page *types.Page) FieldResult[int] {
	text, ferr := e.first(page, types.FieldPrice, e.rules.Price)
	if ferr != nil {
		return FieldResult[int]{Value: types.DefaultPrice, Err: ferr}
	}
	price, err := ParsePrice(text)
	if err != nil {
		return FieldResult[int]{Value: types.DefaultPrice, Err: fieldErr(types.FieldPrice, e.rules.Price, err)}
	}
	return FieldResult[int]{Value: price}
}

// Discount returns the raw discount text, e.g. "-20%".
func (e *Extractor) Discount(page *types.Page) FieldResult[string] {
	text, ferr := e.first(page, types.FieldDiscount, e.rules.Discount)
	if ferr != nil {
		return FieldResult[string]{Value: types.DefaultDiscount, Err: ferr}
	}
	return FieldResult[string]{Value: text}
}

// Rating returns the normalized rating text.
func (e *Extractor) Rating(page *types.Page) FieldResult[string] {
	text, ferr := e.first(page, types.FieldRating, e.rules.Rating)
	if ferr != nil {
		return FieldResult[string]{Value: types.DefaultRating, Err: ferr}
	}
	return FieldResult[string]{Value: NormalizeRating(text)}
}

// Reviews follows the reviews link and collects every non-empty review text.
// A missing link or container yields an empty list.
func (e *Extractor) Reviews(ctx context.Context, page *types.Page) FieldResult[[]string] {
	empty := []string{}

	href, ferr := e.first(page, types.FieldReviews, e.rules.ReviewsLink)
	if ferr != nil {
		return FieldResult[[]string]{Value: empty, Err: ferr}
	}

	target, err := resolveLink(page.FinalURL, href)
	if err != nil {
		return FieldResult[[]string]{Value: empty, Err: fieldErr(types.FieldReviews, e.rules.ReviewsLink, err)}
	}

	var ready string
	if e.rules.Review.Type == "css" {
		ready = e.rules.Review.Selector
	}
	reviewPage, err := page.Follow(ctx, target, ready)
	if err != nil {
		return FieldResult[[]string]{Value: empty, Err: fieldErr(types.FieldReviews, e.rules.Review, err)}
	}

	values, err := Select(reviewPage, e.rules.Review)
	if err != nil {
		return FieldResult[[]string]{Value: empty, Err: fieldErr(types.FieldReviews, e.rules.Review, err)}
	}
	if values == nil {
		values = empty
	}
	return FieldResult[[]string]{Value: values}
}

// first returns the first non-empty match of rule.
func (e *Extractor) first(page *types.Page, f types.Field, rule config.ParseRule) (string, *types.ExtractionError) {
	values, err := Select(page, rule)
	if err != nil {
		return "", fieldErr(f, rule, err)
	}
	if len(values) == 0 {
		return "", fieldErr(f, rule, types.ErrFieldNotFound)
	}
	return values[0], nil
}

func fieldErr(f types.Field, rule config.ParseRule, err error) *types.ExtractionError {
	return &types.ExtractionError{Field: f, Selector: rule.Selector, Err: err}
}

// ParsePrice converts a displayed price such as "1,299" or "₹1,299" into an
// integer. Thousands separators, currency symbols and whitespace are
// ignored; any other content is rejected.
func ParsePrice(s string) (int, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r == ',' || unicode.IsSpace(r):
			return -1
		case strings.ContainsRune("₹$€£¥", r):
			return -1
		}
		return r
	}, s)
	cleaned = strings.TrimSuffix(cleaned, ".00")
	if cleaned == "" {
		return 0, fmt.Errorf("%w: %q", types.ErrNotNumeric, s)
	}
	n, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", types.ErrNotNumeric, s)
	}
	return n, nil
}

// NormalizeRating reduces "4.5 out of 5 stars" to "4.5". Text without the
// "out of 5 stars" phrase is returned unchanged.
func NormalizeRating(s string) string {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	if !strings.Contains(lower, "out of 5 stars") {
		return s
	}
	before, _, _ := strings.Cut(lower, " out of")
	return strings.TrimSpace(before)
}

func resolveLink(base, href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("invalid reviews link %q: %w", href, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid page url %q: %w", base, err)
	}
	return b.ResolveReference(ref).String(), nil
}
