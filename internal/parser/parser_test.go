package parser

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/IshaanNene/pricewatch/internal/config"
	"github.com/IshaanNene/pricewatch/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const productHTML = `<!DOCTYPE html>
<html>
<body>
  <div id="corePriceDisplay_desktop_feature_div">
    <div>
      <span class="a-size-large">Deal</span>
      <span class="savingsPercentage">-20%</span>
      <span>
        <span class="a-offscreen">₹1,299</span>
        <span>
          <span class="a-price-symbol">₹</span>
          <span class="a-price-whole">1,299</span>
        </span>
      </span>
    </div>
  </div>
  <span class="a-icon-popover"><span class="a-icon-alt">4.3 out of 5 stars</span></span>
  <a href="/product-reviews/B0TEST">See customer reviews</a>
</body>
</html>`

const reviewsHTML = `<html><body>
<div id="cm_cr-review_list">
  <span>Great sound</span>
  <span>  </span>
  <span>Battery could be better</span>
</div>
</body></html>`

// stubNavigator serves a fixed page for every Follow call.
type stubNavigator struct {
	pages    map[string]string
	followed []string
	err      error
}

func (n *stubNavigator) Follow(ctx context.Context, rawURL, readySelector string) (*types.Page, error) {
	n.followed = append(n.followed, rawURL)
	if n.err != nil {
		return nil, n.err
	}
	body, ok := n.pages[rawURL]
	if !ok {
		return nil, types.ErrNoReadyMarker
	}
	return types.NewPage(rawURL, rawURL, []byte(body), n), nil
}

func (n *stubNavigator) Close() error { return nil }

func makePage(body string, nav types.Navigator) *types.Page {
	return types.NewPage("https://shop.example.com/dp/B0TEST", "https://shop.example.com/dp/B0TEST", []byte(body), nav)
}

func TestExtractAllFields(t *testing.T) {
	nav := &stubNavigator{pages: map[string]string{
		"https://shop.example.com/product-reviews/B0TEST": reviewsHTML,
	}}
	e := NewExtractor(config.DefaultParser(), testLogger)

	rec := e.Extract(context.Background(), makePage(productHTML, nav))

	if rec.Price != 1299 {
		t.Errorf("Price = %d, want 1299", rec.Price)
	}
	if rec.Discount != "-20%" {
		t.Errorf("Discount = %q, want -20%%", rec.Discount)
	}
	if rec.Rating != "4.3" {
		t.Errorf("Rating = %q, want 4.3", rec.Rating)
	}
	if len(rec.Reviews) != 2 || rec.Reviews[0] != "Great sound" {
		t.Errorf("Reviews = %q", rec.Reviews)
	}
	if rec.Extracted != types.Fields(types.AllFields) {
		t.Errorf("Extracted = %s, want all", rec.Extracted)
	}
	if len(rec.Errors) != 0 {
		t.Errorf("unexpected errors: %v", rec.Errors)
	}
	if len(nav.followed) != 1 {
		t.Errorf("expected relative reviews link to be resolved and followed, got %v", nav.followed)
	}
}

func TestExtractDefaultsIndependently(t *testing.T) {
	const html = `<html><body>
	  <div id="corePriceDisplay_desktop_feature_div"><div>
	    <span>x</span><span>20% off</span>
	  </div></div>
	</body></html>`
	e := NewExtractor(config.DefaultParser(), testLogger)

	rec := e.Extract(context.Background(), makePage(html, nil))

	if rec.Price != 0 || rec.Rating != "N/A" {
		t.Errorf("defaults not applied: price=%d rating=%q", rec.Price, rec.Rating)
	}
	if rec.Discount != "20% off" {
		t.Errorf("Discount = %q", rec.Discount)
	}
	if rec.Reviews == nil || len(rec.Reviews) != 0 {
		t.Errorf("Reviews should be empty non-nil, got %#v", rec.Reviews)
	}
	if !rec.Extracted.Has(types.FieldDiscount) {
		t.Error("discount should be flagged as extracted")
	}
	for _, f := range []types.Field{types.FieldPrice, types.FieldRating, types.FieldReviews} {
		if rec.Extracted.Has(f) {
			t.Errorf("%s should be flagged as defaulted", f)
		}
	}
	if len(rec.Errors) != 3 {
		t.Errorf("expected 3 extraction errors, got %d", len(rec.Errors))
	}
	for _, err := range rec.Errors {
		if !errors.Is(err, types.ErrFieldNotFound) {
			t.Errorf("%s: expected ErrFieldNotFound, got %v", err.Field, err.Err)
		}
	}
}

func TestExtractNonNumericPrice(t *testing.T) {
	rules := config.DefaultParser()
	rules.Price = config.ParseRule{Type: "css", Selector: ".price"}
	e := NewExtractor(rules, testLogger)

	res := e.Price(makePage(`<span class="price">Currently unavailable</span>`, nil))
	if res.Value != 0 {
		t.Errorf("Value = %d, want 0", res.Value)
	}
	if res.Err == nil || !errors.Is(res.Err, types.ErrNotNumeric) {
		t.Errorf("expected ErrNotNumeric, got %v", res.Err)
	}
}

func TestExtractReviewsFollowFailure(t *testing.T) {
	nav := &stubNavigator{err: errors.New("tab crashed")}
	e := NewExtractor(config.DefaultParser(), testLogger)

	res := e.Reviews(context.Background(), makePage(productHTML, nav))
	if len(res.Value) != 0 || res.Value == nil {
		t.Errorf("expected empty list, got %#v", res.Value)
	}
	if res.Err == nil || res.Err.Field != types.FieldReviews {
		t.Errorf("expected reviews extraction error, got %v", res.Err)
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"1,299", 1299, false},
		{" 79,999 ", 79999, false},
		{"₹1,34,900", 134900, false},
		{"1,299.00", 1299, false},
		{"42", 42, false},
		{"", 0, true},
		{"abc", 0, true},
		{"12.5", 0, true},
	}
	for _, tt := range tests {
		got, err := ParsePrice(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePrice(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePrice(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeRating(t *testing.T) {
	tests := map[string]string{
		"4.5 out of 5 stars":   "4.5",
		" 3.9 Out of 5 stars ": "3.9",
		"Not rated":            "Not rated",
	}
	for in, want := range tests {
		if got := NormalizeRating(in); got != want {
			t.Errorf("NormalizeRating(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSelectorFor(t *testing.T) {
	page := makePage(productHTML, nil)

	xs, err := Select(page, config.ParseRule{Type: "xpath", Selector: `//a`, Attribute: "href"})
	if err != nil || len(xs) != 1 || xs[0] != "/product-reviews/B0TEST" {
		t.Errorf("xpath href = %v, %v", xs, err)
	}

	cs, err := Select(page, config.ParseRule{Type: "css", Selector: "a", Attribute: "href"})
	if err != nil || len(cs) != 1 || cs[0] != "/product-reviews/B0TEST" {
		t.Errorf("css href = %v, %v", cs, err)
	}

	if _, err := Select(page, config.ParseRule{Type: "xpath", Selector: "//*["}); err == nil {
		t.Error("expected invalid xpath error")
	}
	if _, err := SelectorFor(config.ParseRule{Type: "regex"}); err == nil {
		t.Error("expected unsupported type error")
	}
}
