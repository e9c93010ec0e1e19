package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/IshaanNene/pricewatch/internal/ai"
	"github.com/IshaanNene/pricewatch/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// recordingClassifier remembers the rune length of every input.
type recordingClassifier struct {
	mu      sync.Mutex
	lengths []int
	failOn  string
}

func (c *recordingClassifier) Classify(ctx context.Context, text string) (string, float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lengths = append(c.lengths, utf8.RuneCountInString(text))
	if c.failOn != "" && strings.HasPrefix(text, c.failOn) {
		return "", 0, errors.New("model unavailable")
	}
	if strings.Contains(text, "bad") {
		return "negative", 0.8, nil
	}
	return "POSITIVE", 0.9, nil
}

func TestClassifyEmpty(t *testing.T) {
	a := NewAggregator(&recordingClassifier{}, testLogger)
	got := a.Classify(context.Background(), nil, 0)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestClassifyTruncates(t *testing.T) {
	c := &recordingClassifier{}
	a := NewAggregator(c, testLogger)

	long := strings.Repeat("é", 600)
	got := a.Classify(context.Background(), []string{"short", long}, 0)
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if c.lengths[0] != 5 || c.lengths[1] != DefaultMaxLength {
		t.Errorf("classified lengths = %v, want [5 %d]", c.lengths, DefaultMaxLength)
	}

	c.lengths = nil
	a.Classify(context.Background(), []string{long}, 10)
	if c.lengths[0] != 10 {
		t.Errorf("explicit maxLen ignored: %v", c.lengths)
	}
}

func TestClassifyKeepsOrderAndAbsorbsFailures(t *testing.T) {
	c := &recordingClassifier{failOn: "boom"}
	a := NewAggregator(c, testLogger)

	got := a.Classify(context.Background(), []string{"great", "boom goes the review", "bad fit"}, 0)
	want := []types.SentimentResult{
		{ReviewRef: 0, Label: types.LabelPositive, Score: 0.9},
		{ReviewRef: 1, Label: types.LabelUnknown, Score: 0},
		{ReviewRef: 2, Label: types.LabelNegative, Score: 0.8},
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("result %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 3, "hel"},
		{"hello", 5, "hello"},
		{"hello", 10, "hello"},
		{"日本語テキスト", 3, "日本語"},
		{"", 3, ""},
		{"abc", 0, "abc"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]types.SentimentResult{
		{Label: types.LabelPositive, Score: 0.9},
		{Label: types.LabelNegative, Score: 0.6},
		{Label: types.LabelPositive, Score: 0.7},
	})
	if s.Total != 3 || len(s.Labels) != 2 {
		t.Fatalf("summary = %+v", s)
	}
	if s.Labels[0].Label != types.LabelPositive || s.Labels[0].Count != 2 {
		t.Errorf("most frequent label first, got %+v", s.Labels[0])
	}
	if math.Abs(s.Labels[0].MeanScore-0.8) > 1e-9 {
		t.Errorf("mean = %v, want 0.8", s.Labels[0].MeanScore)
	}
	if s.Counts()[types.LabelNegative] != 1 {
		t.Errorf("counts = %v", s.Counts())
	}
	if empty := Summarize(nil); empty.Total != 0 || len(empty.Labels) != 0 {
		t.Errorf("empty summary = %+v", empty)
	}
}

type stubCompleter struct {
	out    string
	err    error
	prompt string
}

func (s *stubCompleter) Complete(ctx context.Context, req ai.CompletionRequest) (string, error) {
	s.prompt = req.Prompt
	return s.out, s.err
}

func TestLLMClassifier(t *testing.T) {
	comp := &stubCompleter{out: "Here you go:\n{\"label\": \"NEGATIVE\", \"score\": 0.75}"}
	label, score, err := NewLLMClassifier(comp, "").Classify(context.Background(), "arrived broken")
	if err != nil {
		t.Fatal(err)
	}
	if label != "NEGATIVE" || score != 0.75 {
		t.Errorf("got %s %v", label, score)
	}
	if !strings.Contains(comp.prompt, "arrived broken") {
		t.Errorf("review missing from prompt: %q", comp.prompt)
	}

	comp.out = "I cannot help with that"
	if _, _, err := NewLLMClassifier(comp, "").Classify(context.Background(), "x"); err == nil {
		t.Error("expected error for response without label")
	}
}

func TestHTTPClassifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["inputs"] == "" {
			t.Error("inputs missing")
		}
		if r.Header.Get("Authorization") != "Bearer hf_token" {
			t.Error("missing bearer token")
		}
		w.Write([]byte(`[[{"label":"NEGATIVE","score":0.02},{"label":"POSITIVE","score":0.98}]]`))
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, "hf_token", 0)
	label, score, err := c.Classify(context.Background(), "love it")
	if err != nil {
		t.Fatal(err)
	}
	if label != "POSITIVE" || score != 0.98 {
		t.Errorf("got %s %v", label, score)
	}
}

func TestHTTPClassifierFlatAndErrors(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
		w.Write([]byte(`[{"label":"NEUTRAL","score":0.5}]`))
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, "", 0)
	label, _, err := c.Classify(context.Background(), "ok")
	if err != nil || label != "NEUTRAL" {
		t.Fatalf("flat response: %s, %v", label, err)
	}

	status.Store(http.StatusServiceUnavailable)
	if _, _, err := c.Classify(context.Background(), "ok"); err == nil {
		t.Error("expected error for 503")
	}
}
