package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/IshaanNene/pricewatch/internal/ai"
)

const classifyPrompt = `Classify the sentiment of the following customer review. Return JSON with:
- "label": "POSITIVE", "NEGATIVE" or "NEUTRAL"
- "score": confidence from 0.0 to 1.0

Review: %s`

// LLMClassifier asks a completion endpoint for a label and confidence.
type LLMClassifier struct {
	completer ai.Completer
	model     string
}

// NewLLMClassifier creates a classifier over completer. An empty model uses
// the completer's default.
func NewLLMClassifier(completer ai.Completer, model string) *LLMClassifier {
	return &LLMClassifier{completer: completer, model: model}
}

func (c *LLMClassifier) Classify(ctx context.Context, text string) (string, float64, error) {
	out, err := c.completer.Complete(ctx, ai.CompletionRequest{
		Prompt: fmt.Sprintf(classifyPrompt, text),
		Model:  c.model,
	})
	if err != nil {
		return "", 0, err
	}

	var result struct {
		Label string  `json:"label"`
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(ai.ExtractJSON(out)), &result); err != nil {
		return "", 0, fmt.Errorf("decode classification: %w", err)
	}
	if result.Label == "" {
		return "", 0, fmt.Errorf("no label in response %q", out)
	}
	return result.Label, result.Score, nil
}

// HTTPClassifier calls a hosted text-classification endpoint that accepts
// {"inputs": text} and answers with label/score candidates, as Hugging Face
// inference endpoints do.
type HTTPClassifier struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPClassifier creates a classifier for endpoint.
func NewHTTPClassifier(endpoint, apiKey string, timeout time.Duration) *HTTPClassifier {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClassifier{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

type candidate struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

func (c *HTTPClassifier) Classify(ctx context.Context, text string) (string, float64, error) {
	body, err := json.Marshal(map[string]string{"inputs": text})
	if err != nil {
		return "", 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("classifier request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, fmt.Errorf("classifier returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	// Endpoints answer either [[{...},...]] or [{...},...].
	var nested [][]candidate
	var flat []candidate
	if err := json.Unmarshal(data, &nested); err == nil && len(nested) > 0 {
		flat = nested[0]
	} else if err := json.Unmarshal(data, &flat); err != nil {
		return "", 0, fmt.Errorf("decode classifier response: %w", err)
	}
	if len(flat) == 0 {
		return "", 0, fmt.Errorf("classifier returned no labels")
	}

	best := flat[0]
	for _, c := range flat[1:] {
		if c.Score > best.Score {
			best = c
		}
	}
	return best.Label, best.Score, nil
}
