package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// LLMProvider specifies which LLM backend to use.
type LLMProvider string

const (
	ProviderOpenAI LLMProvider = "openai"
	ProviderOllama LLMProvider = "ollama"
)

// CompletionRequest is one text-completion call.
type CompletionRequest struct {
	Prompt      string
	Model       string
	Temperature float32
}

// Completer turns a prompt into generated text.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// LLMConfig configures the LLM integration.
type LLMConfig struct {
	Provider LLMProvider
	Endpoint string // e.g. "https://api.groq.com/openai/v1" or "http://localhost:11434"
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// LLMClient communicates with an OpenAI-compatible or Ollama endpoint.
type LLMClient struct {
	cfg    LLMConfig
	openai *openai.Client
	client *http.Client
	logger *slog.Logger
}

// NewLLMClient creates a new LLM client.
func NewLLMClient(cfg LLMConfig, logger *slog.Logger) *LLMClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}

	c := &LLMClient{
		cfg:    cfg,
		client: httpClient,
		logger: logger.With("component", "llm_client", "provider", string(cfg.Provider)),
	}
	if cfg.Provider == ProviderOpenAI {
		oc := openai.DefaultConfig(cfg.APIKey)
		if cfg.Endpoint != "" {
			oc.BaseURL = strings.TrimRight(cfg.Endpoint, "/")
		}
		oc.HTTPClient = httpClient
		c.openai = openai.NewClientWithConfig(oc)
	}
	return c
}

// Complete sends the prompt and returns the generated text unchanged.
// An empty Model falls back to the configured one.
func (c *LLMClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if req.Model == "" {
		req.Model = c.cfg.Model
	}

	start := time.Now()
	var (
		text string
		err  error
	)
	switch c.cfg.Provider {
	case ProviderOpenAI:
		text, err = c.completeOpenAI(ctx, req)
	case ProviderOllama:
		text, err = c.completeOllama(ctx, req)
	default:
		return "", fmt.Errorf("unsupported LLM provider: %s", c.cfg.Provider)
	}
	if err != nil {
		return "", err
	}

	c.logger.Debug("completion done", "model", req.Model, "prompt_chars", len(req.Prompt), "duration", time.Since(start))
	return text, nil
}

func (c *LLMClient) completeOpenAI(ctx context.Context, req CompletionRequest) (string, error) {
	// Temperature is omitted from the request body when zero, which servers
	// read as their default; the smallest positive value keeps it greedy.
	temp := req.Temperature
	if temp == 0 {
		temp = math.SmallestNonzeroFloat32
	}

	resp, err := c.openai.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: temp,
	})
	if err != nil {
		return "", fmt.Errorf("openai request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in openai response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *LLMClient) completeOllama(ctx context.Context, req CompletionRequest) (string, error) {
	payload := map[string]any{
		"model":  req.Model,
		"prompt": req.Prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": req.Temperature,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	endpoint := strings.TrimRight(c.cfg.Endpoint, "/")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ollama returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	return result.Response, nil
}

// ExtractJSON tries to find a JSON object in an LLM response.
func ExtractJSON(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return "{}"
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return "{}"
}
