package ai

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestCompleteOpenAICompatible(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing bearer token")
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  Cut the price by 5%.\n"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewLLMClient(LLMConfig{
		Provider: ProviderOpenAI,
		Endpoint: srv.URL + "/v1",
		Model:    "llama3-8b-8192",
		APIKey:   "secret",
	}, testLogger)

	text, err := c.Complete(context.Background(), CompletionRequest{Prompt: "hello"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "  Cut the price by 5%.\n" {
		t.Errorf("text must be returned verbatim, got %q", text)
	}
	if got["model"] != "llama3-8b-8192" {
		t.Errorf("model = %v", got["model"])
	}
	if _, ok := got["temperature"]; !ok {
		t.Error("temperature must be sent even when zero")
	}
}

func TestCompleteOpenAIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()

	c := NewLLMClient(LLMConfig{Provider: ProviderOpenAI, Endpoint: srv.URL, Model: "m"}, testLogger)
	if _, err := c.Complete(context.Background(), CompletionRequest{Prompt: "hello"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestCompleteOllama(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["stream"] != false {
			t.Errorf("stream should be false, got %v", body["stream"])
		}
		w.Write([]byte(`{"response":"ok"}`))
	}))
	defer srv.Close()

	c := NewLLMClient(LLMConfig{Provider: ProviderOllama, Endpoint: srv.URL + "/", Model: "llama3"}, testLogger)
	text, err := c.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	if err != nil || text != "ok" {
		t.Fatalf("Complete = %q, %v", text, err)
	}
}

func TestCompleteOllamaStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewLLMClient(LLMConfig{Provider: ProviderOllama, Endpoint: srv.URL, Model: "nope"}, testLogger)
	_, err := c.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected 404 error, got %v", err)
	}
}

func TestUnsupportedProvider(t *testing.T) {
	c := NewLLMClient(LLMConfig{Provider: "carrier-pigeon"}, testLogger)
	if _, err := c.Complete(context.Background(), CompletionRequest{Prompt: "hi"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestExtractJSON(t *testing.T) {
	tests := map[string]string{
		`Sure! {"label":"POSITIVE","score":0.9} hope this helps`: `{"label":"POSITIVE","score":0.9}`,
		`{"a":{"b":1}}`: `{"a":{"b":1}}`,
		`no json here`:  `{}`,
		`{"open": true`: `{}`,
	}
	for in, want := range tests {
		if got := ExtractJSON(in); got != want {
			t.Errorf("ExtractJSON(%q) = %q, want %q", in, got, want)
		}
	}
}
