package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/IshaanNene/pricewatch/internal/config"
	"github.com/IshaanNene/pricewatch/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

var rec = &types.Recommendation{
	Product:     "Widget",
	GeneratedAt: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
	Text:        "Hold the price; run a weekend coupon.",
}

func TestDispatchSlack(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	d := NewDispatcher(testLogger, NewSlackChannel(srv.URL, time.Second))
	results, err := d.Dispatch(context.Background(), rec)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || !results[0].Delivered || results[0].Channel != "slack" || results[0].Status != 200 {
		t.Errorf("results = %+v", results)
	}
	if got["text"] != rec.Text {
		t.Errorf("payload text = %q, want the recommendation verbatim", got["text"])
	}
}

func TestDispatchFailureNotRetried(t *testing.T) {
	calls := make(chan struct{}, 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls <- struct{}{}
		http.Error(w, "invalid_token", http.StatusForbidden)
	}))
	defer srv.Close()

	d := NewDispatcher(testLogger, NewSlackChannel(srv.URL, time.Second))
	results, err := d.Dispatch(context.Background(), rec)

	var de *types.DispatchError
	if !errors.As(err, &de) {
		t.Fatalf("expected DispatchError, got %v", err)
	}
	if de.Kind != types.DispatchDeliveryFailed || de.Status != http.StatusForbidden || de.Channel != "slack" {
		t.Errorf("error = %+v", de)
	}
	if results[0].Delivered {
		t.Error("failed delivery reported as delivered")
	}
	if len(calls) != 1 {
		t.Errorf("expected exactly one attempt, got %d", len(calls))
	}
}

func TestDispatchSkippedWithoutChannels(t *testing.T) {
	d := NewDispatcherFromConfig(config.NotifyConfig{}, testLogger)
	if d.Enabled() {
		t.Fatal("no channel should be enabled")
	}
	results, err := d.Dispatch(context.Background(), rec)
	if err != nil || len(results) != 1 || !results[0].Skipped {
		t.Errorf("Dispatch = %+v, %v", results, err)
	}
}

func TestTelegramChannel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("path = %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		r.ParseForm()
		if r.PostForm.Get("chat_id") != "42" || r.PostForm.Get("text") != rec.Text {
			t.Errorf("form = %v", r.PostForm)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	d := NewDispatcherFromConfig(config.NotifyConfig{
		TelegramToken:  "TOKEN",
		TelegramChatID: "42",
		TelegramAPI:    srv.URL + "/",
		Timeout:        time.Second,
	}, testLogger)
	results, err := d.Dispatch(context.Background(), rec)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Channel != "telegram" || !results[0].Delivered {
		t.Errorf("results = %+v", results)
	}
}

func TestDispatchContinuesAfterFailure(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer good.Close()

	d := NewDispatcher(testLogger,
		NewSlackChannel(bad.URL, time.Second),
		NewTelegramChannel(good.URL, "t", "c", time.Second),
	)
	results, err := d.Dispatch(context.Background(), rec)
	if err == nil {
		t.Fatal("expected error from failing channel")
	}
	if len(results) != 2 || results[0].Delivered || !results[1].Delivered {
		t.Errorf("results = %+v", results)
	}
}
