package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/IshaanNene/pricewatch/internal/config"
	"github.com/IshaanNene/pricewatch/internal/types"
)

// Browser opens browsing sessions. Implementations must be safe for
// concurrent use; each Tab is used by a single goroutine.
type Browser interface {
	// Open starts a new session.
	Open(ctx context.Context) (Tab, error)

	// Close releases any resources held by the browser.
	Close() error

	// Type returns the session backend identifier.
	Type() string
}

// Tab is one browsing session.
type Tab interface {
	// Navigate loads rawURL, replacing the current document.
	Navigate(ctx context.Context, rawURL string) error

	// WaitReady blocks until an element matching selector is present or
	// timeout elapses. A timeout is reported as types.ErrNoReadyMarker.
	WaitReady(ctx context.Context, selector string, timeout time.Duration) error

	// HTML returns the current rendered document.
	HTML() (string, error)

	// URL returns the address of the current document.
	URL() string

	// Snapshot returns a diagnostic capture of the current document and the
	// file extension it should be stored under.
	Snapshot() ([]byte, string, error)

	Close() error
}

// PageFetcher loads product pages and waits for their ready marker,
// retrying a bounded number of times.
type PageFetcher struct {
	browser Browser
	cfg     config.FetcherConfig
	logger  *slog.Logger
}

// New creates a PageFetcher over the given session backend.
func New(browser Browser, cfg config.FetcherConfig, logger *slog.Logger) *PageFetcher {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	return &PageFetcher{
		browser: browser,
		cfg:     cfg,
		logger:  logger.With("component", "page_fetcher", "backend", browser.Type()),
	}
}

// NewFromConfig builds the session backend named by cfg.Fetcher.Type and
// wraps it in a PageFetcher.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*PageFetcher, error) {
	var (
		b   Browser
		err error
	)
	switch cfg.Fetcher.Type {
	case "browser":
		b, err = NewRodBrowser(cfg.Fetcher, logger)
	case "http":
		b, err = NewHTTPBrowser(cfg.Fetcher, logger)
	default:
		return nil, fmt.Errorf("unknown fetcher type %q", cfg.Fetcher.Type)
	}
	if err != nil {
		return nil, err
	}
	return New(b, cfg.Fetcher, logger), nil
}

// Fetch opens a session, loads locator and waits for the ready marker.
// The returned page owns the session; the caller must Close it.
func (f *PageFetcher) Fetch(ctx context.Context, locator string) (*types.Page, error) {
	tab, err := f.browser.Open(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &types.FetchError{Kind: types.FetchCancelled, URL: locator, Err: ctx.Err()}
		}
		return nil, &types.FetchError{Kind: types.FetchSession, URL: locator, Err: err}
	}

	page, err := f.load(ctx, tab, locator, f.cfg.ReadySelector, f.cfg.MaxRetries)
	if err != nil {
		_ = tab.Close()
		return nil, err
	}
	return page, nil
}

// Close shuts down the session backend.
func (f *PageFetcher) Close() error {
	return f.browser.Close()
}

// load navigates tab to locator and waits for selector, re-navigating after
// retry_delay on each failed wait. Total blocking is bounded by
// attempts * (load_timeout + retry_delay).
func (f *PageFetcher) load(ctx context.Context, tab Tab, locator, selector string, attempts int) (*types.Page, error) {
	var (
		lastErr error
		used    int
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		used = attempt
		if ctx.Err() != nil {
			return nil, cancelled(locator, attempt-1, ctx.Err())
		}

		lastErr = tab.Navigate(ctx, locator)
		if lastErr == nil {
			f.snapshot(tab, locator, attempt)
			if selector == "" {
				break
			}
			lastErr = tab.WaitReady(ctx, selector, f.cfg.LoadTimeout)
			if lastErr == nil {
				break
			}
		}

		if ctx.Err() != nil {
			return nil, cancelled(locator, attempt, ctx.Err())
		}

		f.logger.Warn("page not ready",
			"url", locator,
			"attempt", attempt,
			"max_attempts", attempts,
			"error", lastErr,
		)

		if attempt == attempts {
			return nil, &types.FetchError{
				Kind:     types.FetchLoadTimeout,
				URL:      locator,
				Attempts: attempts,
				Err:      lastErr,
			}
		}

		select {
		case <-ctx.Done():
			return nil, cancelled(locator, attempt, ctx.Err())
		case <-time.After(f.cfg.RetryDelay):
		}
	}

	body, err := tab.HTML()
	if err != nil {
		return nil, &types.FetchError{Kind: types.FetchSession, URL: locator, Err: fmt.Errorf("read html: %w", err)}
	}

	finalURL := tab.URL()
	if finalURL == "" {
		finalURL = locator
	}

	page := types.NewPage(locator, finalURL, []byte(body), &navigator{fetcher: f, tab: tab})
	page.Attempts = used
	f.logger.Debug("page ready", "url", locator, "final_url", finalURL, "size", len(body))
	return page, nil
}

// snapshot writes a diagnostic capture of the current document. Failures
// are logged and ignored.
func (f *PageFetcher) snapshot(tab Tab, locator string, attempt int) {
	if f.cfg.SnapshotDir == "" {
		return
	}
	data, ext, err := tab.Snapshot()
	if err != nil {
		f.logger.Debug("snapshot failed", "url", locator, "error", err)
		return
	}
	if err := os.MkdirAll(f.cfg.SnapshotDir, 0o755); err != nil {
		f.logger.Debug("snapshot dir", "dir", f.cfg.SnapshotDir, "error", err)
		return
	}
	name := fmt.Sprintf("%s-%d%s", snapshotName(locator), attempt, ext)
	path := filepath.Join(f.cfg.SnapshotDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		f.logger.Debug("snapshot write failed", "path", path, "error", err)
	}
}

func cancelled(locator string, attempts int, err error) error {
	return &types.FetchError{Kind: types.FetchCancelled, URL: locator, Attempts: attempts, Err: err}
}

// snapshotName turns a locator into a filesystem-safe base name.
func snapshotName(locator string) string {
	locator = strings.TrimPrefix(strings.TrimPrefix(locator, "https://"), "http://")
	var b strings.Builder
	for _, r := range locator {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= 80 {
			break
		}
	}
	return b.String()
}

// navigator lets the extractor move the same session to secondary pages.
type navigator struct {
	fetcher *PageFetcher
	tab     Tab
}

// Follow loads rawURL in the same tab with a single readiness wait.
func (n *navigator) Follow(ctx context.Context, rawURL, readySelector string) (*types.Page, error) {
	return n.fetcher.load(ctx, n.tab, rawURL, readySelector, 1)
}

func (n *navigator) Close() error {
	return n.tab.Close()
}

// IsCancelled reports whether err came from a cancelled fetch.
func IsCancelled(err error) bool {
	var fe *types.FetchError
	if errors.As(err, &fe) {
		return fe.Kind == types.FetchCancelled
	}
	return errors.Is(err, context.Canceled)
}
