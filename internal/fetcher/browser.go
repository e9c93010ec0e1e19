package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/IshaanNene/pricewatch/internal/config"
	"github.com/IshaanNene/pricewatch/internal/types"
)

// RodBrowser implements Browser using a headless Chromium via Rod.
type RodBrowser struct {
	browser *rod.Browser
	cfg     config.FetcherConfig
	logger  *slog.Logger
}

// NewRodBrowser launches Chromium and connects to it.
func NewRodBrowser(cfg config.FetcherConfig, logger *slog.Logger) (*RodBrowser, error) {
	rb := &RodBrowser{
		cfg:    cfg,
		logger: logger.With("component", "rod_browser"),
	}

	launchURL, err := rb.launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(launchURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	rb.browser = browser

	rb.logger.Info("browser ready", "headless", cfg.Headless, "stealth", cfg.Stealth)
	return rb, nil
}

// launch starts a Chromium instance with the flags product pages need to
// render in a container.
func (rb *RodBrowser) launch() (string, error) {
	l := launcher.New().
		Headless(rb.cfg.Headless).
		Set("no-sandbox").
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("lang", "en").
		Set("window-size", "1920,1080").
		Set("disable-blink-features", "AutomationControlled")

	if rb.cfg.BrowserBin != "" {
		l = l.Bin(rb.cfg.BrowserBin)
	}
	return l.Launch()
}

// Open creates a new tab, with stealth patches when configured.
func (rb *RodBrowser) Open(ctx context.Context) (Tab, error) {
	var (
		page *rod.Page
		err  error
	)
	if rb.cfg.Stealth {
		page, err = stealth.Page(rb.browser)
		if err != nil {
			return nil, fmt.Errorf("stealth page: %w", err)
		}
	} else {
		page, err = rb.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
		if err != nil {
			return nil, fmt.Errorf("new page: %w", err)
		}
	}

	if rb.cfg.UserAgent != "" {
		err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      rb.cfg.UserAgent,
			AcceptLanguage: "en-US,en;q=0.9",
		})
		if err != nil {
			rb.logger.Warn("failed to set user agent", "error", err)
		}
	}

	return &rodTab{page: page, navTimeout: rb.cfg.RequestTimeout}, nil
}

// Close shuts down the browser.
func (rb *RodBrowser) Close() error {
	if rb.browser != nil {
		return rb.browser.Close()
	}
	return nil
}

// Type returns the session backend identifier.
func (rb *RodBrowser) Type() string {
	return "browser"
}

type rodTab struct {
	page       *rod.Page
	navTimeout time.Duration
}

func (t *rodTab) Navigate(ctx context.Context, rawURL string) error {
	p := t.page.Context(ctx)
	if t.navTimeout > 0 {
		p = p.Timeout(t.navTimeout)
	}
	if err := p.Navigate(rawURL); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	return nil
}

func (t *rodTab) WaitReady(ctx context.Context, selector string, timeout time.Duration) error {
	_, err := t.page.Context(ctx).Timeout(timeout).Element(selector)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %q within %s", types.ErrNoReadyMarker, selector, timeout)
	}
	return err
}

func (t *rodTab) HTML() (string, error) {
	return t.page.HTML()
}

func (t *rodTab) URL() string {
	info, err := t.page.Info()
	if err != nil || info == nil {
		return ""
	}
	return info.URL
}

func (t *rodTab) Snapshot() ([]byte, string, error) {
	data, err := t.page.Screenshot(true, nil)
	if err != nil {
		return nil, "", err
	}
	return data, ".png", nil
}

func (t *rodTab) Close() error {
	return t.page.Close()
}
