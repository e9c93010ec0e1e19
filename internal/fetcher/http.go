package fetcher

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"

	"github.com/IshaanNene/pricewatch/internal/config"
	"github.com/IshaanNene/pricewatch/internal/types"
)

// HTTPBrowser implements Browser with plain HTTP GETs. Pages are not
// rendered, so the ready marker is checked once against the static HTML.
type HTTPBrowser struct {
	client *http.Client
	cfg    config.FetcherConfig
	logger *slog.Logger
}

// NewHTTPBrowser creates an HTTP session backend.
func NewHTTPBrowser(cfg config.FetcherConfig, logger *slog.Logger) (*HTTPBrowser, error) {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableCompression:  true, // decoded below, including brotli
	}
	return NewHTTPBrowserWithClient(&http.Client{
		Transport: transport,
		Timeout:   cfg.RequestTimeout,
	}, cfg, logger), nil
}

// NewHTTPBrowserWithClient creates an HTTP session backend over client.
func NewHTTPBrowserWithClient(client *http.Client, cfg config.FetcherConfig, logger *slog.Logger) *HTTPBrowser {
	return &HTTPBrowser{
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "http_browser"),
	}
}

// Open starts a session with its own cookie jar.
func (b *HTTPBrowser) Open(ctx context.Context) (Tab, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	client := *b.client
	client.Jar = jar
	return &httpTab{client: &client, cfg: b.cfg, logger: b.logger}, nil
}

// Close releases idle connections.
func (b *HTTPBrowser) Close() error {
	b.client.CloseIdleConnections()
	return nil
}

// Type returns the session backend identifier.
func (b *HTTPBrowser) Type() string {
	return "http"
}

type httpTab struct {
	client *http.Client
	cfg    config.FetcherConfig
	logger *slog.Logger
	url    string
	body   []byte
}

func (t *httpTab) Navigate(ctx context.Context, rawURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	ua := t.cfg.UserAgent
	if ua == "" {
		ua = "PriceWatch/" + config.Version
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}

	decoded, err := decompressReader(resp)
	if err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	defer decoded.Close()

	// The limit applies to decoded bytes.
	var reader io.Reader = decoded
	if t.cfg.MaxBodySize > 0 {
		reader = io.LimitReader(reader, t.cfg.MaxBodySize)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	t.url = resp.Request.URL.String()
	t.body = body

	t.logger.Debug("fetch complete",
		"url", rawURL,
		"status", resp.StatusCode,
		"size", len(body),
		"duration", time.Since(start),
	)
	return nil
}

func (t *httpTab) WaitReady(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(t.body))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}
	if doc.Find(selector).Length() == 0 {
		return fmt.Errorf("%w: %q not in document", types.ErrNoReadyMarker, selector)
	}
	return nil
}

func (t *httpTab) HTML() (string, error) {
	return string(t.body), nil
}

func (t *httpTab) URL() string {
	return t.url
}

func (t *httpTab) Snapshot() ([]byte, string, error) {
	return t.body, ".html", nil
}

func (t *httpTab) Close() error {
	t.body = nil
	return nil
}

// decompressReader decodes resp.Body according to its Content-Encoding.
// Handles gzip, deflate, and brotli (br) encodings.
func decompressReader(resp *http.Response) (io.ReadCloser, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "deflate":
		return flate.NewReader(resp.Body), nil
	case "br":
		return io.NopCloser(brotli.NewReader(resp.Body)), nil
	default:
		return io.NopCloser(resp.Body), nil
	}
}
