package types

import (
	"bytes"
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Navigator moves an open browsing session to another address and returns
// the loaded page. readySelector may be empty.
type Navigator interface {
	Follow(ctx context.Context, rawURL, readySelector string) (*Page, error)
	Close() error
}

// Page is a loaded product page, readable by the extractor.
type Page struct {
	// Locator is the address that was requested.
	Locator string

	// FinalURL is the address after any redirects.
	FinalURL string

	// HTML is the rendered document.
	HTML []byte

	// FetchedAt is when the page finished loading.
	FetchedAt time.Time

	// Attempts is how many loads were needed before the ready marker appeared.
	Attempts int

	nav  Navigator
	doc  *goquery.Document
	node *html.Node
}

// NewPage wraps rendered HTML. nav may be nil for pages that cannot navigate.
func NewPage(locator, finalURL string, body []byte, nav Navigator) *Page {
	return &Page{
		Locator:   locator,
		FinalURL:  finalURL,
		HTML:      body,
		FetchedAt: time.Now(),
		nav:       nav,
	}
}

// Document returns a parsed goquery document, lazily initializing it.
func (p *Page) Document() (*goquery.Document, error) {
	if p.doc != nil {
		return p.doc, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.HTML))
	if err != nil {
		return nil, err
	}
	p.doc = doc
	return doc, nil
}

// Node returns the parsed html root, lazily initializing it.
func (p *Page) Node() (*html.Node, error) {
	if p.node != nil {
		return p.node, nil
	}
	node, err := html.Parse(bytes.NewReader(p.HTML))
	if err != nil {
		return nil, err
	}
	p.node = node
	return node, nil
}

// Follow loads a secondary page in the same session.
func (p *Page) Follow(ctx context.Context, rawURL, readySelector string) (*Page, error) {
	if p.nav == nil {
		return nil, ErrNoFollow
	}
	return p.nav.Follow(ctx, rawURL, readySelector)
}

// Close releases the underlying session, if any.
func (p *Page) Close() error {
	if p.nav == nil {
		return nil
	}
	return p.nav.Close()
}
