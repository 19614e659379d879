// Package fetcher provides the page-fetching capability used by pagination
// drivers: load a rendered page once a readiness condition holds, and advance
// it to its next state.
package fetcher

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ReadinessFunc reports whether a page has rendered enough content to extract.
type ReadinessFunc func(root *goquery.Selection) bool

// SelectorPresent is ready once selector matches at least one element.
func SelectorPresent(selector string) ReadinessFunc {
	return func(root *goquery.Selection) bool {
		return root != nil && root.Find(selector).Length() > 0
	}
}

// Always is ready as soon as any HTML document was loaded.
func Always(root *goquery.Selection) bool {
	return root != nil
}

// Page is one rendered page state.
type Page struct {
	URL        string
	Root       *goquery.Selection
	NextURL    string
	Length     int
	StatusCode int
}

// PageFetcher loads and advances pages for a single scrape session. A fetcher
// is owned by one session at a time and is not shared across goroutines.
type PageFetcher interface {
	// Fetch loads url and blocks until ready holds or budget elapses.
	Fetch(ctx context.Context, url string, ready ReadinessFunc, budget time.Duration) (*Page, error)
	// Advance moves page to its next state, returning ErrNoNextPage when there is none.
	Advance(ctx context.Context, page *Page, ready ReadinessFunc, budget time.Duration) (*Page, error)
	// Close releases the underlying session.
	Close() error
}
