package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/metrics"
)

// CollyFetcher loads server-rendered listing pages with a colly collector and
// follows the configured "next" link to advance.
type CollyFetcher struct {
	cfg       *config.Config
	collector *colly.Collector
	metrics   *metrics.Metrics

	mu     sync.Mutex
	closed bool
}

// NewCollyFetcher builds a fetcher configured from cfg.
func NewCollyFetcher(cfg *config.Config, m *metrics.Metrics) *CollyFetcher {
	collector := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.UserAgent(cfg.UserAgent),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if cfg.Delay > 0 || cfg.RandomDelay > 0 {
		if err := collector.Limit(&colly.LimitRule{
			DomainGlob:  "*",
			Parallelism: 1,
			Delay:       cfg.Delay,
			RandomDelay: cfg.RandomDelay,
		}); err != nil {
			slog.Warn("configure page delay", slog.Any("error", err))
		}
	}

	return &CollyFetcher{
		cfg:       cfg,
		collector: collector,
		metrics:   m,
	}
}

// WithTransport replaces the HTTP transport used for page loads.
func (f *CollyFetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

// Fetch loads url, polling with capped exponential backoff until ready holds.
func (f *CollyFetcher) Fetch(ctx context.Context, url string, ready ReadinessFunc, budget time.Duration) (*Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	if ready == nil {
		ready = Always
	}

	start := time.Now()
	defer func() { f.metrics.ObserveFetch(time.Since(start)) }()

	deadline := start.Add(budget)
	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := f.load(url)
		switch {
		case err == nil && page.Root != nil && ready(page.Root):
			return page, nil
		case err == nil:
			lastErr = errNotReady
		case Retryable(err):
			lastErr = err
		default:
			return nil, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrFetchTimeout{URL: url, Budget: budget, Err: lastErr}
		}
		wait := f.backoff(attempt)
		if wait > remaining {
			wait = remaining
		}
		slog.Debug("page not ready, polling",
			slog.String("url", url),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.Any("reason", lastErr),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// Advance follows the page's next link.
func (f *CollyFetcher) Advance(ctx context.Context, page *Page, ready ReadinessFunc, budget time.Duration) (*Page, error) {
	if page == nil || page.NextURL == "" {
		return nil, ErrNoNextPage
	}
	return f.Fetch(ctx, page.NextURL, ready, budget)
}

// Close marks the fetcher unusable.
func (f *CollyFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *CollyFetcher) load(url string) (*Page, error) {
	c := f.collector.Clone()
	page := &Page{URL: url}

	c.OnResponse(func(r *colly.Response) {
		page.StatusCode = r.StatusCode
		page.Length = len(r.Body)
		page.URL = r.Request.URL.String()
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			page.StatusCode = r.StatusCode
		}
	})
	c.OnHTML("html", func(e *colly.HTMLElement) {
		page.Root = e.DOM
		if f.cfg.NextSelector == "" {
			return
		}
		if href := e.ChildAttr(f.cfg.NextSelector, "href"); href != "" {
			page.NextURL = e.Request.AbsoluteURL(href)
		}
	})

	if err := c.Visit(url); err != nil {
		if classified := classifyError(err, page.StatusCode); classified != nil {
			return nil, classified
		}
		return nil, fmt.Errorf("visit %s: %w", url, err)
	}
	if page.Root == nil {
		page.Root = emptySelection()
	}
	return page, nil
}

// maxBackoff bounds polling delays when RetryBackoffMax is unset.
const maxBackoff = 30 * time.Second

func (f *CollyFetcher) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := f.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	limit := f.cfg.RetryBackoffMax
	if limit <= 0 {
		limit = maxBackoff
	}
	delay := base
	for i := 1; i < attempt && delay < limit; i++ {
		delay *= 2
	}
	return min(delay, limit)
}

func emptySelection() *goquery.Selection {
	return &goquery.Selection{}
}
