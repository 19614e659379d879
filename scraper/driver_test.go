package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/fetcher"
	"github.com/aluiziolira/go-scrape-reviews/metrics"
)

// fakeFetcher serves pre-rendered pages in order. When endless is set it keeps
// generating new pages after the scripted ones run out.
type fakeFetcher struct {
	pages      []string
	endless    bool
	fetchErr   error
	advanceErr error
	neverReady bool

	mu      sync.Mutex
	active  bool
	calls   int
	closed  bool
	overlap bool
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, ready fetcher.ReadinessFunc, budget time.Duration) (*fetcher.Page, error) {
	if err := f.enter(); err != nil {
		return nil, err
	}
	defer f.leave()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	page := f.page(0, url)
	if f.neverReady || !ready(page.Root) {
		return nil, fetcher.ErrFetchTimeout{URL: url, Budget: budget, Err: errors.New("not ready")}
	}
	return page, nil
}

func (f *fakeFetcher) Advance(ctx context.Context, page *fetcher.Page, ready fetcher.ReadinessFunc, budget time.Duration) (*fetcher.Page, error) {
	if err := f.enter(); err != nil {
		return nil, err
	}
	defer f.leave()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.advanceErr != nil {
		return nil, f.advanceErr
	}
	if page.NextURL == "" {
		return nil, fetcher.ErrNoNextPage
	}
	var idx int
	fmt.Sscanf(page.NextURL, "page-%d", &idx)
	return f.page(idx, page.NextURL), nil
}

func (f *fakeFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeFetcher) enter() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fetcher.ErrClosed
	}
	if f.active {
		f.overlap = true
	}
	f.active = true
	f.calls++
	return nil
}

func (f *fakeFetcher) leave() {
	f.mu.Lock()
	f.active = false
	f.mu.Unlock()
}

func (f *fakeFetcher) page(idx int, url string) *fetcher.Page {
	var body string
	switch {
	case idx < len(f.pages):
		body = f.pages[idx]
	case f.endless:
		body = reviewHTML(idx, 2, strings.Repeat("x", idx))
	}
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(body))
	next := ""
	if idx+1 < len(f.pages) || f.endless {
		next = fmt.Sprintf("page-%d", idx+1)
	}
	return &fetcher.Page{URL: url, Root: doc.Selection, NextURL: next, Length: len(body), StatusCode: 200}
}

func reviewHTML(page, count int, pad string) string {
	var builder strings.Builder
	builder.WriteString("<html><body>")
	for i := 1; i <= count; i++ {
		fmt.Fprintf(&builder, `<div data-review><p class="review-text">Review %d-%d %s</p><span class="review-rating">%d</span></div>`, page, i, pad, i)
	}
	builder.WriteString("</body></html>")
	return builder.String()
}

func driverConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.SettleDelay = 0
	cfg.InitialWaitBudget = 10 * time.Millisecond
	return cfg
}

func testJob() config.Job {
	return config.Job{Name: "TestPhone X", URL: "http://example.test/p"}
}

var testReady = fetcher.SelectorPresent("div[data-review]")

func TestDriverStopsWhenPagesExhausted(t *testing.T) {
	f := &fakeFetcher{pages: []string{
		reviewHTML(0, 2, ""),
		reviewHTML(1, 2, "a"),
		reviewHTML(2, 1, "bb"),
	}}
	m := metrics.New()

	session, err := NewDriver(f, driverConfig(), m).Scrape(context.Background(), testJob(), testReady)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if len(session.Raw) != 5 {
		t.Fatalf("raw = %d, want 5", len(session.Raw))
	}
	if session.PagesVisited != 3 || session.StopReason != StopNoNextPage {
		t.Fatalf("pages=%d reason=%q", session.PagesVisited, session.StopReason)
	}
	if session.ID == "" || session.ProductName != "TestPhone X" {
		t.Fatalf("session identity not set: %+v", session)
	}
	if f.overlap {
		t.Fatalf("fetcher accessed concurrently")
	}
}

func TestDriverRoundCap(t *testing.T) {
	cfg := driverConfig()
	cfg.MaxRounds = 3
	f := &fakeFetcher{endless: true}

	session, err := NewDriver(f, cfg, nil).Scrape(context.Background(), testJob(), testReady)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if session.StopReason != StopMaxRounds {
		t.Fatalf("reason = %q, want %q", session.StopReason, StopMaxRounds)
	}
	if session.PagesVisited != 3 || len(session.Raw) != 6 {
		t.Fatalf("pages=%d raw=%d, want 3/6", session.PagesVisited, len(session.Raw))
	}
}

func TestDriverStopsWhenSignalStable(t *testing.T) {
	same := reviewHTML(0, 2, "")
	f := &fakeFetcher{pages: []string{same, same, reviewHTML(2, 2, "longer")}}

	session, err := NewDriver(f, driverConfig(), nil).Scrape(context.Background(), testJob(), testReady)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if session.StopReason != StopStable {
		t.Fatalf("reason = %q, want %q", session.StopReason, StopStable)
	}
	if len(session.Raw) != 2 || session.PagesVisited != 2 {
		t.Fatalf("raw=%d pages=%d, want 2/2", len(session.Raw), session.PagesVisited)
	}
	if session.LastPageHeightOrCount != len(same) {
		t.Fatalf("signal = %d, want %d", session.LastPageHeightOrCount, len(same))
	}
}

func TestDriverReviewCap(t *testing.T) {
	cfg := driverConfig()
	cfg.ReviewCap = 3
	f := &fakeFetcher{endless: true}

	session, err := NewDriver(f, cfg, nil).Scrape(context.Background(), testJob(), testReady)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if len(session.Raw) != 3 || session.StopReason != StopReviewCap {
		t.Fatalf("raw=%d reason=%q, want 3/%s", len(session.Raw), session.StopReason, StopReviewCap)
	}
}

func TestDriverReadinessTimeout(t *testing.T) {
	f := &fakeFetcher{pages: []string{reviewHTML(0, 2, "")}, neverReady: true}

	session, err := NewDriver(f, driverConfig(), nil).Scrape(context.Background(), testJob(), testReady)
	var timeout fetcher.ErrFetchTimeout
	if !errors.As(err, &timeout) {
		t.Fatalf("err = %v, want ErrFetchTimeout", err)
	}
	if session == nil || len(session.Raw) != 0 {
		t.Fatalf("expected zero reviews on readiness timeout")
	}
}

func TestDriverTransportErrorAborts(t *testing.T) {
	f := &fakeFetcher{fetchErr: fetcher.ErrForbidden{Err: errors.New("403")}}

	_, err := NewDriver(f, driverConfig(), nil).Scrape(context.Background(), testJob(), testReady)
	var aborted ErrScrapeAborted
	if !errors.As(err, &aborted) {
		t.Fatalf("err = %v, want ErrScrapeAborted", err)
	}
	if got := fetcher.ErrorTypeLabel(err); got != "forbidden" {
		t.Fatalf("label = %q, want forbidden", got)
	}
}

func TestDriverNextPageTimeoutKeepsPartial(t *testing.T) {
	f := &fakeFetcher{
		pages:      []string{reviewHTML(0, 2, ""), reviewHTML(1, 2, "a")},
		advanceErr: fetcher.ErrFetchTimeout{URL: "page-1", Err: errors.New("not ready")},
	}

	session, err := NewDriver(f, driverConfig(), nil).Scrape(context.Background(), testJob(), testReady)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if len(session.Raw) != 2 || session.StopReason != StopNextPageTimeout {
		t.Fatalf("raw=%d reason=%q", len(session.Raw), session.StopReason)
	}
}

func TestDriverCanceledDuringSettle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := &fakeFetcher{endless: true}
	d := NewDriver(f, driverConfig(), nil)
	d.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := d.Scrape(ctx, testJob(), testReady)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestDriverSkipsMalformedBlocks(t *testing.T) {
	page := `<html><body>
<div data-review><p class="review-text">Good</p></div>
<div data-review><span class="review-rating">5</span></div>
<div data-review><p class="review-text">Bad</p></div>
</body></html>`
	f := &fakeFetcher{pages: []string{page}}
	m := metrics.New()

	session, err := NewDriver(f, driverConfig(), m).Scrape(context.Background(), testJob(), testReady)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if len(session.Raw) != 2 || session.Skipped != 1 {
		t.Fatalf("raw=%d skipped=%d, want 2/1", len(session.Raw), session.Skipped)
	}
}
