// Package scraper drives paginated review scraping for one or many products.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/fetcher"
	"github.com/aluiziolira/go-scrape-reviews/metrics"
	"github.com/aluiziolira/go-scrape-reviews/models"
	"github.com/aluiziolira/go-scrape-reviews/parser"
)

// State is a pagination state.
type State string

const (
	StateLoading   State = "loading"
	StateSettled   State = "settled"
	StateExhausted State = "exhausted"
)

// Stop reasons recorded on a session.
const (
	StopStable          = "stable"
	StopReviewCap       = "review_cap"
	StopMaxRounds       = "max_rounds"
	StopNoNextPage      = "no_next_page"
	StopNextPageTimeout = "next_page_timeout"
)

// ErrScrapeAborted indicates the fetcher reported an unrecoverable transport error.
type ErrScrapeAborted struct {
	URL string
	Err error
}

func (e ErrScrapeAborted) Error() string {
	return fmt.Sprintf("scrape_aborted: %s: %v", e.URL, e.Err)
}

func (e ErrScrapeAborted) Unwrap() error {
	return e.Err
}

// Driver walks one product's pages with an exclusively owned fetcher.
type Driver struct {
	fetcher   fetcher.PageFetcher
	extractor *parser.Extractor
	cfg       *config.Config
	metrics   *metrics.Metrics

	// sleep waits for the settle delay; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDriver builds a driver around f. The driver does not close f.
func NewDriver(f fetcher.PageFetcher, cfg *config.Config, m *metrics.Metrics) *Driver {
	return &Driver{
		fetcher: f,
		extractor: parser.NewExtractor(parser.Selectors{
			Review: cfg.ReviewSelector,
			Text:   cfg.TextSelector,
			Rating: cfg.RatingSelector,
		}),
		cfg:     cfg,
		metrics: m,
		sleep:   sleepContext,
	}
}

// Scrape collects raw reviews for job. The returned session is never nil; on
// error it carries whatever was collected before the failure.
func (d *Driver) Scrape(ctx context.Context, job config.Job, ready fetcher.ReadinessFunc) (*models.ScrapeSession, error) {
	session := &models.ScrapeSession{
		ID:          uuid.NewString(),
		ProductName: job.Name,
		URL:         job.URL,
		StartedAt:   time.Now(),
	}
	logger := slog.With(
		slog.String("session", session.ID),
		slog.String("product", job.Name),
	)

	page, err := d.fetcher.Fetch(ctx, job.URL, ready, d.cfg.InitialWaitBudget)
	if err != nil {
		return session, d.fail(ctx, job.URL, err)
	}
	d.visit(session, page)

	state := StateLoading
	signal := page.Length
	for round := 1; state == StateLoading; round++ {
		d.extract(logger, session, page)

		if len(session.Raw) >= d.cfg.ReviewCap {
			state, session.StopReason = StateSettled, StopReviewCap
			break
		}
		if round >= d.cfg.MaxRounds {
			state, session.StopReason = StateSettled, StopMaxRounds
			break
		}

		next, err := d.fetcher.Advance(ctx, page, ready, d.cfg.InitialWaitBudget)
		if err != nil {
			var timeout fetcher.ErrFetchTimeout
			switch {
			case errors.Is(err, fetcher.ErrNoNextPage):
				state, session.StopReason = StateExhausted, StopNoNextPage
				continue
			case errors.As(err, &timeout):
				logger.Warn("next page never became ready, keeping partial results",
					slog.String("url", timeout.URL),
					slog.Int("reviews", len(session.Raw)),
				)
				state, session.StopReason = StateSettled, StopNextPageTimeout
				continue
			default:
				return session, d.fail(ctx, page.URL, err)
			}
		}
		d.visit(session, next)

		if err := d.sleep(ctx, d.cfg.SettleDelay); err != nil {
			return session, err
		}

		if next.Length == signal {
			state, session.StopReason = StateSettled, StopStable
			continue
		}
		signal = next.Length
		page = next
	}

	session.LastPageHeightOrCount = signal
	d.metrics.IncSession(string(state))
	logger.Debug("scrape session finished",
		slog.String("state", string(state)),
		slog.String("reason", session.StopReason),
		slog.Int("pages", session.PagesVisited),
		slog.Int("raw_reviews", len(session.Raw)),
		slog.Int("skipped", session.Skipped),
	)
	return session, nil
}

func (d *Driver) visit(session *models.ScrapeSession, page *fetcher.Page) {
	session.PagesVisited++
	d.metrics.IncPage()
	slog.Debug("page loaded",
		slog.String("product", session.ProductName),
		slog.String("url", page.URL),
		slog.Int("length", page.Length),
	)
}

func (d *Driver) extract(logger *slog.Logger, session *models.ScrapeSession, page *fetcher.Page) {
	reviews, skips := d.extractor.Extract(page.Root, page.URL)
	for _, err := range skips {
		logger.Warn("skipping malformed review block",
			slog.String("url", page.URL),
			slog.Any("error", err),
		)
	}
	session.Skipped += len(skips)
	d.metrics.AddSkips(len(skips))

	if room := d.cfg.ReviewCap - len(session.Raw); len(reviews) > room {
		reviews = reviews[:room]
	}
	session.Raw = append(session.Raw, reviews...)
	d.metrics.AddExtracted(len(reviews))
}

func (d *Driver) fail(ctx context.Context, url string, err error) error {
	var timeout fetcher.ErrFetchTimeout
	switch {
	case ctx.Err() != nil:
		d.metrics.IncSession("canceled")
		return ctx.Err()
	case errors.As(err, &timeout):
		d.metrics.IncSession("timeout")
		return err
	default:
		d.metrics.IncSession("aborted")
		return ErrScrapeAborted{URL: url, Err: err}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
