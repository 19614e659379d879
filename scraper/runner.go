package scraper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/fetcher"
	"github.com/aluiziolira/go-scrape-reviews/metrics"
	"github.com/aluiziolira/go-scrape-reviews/models"
	"github.com/aluiziolira/go-scrape-reviews/parser"
)

// FetcherFactory opens a fresh fetcher for one scrape session.
type FetcherFactory func() fetcher.PageFetcher

// Processor receives normalized reviews for publishing.
type Processor interface {
	Process(reviews ...*models.NormalizedReview) error
}

// Runner scrapes many products concurrently. Each product gets its own
// fetcher, so pages within a product are always visited sequentially.
type Runner struct {
	cfg        *config.Config
	newFetcher FetcherFactory
	ready      fetcher.ReadinessFunc
	Metrics    *metrics.Metrics

	mu           sync.Mutex
	errorsByType map[string]int
}

// NewRunner builds a runner. A nil factory opens colly fetchers.
func NewRunner(cfg *config.Config, m *metrics.Metrics, factory FetcherFactory) *Runner {
	if factory == nil {
		factory = func() fetcher.PageFetcher {
			return fetcher.NewCollyFetcher(cfg, m)
		}
	}
	ready := fetcher.Always
	if cfg.ReadySelector != "" {
		ready = fetcher.SelectorPresent(cfg.ReadySelector)
	}
	return &Runner{
		cfg:          cfg,
		newFetcher:   factory,
		ready:        ready,
		Metrics:      m,
		errorsByType: make(map[string]int),
	}
}

// Run scrapes every job and streams normalized reviews into p. A failed
// product is recorded in the result and never stops the others.
func (r *Runner) Run(ctx context.Context, jobs []config.Job, p Processor) (*models.RunResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	sessions := make([]models.SessionResult, len(jobs))

	var g errgroup.Group
	g.SetLimit(max(r.cfg.Parallelism, 1))
	for i, job := range jobs {
		if ctx.Err() != nil {
			sessions[i] = models.SessionResult{ProductName: job.Name, URL: job.URL, Err: ctx.Err()}
			continue
		}
		g.Go(func() error {
			sessions[i] = r.scrapeOne(ctx, job, p)
			return nil
		})
	}
	_ = g.Wait()

	result := &models.RunResult{
		Sessions:     sessions,
		StartTime:    start,
		EndTime:      time.Now(),
		ErrorsByType: r.snapshotErrors(),
	}
	for _, s := range sessions {
		result.TotalReviews += s.ReviewCount
		result.PageCount += s.PagesVisited
		if s.Err != nil {
			result.ErrorCount++
			result.FailedProducts = append(result.FailedProducts, s.ProductName)
		}
	}
	return result, ctx.Err()
}

func (r *Runner) scrapeOne(ctx context.Context, job config.Job, p Processor) models.SessionResult {
	f := r.newFetcher()
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("close fetcher", slog.String("product", job.Name), slog.Any("error", err))
		}
	}()

	session, err := NewDriver(f, r.cfg, r.Metrics).Scrape(ctx, job, r.ready)
	res := models.SessionResult{
		ProductName:  job.Name,
		URL:          job.URL,
		PagesVisited: session.PagesVisited,
		RawCount:     len(session.Raw),
		Skipped:      session.Skipped,
		StopReason:   session.StopReason,
		Err:          err,
	}
	if err != nil {
		r.recordError(job, err)
		return res
	}

	session.Reviews = parser.Normalize(session.Raw, job.Name)
	res.ReviewCount = len(session.Reviews)
	if err := p.Process(session.Reviews...); err != nil {
		res.Err = err
		r.recordError(job, err)
		return res
	}

	slog.Info("product scraped",
		slog.String("product", job.Name),
		slog.Int("pages", res.PagesVisited),
		slog.Int("raw", res.RawCount),
		slog.Int("reviews", res.ReviewCount),
		slog.String("stop", res.StopReason),
	)
	return res
}

func (r *Runner) recordError(job config.Job, err error) {
	category := fetcher.ErrorTypeLabel(err)

	r.mu.Lock()
	r.errorsByType[category]++
	r.mu.Unlock()

	r.Metrics.IncError(category)
	slog.Error("product scrape failed",
		slog.String("product", job.Name),
		slog.String("url", job.URL),
		slog.String("category", category),
		slog.Any("error", err),
	)
}

func (r *Runner) snapshotErrors() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.errorsByType))
	for k, v := range r.errorsByType {
		out[k] = v
	}
	return out
}
