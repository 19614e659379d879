// Package pipeline fans normalized reviews out to a persistence publisher.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/metrics"
	"github.com/aluiziolira/go-scrape-reviews/models"
	"github.com/aluiziolira/go-scrape-reviews/parser"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrPipelineCloseTimeout is returned when workers do not drain in time.
	ErrPipelineCloseTimeout = errors.New("pipeline: close timed out waiting for workers")
)

var drainTimeout = 30 * time.Second

// Publisher persists one review at a time.
type Publisher interface {
	Publish(ctx context.Context, review *models.NormalizedReview) error
	Close() error
}

// PublishError reports a review the publisher failed to persist.
type PublishError struct {
	Product     string
	Fingerprint string
	Err         error
}

func (e PublishError) Error() string {
	return fmt.Sprintf("publish_error: product %q review %s: %v", e.Product, shortFingerprint(e.Fingerprint), e.Err)
}

func (e PublishError) Unwrap() error {
	return e.Err
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithMetrics reports pipeline activity to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.prom = m
	}
}

// Pipeline validates reviews and publishes them with bounded parallelism.
// A failed publish is logged and counted; the remaining reviews still go out.
type Pipeline struct {
	ctx       context.Context
	publisher Publisher
	reviewCh  chan *models.NormalizedReview
	timeout   time.Duration

	wg sync.WaitGroup

	// guard suppresses publishing the same product+fingerprint twice in one run.
	guard *lru.Cache[string, struct{}]

	counters counters
	prom     *metrics.Metrics

	mu     sync.Mutex // guards closed
	closed bool

	closeOnce    sync.Once
	closeErr     error
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline publishing through publisher.
func NewPipeline(ctx context.Context, publisher Publisher, cfg *config.Config, opts ...Option) *Pipeline {
	if ctx == nil {
		ctx = context.Background()
	}

	bufferSize := cfg.PipelineBufferSize
	if bufferSize <= 0 {
		bufferSize = 512
	}
	guardSize := cfg.DedupeMaxSize
	if guardSize <= 0 {
		guardSize = 100000
	}
	guard, err := lru.New[string, struct{}](guardSize)
	if err != nil {
		panic(fmt.Sprintf("pipeline: create dedupe cache: %v", err))
	}

	p := &Pipeline{
		ctx:       ctx,
		publisher: publisher,
		reviewCh:  make(chan *models.NormalizedReview, bufferSize),
		timeout:   cfg.PublishTimeout,
		guard:     guard,
		counters:  newCounters(),
		shutdown:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches worker goroutines.
func (p *Pipeline) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Process enqueues reviews for publishing.
func (p *Pipeline) Process(reviews ...*models.NormalizedReview) error {
	if len(reviews) == 0 {
		return nil
	}
	if p.isClosed() {
		return ErrPipelineClosed
	}

	for _, review := range reviews {
		if review == nil {
			continue
		}
		if err := p.enqueue(review); err != nil {
			return err
		}
	}
	return nil
}

// Close stops accepting reviews, waits up to drainTimeout for queued ones to
// be published and closes the publisher.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		p.signalShutdown()
		close(p.reviewCh)

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(drainTimeout):
			p.closeErr = ErrPipelineCloseTimeout
			return
		}

		if err := p.publisher.Close(); err != nil {
			p.closeErr = fmt.Errorf("close publisher: %w", err)
		}
	})
	return p.closeErr
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.counters.snapshot()
}

// StartMetricsReporting emits periodic progress logs.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				snapshot := p.GetMetrics()
				slog.Info("pipeline progress",
					slog.Int64("published", snapshot["published_reviews"].(int64)),
					slog.Int64("failed", snapshot["publish_errors"].(int64)),
					slog.Any("skipped", snapshot["validation_errors"]),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	for review := range p.reviewCh {
		p.handle(review)
	}
}

func (p *Pipeline) handle(review *models.NormalizedReview) {
	if p.ctx.Err() != nil {
		p.counters.addValidation("canceled")
		return
	}
	if err := parser.ValidateReview(review); err != nil {
		p.counters.addValidation("invalid_record")
		slog.Warn("dropping invalid review", slog.Any("error", err))
		return
	}

	key := review.ProductName + "\x00" + review.Fingerprint
	if seen, _ := p.guard.ContainsOrAdd(key, struct{}{}); seen {
		p.counters.addValidation("duplicate_review")
		p.prom.IncDuplicate()
		return
	}

	if err := p.publish(review); err != nil {
		// allow a later run of the same product to try again
		p.guard.Remove(key)
		p.counters.incrementFailed()
		p.prom.IncPublishError()
		p.prom.IncError("publish_error")

		pubErr := PublishError{Product: review.ProductName, Fingerprint: review.Fingerprint, Err: err}
		slog.Error("publish failed",
			slog.String("product", review.ProductName),
			slog.String("fingerprint", shortFingerprint(review.Fingerprint)),
			slog.String("review", snippet(review.Text)),
			slog.Any("error", pubErr),
		)
		return
	}

	p.counters.incrementPublished()
	p.prom.IncPublished()
}

func (p *Pipeline) publish(review *models.NormalizedReview) error {
	ctx := p.ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	return p.publisher.Publish(ctx, review)
}

func (p *Pipeline) enqueue(review *models.NormalizedReview) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case <-p.ctx.Done():
		return p.ctx.Err()
	case p.reviewCh <- review:
		return nil
	}
}

func (p *Pipeline) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

func snippet(text string) string {
	const limit = 80
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

type counters struct {
	mu         sync.Mutex
	published  int64
	failed     int64
	validation map[string]int
}

func newCounters() counters {
	return counters{
		validation: make(map[string]int),
	}
}

func (c *counters) incrementPublished() {
	c.mu.Lock()
	c.published++
	c.mu.Unlock()
}

func (c *counters) incrementFailed() {
	c.mu.Lock()
	c.failed++
	c.mu.Unlock()
}

func (c *counters) addValidation(kind string) {
	c.mu.Lock()
	c.validation[kind]++
	c.mu.Unlock()
}

func (c *counters) snapshot() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	copyValidation := make(map[string]int, len(c.validation))
	for k, v := range c.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"published_reviews": c.published,
		"publish_errors":    c.failed,
		"validation_errors": copyValidation,
	}
}
