package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/metrics"
	"github.com/aluiziolira/go-scrape-reviews/models"
	"github.com/aluiziolira/go-scrape-reviews/pipeline"
	"github.com/aluiziolira/go-scrape-reviews/scraper"
	"github.com/aluiziolira/go-scrape-reviews/store"
)

func runScrape(ctx context.Context, cfg *config.Config, m *metrics.Metrics, _ *options) error {
	jobs, err := config.LoadJobs(cfg.JobsFile)
	if err != nil {
		return err
	}

	if cfg.Schedule == "" {
		return scrapeOnce(ctx, cfg, m, jobs)
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(cfg.Schedule, func() {
		if err := scrapeOnce(ctx, cfg, m, jobs); err != nil {
			slog.Error("scheduled scrape failed", slog.Any("error", err))
		}
	}); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
	}

	slog.Info("scheduled scraping",
		slog.String("schedule", cfg.Schedule),
		slog.Int("products", len(jobs)),
	)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func scrapeOnce(ctx context.Context, cfg *config.Config, m *metrics.Metrics, jobs []config.Job) error {
	slog.Info("starting scrape",
		slog.Int("products", len(jobs)),
		slog.Int("workers", cfg.Parallelism),
		slog.String("sink", cfg.Sink),
	)

	publisher, err := openPublisher(ctx, cfg)
	if err != nil {
		return err
	}

	p := pipeline.NewPipeline(ctx, publisher, cfg, pipeline.WithMetrics(m))
	p.Start(cfg.PublishWorkers)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	startTime := time.Now()
	result, runErr := scraper.NewRunner(cfg, m, nil).Run(ctx, jobs, p)

	if err := p.Close(); err != nil {
		return fmt.Errorf("pipeline shutdown: %w", err)
	}
	if runErr != nil {
		return runErr
	}

	counters := p.GetMetrics()
	published, _ := counters["published_reviews"].(int64)
	if v, ok := publisher.(interface{ Validate() error }); ok && published > 0 {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("output validation: %w", err)
		}
	}

	printSummary(result, time.Since(startTime), counters)
	return nil
}

func openPublisher(ctx context.Context, cfg *config.Config) (pipeline.Publisher, error) {
	switch cfg.Sink {
	case config.SinkHTTP:
		return store.NewClient(cfg), nil
	case config.SinkPostgres:
		pg, err := store.Connect(ctx, cfg.DatabaseURL, cfg.PublishWorkers)
		if err != nil {
			return nil, err
		}
		return pg, nil
	default:
		return pipeline.NewFilePublisher(cfg.Sink, cfg.OutputFile)
	}
}

func printSummary(result *models.RunResult, duration time.Duration, counters map[string]interface{}) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")

	published, _ := counters["published_reviews"].(int64)
	publishErrors, _ := counters["publish_errors"].(int64)

	fmt.Printf("  Products:      %d\n", len(result.Sessions))
	fmt.Printf("  Pages:         %d\n", result.PageCount)
	fmt.Printf("  Reviews:       %d\n", result.TotalReviews)
	fmt.Printf("  Published:     %d\n", published)
	fmt.Printf("  Publish errs:  %d\n", publishErrors)
	fmt.Printf("  Failed:        %d %v\n", result.ErrorCount, result.FailedProducts)
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	if valErrors, ok := counters["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Printf("  Validation:    %v\n", valErrors)
	}
	for _, s := range result.Sessions {
		status := s.StopReason
		if s.Err != nil {
			status = s.Err.Error()
		}
		fmt.Printf("  - %-24s pages=%d reviews=%d skipped=%d %s\n", s.ProductName, s.PagesVisited, s.ReviewCount, s.Skipped, status)
	}
	fmt.Printf("  Duration:      %v\n", duration.Round(time.Millisecond))
	fmt.Println(separator)
}
