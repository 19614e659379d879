package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-scrape-reviews/aggregate"
	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/metrics"
)

const usage = `usage: reviews <command> [flags]

commands:
  scrape     scrape every product in the jobs file and publish its reviews
  analyze    run sentiment analysis for one stored product (-product id|name)
  stats      print review counts over all stored reviews
  top        print the most reviewed products
  products   list stored products with their ids

run "reviews <command> -h" for the flags of a command.
`

type command func(ctx context.Context, cfg *config.Config, m *metrics.Metrics, opts *options) error

// options are the flags that are not part of config.Config.
type options struct {
	product string
	limit   int
	json    bool
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	commands := map[string]command{
		"scrape":   runScrape,
		"analyze":  runAnalyze,
		"stats":    runStats,
		"top":      runTop,
		"products": runProducts,
	}
	name := os.Args[1]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", name, usage)
		os.Exit(2)
	}

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}
	cfg := config.DefaultConfig()
	if err := config.ApplyEnv(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment: %v\n", err)
		os.Exit(1)
	}

	fs := flag.NewFlagSet(name, flag.ExitOnError)
	opts := &options{}
	bindFlags(fs, cfg, opts, name)
	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(2)
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	m := metrics.New()
	shutdownMetrics := serveMetrics(cfg.MetricsAddr, m)

	err := cmd(ctx, cfg, m, opts)
	shutdownMetrics()
	if err != nil {
		slog.Error(name+" failed", slog.Any("error", err))
		os.Exit(1)
	}
}

// bindFlags exposes the configuration as flags. Defaults are the values
// already resolved from DefaultConfig and the environment.
func bindFlags(fs *flag.FlagSet, cfg *config.Config, opts *options, name string) {
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Enable verbose logging")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	fs.StringVar(&cfg.Sink, "sink", cfg.Sink, "Review store: http, postgres, csv, json, or dual")
	fs.StringVar(&cfg.PersistenceURL, "persistence-url", cfg.PersistenceURL, "Base URL of the review persistence service")
	fs.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "PostgreSQL DSN for the postgres sink")
	fs.DurationVar(&cfg.PublishTimeout, "publish-timeout", cfg.PublishTimeout, "Timeout for one persistence call")

	if name != "scrape" {
		fs.BoolVar(&opts.json, "json", false, "Print the report as JSON")
	}

	switch name {
	case "scrape":
		fs.StringVar(&cfg.JobsFile, "jobs", cfg.JobsFile, "YAML file listing the products to scrape")
		fs.IntVar(&cfg.MaxRounds, "max-rounds", cfg.MaxRounds, "Maximum pagination rounds per product")
		fs.DurationVar(&cfg.SettleDelay, "settle-delay", cfg.SettleDelay, "Wait after each page advance")
		fs.DurationVar(&cfg.InitialWaitBudget, "wait-budget", cfg.InitialWaitBudget, "Time allowed for a page to become ready")
		fs.IntVar(&cfg.ReviewCap, "review-cap", cfg.ReviewCap, "Maximum reviews extracted per product")
		fs.IntVar(&cfg.Parallelism, "parallel", cfg.Parallelism, "Products scraped concurrently")
		fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-request fetch timeout")
		fs.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Initial readiness polling backoff")
		fs.DurationVar(&cfg.RetryBackoffMax, "retry-backoff-max", cfg.RetryBackoffMax, "Maximum readiness polling backoff")
		fs.DurationVar(&cfg.Delay, "delay", cfg.Delay, "Delay between page requests to the same domain")
		fs.DurationVar(&cfg.RandomDelay, "random-delay", cfg.RandomDelay, "Random jitter added to the page delay")
		fs.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "User-Agent header for page fetches")
		fs.StringVar(&cfg.ReviewSelector, "review-selector", cfg.ReviewSelector, "CSS selector of one review block")
		fs.StringVar(&cfg.TextSelector, "text-selector", cfg.TextSelector, "CSS selector of the review text inside a block")
		fs.StringVar(&cfg.RatingSelector, "rating-selector", cfg.RatingSelector, "CSS selector of the rating inside a block")
		fs.StringVar(&cfg.NextSelector, "next-selector", cfg.NextSelector, "CSS selector of the next-page link")
		fs.StringVar(&cfg.ReadySelector, "ready-selector", cfg.ReadySelector, "CSS selector that must match before extraction")
		fs.StringVar(&cfg.OutputFile, "output", cfg.OutputFile, "Output file for csv, json and dual sinks")
		fs.IntVar(&cfg.PublishWorkers, "publish-workers", cfg.PublishWorkers, "Concurrent publish calls")
		fs.IntVar(&cfg.PublishRetries, "publish-retries", cfg.PublishRetries, "Retries per failed publish call")
		fs.StringVar(&cfg.Schedule, "schedule", cfg.Schedule, `Cron expression for repeated runs (e.g. "@every 6h")`)
	case "top":
		fs.IntVar(&opts.limit, "limit", aggregate.DefaultTopLimit, "Number of products to list")
	case "analyze":
		fs.StringVar(&opts.product, "product", "", "Product id (see the products command) or exact name")
		fs.StringVar(&cfg.OpenAIModel, "model", cfg.OpenAIModel, "Chat model used when OPENAI_API_KEY is set")
		fs.StringVar(&cfg.OpenAIBaseURL, "openai-base-url", cfg.OpenAIBaseURL, "Override the OpenAI API base URL")
		fs.DurationVar(&cfg.AnalyzeTimeout, "analyze-timeout", cfg.AnalyzeTimeout, "Timeout for one LLM call")
		fs.StringVar(&cfg.Analyzer, "analyzer", cfg.Analyzer, "Offline analyzer: lexicon or vader")
	}
}

func serveMetrics(addr string, m *metrics.Metrics) func() {
	if addr == "" {
		return func() {}
	}
	server := &http.Server{
		Addr:    addr,
		Handler: promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
