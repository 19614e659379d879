package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aluiziolira/go-scrape-reviews/aggregate"
	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/metrics"
	"github.com/aluiziolira/go-scrape-reviews/models"
	"github.com/aluiziolira/go-scrape-reviews/sentiment"
	"github.com/aluiziolira/go-scrape-reviews/store"
)

const meterWidth = 20

type reviewSource interface {
	aggregate.ReviewSource
	Close() error
}

func openSource(ctx context.Context, cfg *config.Config) (reviewSource, error) {
	switch cfg.Sink {
	case config.SinkHTTP:
		return store.NewClient(cfg), nil
	case config.SinkPostgres:
		pg, err := store.Connect(ctx, cfg.DatabaseURL, 2)
		if err != nil {
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("sink %q cannot be read back; use http or postgres", cfg.Sink)
	}
}

func loadReviews(ctx context.Context, cfg *config.Config) ([]models.StoredReview, error) {
	src, err := openSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return aggregate.Load(ctx, src)
}

func runAnalyze(ctx context.Context, cfg *config.Config, m *metrics.Metrics, opts *options) error {
	if strings.TrimSpace(opts.product) == "" {
		return fmt.Errorf("-product is required")
	}
	reviews, err := loadReviews(ctx, cfg)
	if err != nil {
		return err
	}
	product, err := aggregate.Resolve(aggregate.Products(reviews), opts.product)
	if err != nil {
		return err
	}
	texts, err := aggregate.ReviewsFor(reviews, product.Name)
	if err != nil {
		return err
	}

	analyzer := sentiment.New(cfg, m)
	slog.Info("analyzing product",
		slog.String("product", product.Name),
		slog.Int("reviews", len(texts)),
		slog.String("strategy", analyzer.Name()),
	)
	result, err := analyzer.Analyze(ctx, product.Name, texts)
	if err != nil {
		return err
	}

	if opts.json {
		return writeJSON(os.Stdout, result)
	}
	printAnalysis(os.Stdout, result, len(texts))
	return nil
}

func runStats(ctx context.Context, cfg *config.Config, _ *metrics.Metrics, opts *options) error {
	reviews, err := loadReviews(ctx, cfg)
	if err != nil {
		return err
	}
	stats := aggregate.ComputeStats(reviews)
	if opts.json {
		return writeJSON(os.Stdout, stats)
	}
	fmt.Printf("Total reviews:    %d\n", stats.TotalReviews)
	fmt.Printf("Total products:   %d\n", stats.TotalProducts)
	fmt.Printf("Positive reviews: %d\n", stats.PositiveReviews)
	fmt.Printf("Negative reviews: %d\n", stats.NegativeReviews)
	return nil
}

func runTop(ctx context.Context, cfg *config.Config, _ *metrics.Metrics, opts *options) error {
	reviews, err := loadReviews(ctx, cfg)
	if err != nil {
		return err
	}
	top := aggregate.TopProducts(reviews, opts.limit)
	if opts.json {
		return writeJSON(os.Stdout, top)
	}
	if len(top) == 0 {
		fmt.Println("No reviews stored yet.")
		return nil
	}
	for i, p := range top {
		fmt.Printf("%2d. %-30s %4d reviews  avg %.1f  %s\n", i+1, p.Name, p.ReviewCount, p.AverageRating, meter(p.Sentiment))
	}
	return nil
}

func runProducts(ctx context.Context, cfg *config.Config, _ *metrics.Metrics, opts *options) error {
	reviews, err := loadReviews(ctx, cfg)
	if err != nil {
		return err
	}
	products := aggregate.Products(reviews)
	if opts.json {
		return writeJSON(os.Stdout, products)
	}
	if len(products) == 0 {
		fmt.Println("No reviews stored yet.")
		return nil
	}
	for _, p := range products {
		fmt.Printf("%3d  %s\n", p.ID, p.Name)
	}
	return nil
}

func printAnalysis(w io.Writer, r *models.SentimentResult, reviewCount int) {
	fmt.Fprintf(w, "Sentiment for %s (%d reviews, %s)\n\n", r.Product, reviewCount, r.Strategy)
	fmt.Fprintf(w, "  Overall: %s %s\n\n", meter(r.OverallSentiment), label(r.OverallSentiment))

	printAspects(w, "Liked", r.PositiveAspects)
	printAspects(w, "Disliked", r.NegativeAspects)
	printAspects(w, "Mixed", r.NeutralAspects)

	if len(r.SentimentBreakdown) == 0 {
		return
	}
	fmt.Fprintln(w, "  Breakdown:")
	for _, aspects := range [][]string{r.PositiveAspects, r.NeutralAspects, r.NegativeAspects} {
		for _, aspect := range aspects {
			score, ok := r.SentimentBreakdown[aspect]
			if !ok {
				continue
			}
			fmt.Fprintf(w, "    %-20s %s\n", aspect, meter(score))
		}
	}
}

func printAspects(w io.Writer, title string, aspects []string) {
	if len(aspects) == 0 {
		return
	}
	fmt.Fprintf(w, "  %s: %s\n", title, strings.Join(aspects, ", "))
}

func label(score float64) string {
	switch sentiment.BandOf(score) {
	case sentiment.BandPositive:
		return "Positive"
	case sentiment.BandNegative:
		return "Negative"
	default:
		return "Mixed"
	}
}

// meter renders score in [0,1] as a bar with a percentage.
func meter(score float64) string {
	filled := int(score*meterWidth + 0.5)
	filled = min(max(filled, 0), meterWidth)
	return fmt.Sprintf("[%s%s] %3.0f%%", strings.Repeat("#", filled), strings.Repeat(".", meterWidth-filled), score*100)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
