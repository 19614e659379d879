// Package sentiment scores a product's reviews into aspect-level sentiment.
//
// Strategies are interchangeable Analyzer values. New picks the LLM strategy
// when an API key is configured and the deterministic lexicon otherwise; the
// LLM strategy degrades to its fallback on any parse or transport failure.
package sentiment

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/metrics"
	"github.com/aluiziolira/go-scrape-reviews/models"
)

// Banding thresholds shared by every strategy.
const (
	PositiveThreshold = 0.6
	NegativeThreshold = 0.4
)

// Band is the sentiment class of a score.
type Band string

const (
	BandPositive Band = "positive"
	BandNeutral  Band = "neutral"
	BandNegative Band = "negative"
)

// BandOf classifies score: >= 0.6 positive, < 0.4 negative, else neutral.
func BandOf(score float64) Band {
	switch {
	case score >= PositiveThreshold:
		return BandPositive
	case score < NegativeThreshold:
		return BandNegative
	default:
		return BandNeutral
	}
}

// Analyzer scores reviews for one product. Implementations keep no state
// between calls and are safe for concurrent use.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, product string, reviews []string) (*models.SentimentResult, error)
}

type category struct {
	keyword string
	aspects []string
}

// Checked in order; "headphones" must precede "phone" since it contains it.
var categories = []category{
	{keyword: "headphones", aspects: []string{"sound quality", "comfort", "battery", "noise cancellation", "price"}},
	{keyword: "laptop", aspects: []string{"keyboard", "battery", "screen", "performance", "portability"}},
	{keyword: "phone", aspects: []string{"camera", "battery", "display", "performance", "price"}},
}

var defaultAspects = []string{"quality", "price", "design", "functionality", "durability"}

// AspectsFor returns the aspect vocabulary for a product name.
func AspectsFor(product string) []string {
	name := strings.ToLower(product)
	for _, c := range categories {
		if strings.Contains(name, c.keyword) {
			return append([]string(nil), c.aspects...)
		}
	}
	return append([]string(nil), defaultAspects...)
}

// New selects the strategy for cfg: the LLM when an API key is present,
// otherwise the configured offline analyzer.
func New(cfg *config.Config, m *metrics.Metrics) Analyzer {
	var offline Analyzer = NewLexicon()
	if cfg.Analyzer == config.AnalyzerVader {
		offline = NewVader()
	}

	if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
		slog.Debug("no LLM credential, using offline analyzer", slog.String("strategy", offline.Name()))
		return metered{Analyzer: offline, metrics: m}
	}

	clientCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientCfg.BaseURL = cfg.OpenAIBaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.AnalyzeTimeout}

	llm := NewLLM(openai.NewClientWithConfig(clientCfg), cfg.OpenAIModel, offline)
	llm.timeout = cfg.AnalyzeTimeout
	llm.metrics = m
	return llm
}

// metered counts analyses of an offline strategy.
type metered struct {
	Analyzer
	metrics *metrics.Metrics
}

func (a metered) Analyze(ctx context.Context, product string, reviews []string) (*models.SentimentResult, error) {
	result, err := a.Analyzer.Analyze(ctx, product, reviews)
	if err != nil {
		a.metrics.IncAnalysis(a.Name(), "error")
		return nil, err
	}
	a.metrics.IncAnalysis(a.Name(), "ok")
	return result, nil
}

func newResult(product, strategy string, overall float64) *models.SentimentResult {
	return &models.SentimentResult{
		Product:            product,
		PositiveAspects:    []string{},
		NegativeAspects:    []string{},
		NeutralAspects:     []string{},
		OverallSentiment:   clamp01(overall),
		SentimentBreakdown: make(map[string]float64),
		Strategy:           strategy,
	}
}

// addAspect records score for aspect and files it under its band.
func addAspect(r *models.SentimentResult, aspect string, score float64) {
	score = clamp01(score)
	r.SentimentBreakdown[aspect] = score
	switch BandOf(score) {
	case BandPositive:
		r.PositiveAspects = append(r.PositiveAspects, aspect)
	case BandNegative:
		r.NegativeAspects = append(r.NegativeAspects, aspect)
	default:
		r.NeutralAspects = append(r.NeutralAspects, aspect)
	}
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0.5
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
