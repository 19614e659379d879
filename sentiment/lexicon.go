package sentiment

import (
	"context"
	"math/rand/v2"
	"strings"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

var (
	positiveWords = []string{"great", "good", "excellent", "amazing", "love", "best", "perfect"}
	negativeWords = []string{"bad", "poor", "terrible", "worst", "hate", "disappointing", "failure"}
)

// jitter is the full width of the noise applied to per-aspect scores.
const jitter = 0.2

// Lexicon is the deterministic offline strategy: word-list polarity for the
// overall score and a category aspect vocabulary with bounded jitter.
type Lexicon struct {
	rand func() float64
}

// NewLexicon returns a lexicon analyzer using a process-wide random source.
func NewLexicon() *Lexicon {
	return &Lexicon{rand: rand.Float64}
}

func (l *Lexicon) Name() string { return "lexicon" }

// Analyze never fails except on a canceled context.
func (l *Lexicon) Analyze(ctx context.Context, product string, reviews []string) (*models.SentimentResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	positive, negative := CountHits(reviews)
	overall := Overall(positive, negative)

	result := newResult(product, l.Name(), overall)
	for _, aspect := range AspectsFor(product) {
		addAspect(result, aspect, overall+(l.rand()-0.5)*jitter)
	}
	return result, nil
}

// CountHits counts reviews that contain any positive and any negative lexicon
// word, case-insensitively. A review adds at most one hit to each side.
func CountHits(reviews []string) (positive, negative int) {
	for _, review := range reviews {
		text := strings.ToLower(review)
		if containsAny(text, positiveWords) {
			positive++
		}
		if containsAny(text, negativeWords) {
			negative++
		}
	}
	return positive, negative
}

// Overall is positive/(positive+negative), or 0.5 when both are zero.
func Overall(positive, negative int) float64 {
	total := positive + negative
	if total == 0 {
		return 0.5
	}
	return float64(positive) / float64(total)
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
