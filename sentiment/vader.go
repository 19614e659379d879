package sentiment

import (
	"context"
	"strings"

	"github.com/jonreiter/govader"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

// Vader scores reviews with the VADER rule-based model. Compound scores in
// [-1, 1] are mapped onto [0, 1].
type Vader struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

func NewVader() *Vader {
	return &Vader{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

func (v *Vader) Name() string { return "vader" }

// Analyze averages review scores overall and, per aspect, over the reviews
// mentioning that aspect. Aspects no review mentions take the overall score.
func (v *Vader) Analyze(ctx context.Context, product string, reviews []string) (*models.SentimentResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scores := make([]float64, len(reviews))
	lowered := make([]string, len(reviews))
	sum := 0.0
	for i, review := range reviews {
		scores[i] = (v.analyzer.PolarityScores(review).Compound + 1) / 2
		lowered[i] = strings.ToLower(review)
		sum += scores[i]
	}

	overall := 0.5
	if len(reviews) > 0 {
		overall = sum / float64(len(reviews))
	}

	result := newResult(product, v.Name(), overall)
	for _, aspect := range AspectsFor(product) {
		total, n := 0.0, 0
		for i, text := range lowered {
			if strings.Contains(text, aspect) {
				total += scores[i]
				n++
			}
		}
		score := overall
		if n > 0 {
			score = total / float64(n)
		}
		addAspect(result, aspect, score)
	}
	return result, nil
}
