// Package aggregate derives dashboard statistics and product listings from the
// full set of stored reviews.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

// DefaultTopLimit is the number of products TopProducts returns when limit <= 0.
const DefaultTopLimit = 5

var (
	ErrProductNotFound = errors.New("product not found")
	ErrNoReviewsFound  = errors.New("no reviews found for this product")
)

// ReviewSource lists stored reviews whose product contains search. An empty
// search lists everything.
type ReviewSource interface {
	ListReviews(ctx context.Context, search string) ([]models.StoredReview, error)
}

// Load fetches every stored review from src.
func Load(ctx context.Context, src ReviewSource) ([]models.StoredReview, error) {
	reviews, err := src.ListReviews(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, nil
}

// ComputeStats counts reviews, distinct products and rating polarity.
// Ratings >= 4 are positive and <= 2 negative; unrated reviews are neither.
func ComputeStats(reviews []models.StoredReview) models.Stats {
	stats := models.Stats{TotalReviews: len(reviews)}
	seen := make(map[string]struct{})
	for _, r := range reviews {
		seen[r.Product] = struct{}{}
		if r.Rating == nil {
			continue
		}
		switch {
		case *r.Rating >= 4:
			stats.PositiveReviews++
		case *r.Rating <= 2:
			stats.NegativeReviews++
		}
	}
	stats.TotalProducts = len(seen)
	return stats
}

type productTotals struct {
	name      string
	count     int
	rated     int
	ratingSum int
}

// TopProducts ranks products by review count, descending. Equal counts keep
// the order in which the products first appear in reviews.
func TopProducts(reviews []models.StoredReview, limit int) []models.ProductStat {
	if limit <= 0 {
		limit = DefaultTopLimit
	}

	index := make(map[string]int)
	var totals []*productTotals
	for _, r := range reviews {
		i, ok := index[r.Product]
		if !ok {
			i = len(totals)
			index[r.Product] = i
			totals = append(totals, &productTotals{name: r.Product})
		}
		t := totals[i]
		t.count++
		if r.Rating != nil {
			t.rated++
			t.ratingSum += *r.Rating
		}
	}

	sort.SliceStable(totals, func(a, b int) bool {
		return totals[a].count > totals[b].count
	})

	stats := make([]models.ProductStat, 0, min(limit, len(totals)))
	for _, t := range totals {
		if len(stats) == limit {
			break
		}
		avg := 0.0
		if t.rated > 0 {
			avg = float64(t.ratingSum) / float64(t.rated)
		}
		stats = append(stats, models.ProductStat{
			Name:          t.name,
			ReviewCount:   t.count,
			AverageRating: avg,
			Sentiment:     min(1.0, max(0.0, avg/5.0)),
		})
	}
	return stats
}

// Products lists distinct product names with 1-based ids in first-appearance order.
func Products(reviews []models.StoredReview) []models.Product {
	products := []models.Product{}
	seen := make(map[string]struct{})
	for _, r := range reviews {
		if _, ok := seen[r.Product]; ok {
			continue
		}
		seen[r.Product] = struct{}{}
		products = append(products, models.Product{ID: len(products) + 1, Name: r.Product})
	}
	return products
}

// Resolve finds a product by numeric id or exact name, case-insensitively.
func Resolve(products []models.Product, idOrName string) (models.Product, error) {
	key := strings.TrimSpace(idOrName)
	if id, err := strconv.Atoi(key); err == nil {
		if id >= 1 && id <= len(products) {
			return products[id-1], nil
		}
		return models.Product{}, fmt.Errorf("%w: id %d", ErrProductNotFound, id)
	}
	for _, p := range products {
		if strings.EqualFold(p.Name, key) {
			return p, nil
		}
	}
	return models.Product{}, fmt.Errorf("%w: %q", ErrProductNotFound, key)
}

// ReviewsFor returns the texts of the reviews stored for product.
func ReviewsFor(reviews []models.StoredReview, product string) ([]string, error) {
	var texts []string
	for _, r := range reviews {
		if r.Product == product {
			texts = append(texts, r.Review)
		}
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoReviewsFound, product)
	}
	return texts, nil
}
