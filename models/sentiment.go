package models

// SentimentResult is the aspect-level analysis of a product's reviews.
type SentimentResult struct {
	Product            string             `json:"product"`
	PositiveAspects    []string           `json:"positiveAspects"`
	NegativeAspects    []string           `json:"negativeAspects"`
	NeutralAspects     []string           `json:"neutralAspects"`
	OverallSentiment   float64            `json:"overallSentiment"`
	SentimentBreakdown map[string]float64 `json:"sentimentBreakdown"`
	Strategy           string             `json:"-"`
}

// ProductStat is the rating-derived summary of one product.
type ProductStat struct {
	Name          string  `json:"name"`
	ReviewCount   int     `json:"reviewCount"`
	AverageRating float64 `json:"averageRating"`
	Sentiment     float64 `json:"sentiment"`
}

// Stats are the dashboard counters over the full review set.
type Stats struct {
	TotalReviews    int `json:"totalReviews"`
	TotalProducts   int `json:"totalProducts"`
	PositiveReviews int `json:"positiveReviews"`
	NegativeReviews int `json:"negativeReviews"`
}

// Product is a distinct product name with its 1-based listing id.
type Product struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}
