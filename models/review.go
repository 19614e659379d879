// Package models defines data structures shared by the scraper, publisher and analyzers.
package models

import "time"

// RawReview is a review block as extracted from a listing page.
type RawReview struct {
	Text       string
	RatingText string
	SourceURL  string
}

// NormalizedReview is a cleaned review ready to be published.
type NormalizedReview struct {
	Text        string `csv:"review" json:"review"`
	Rating      *int   `csv:"rating" json:"rating"`
	ProductName string `csv:"product_name" json:"product_name"`
	Fingerprint string `csv:"fingerprint" json:"fingerprint"`
}

// StoredReview is a review as returned by the persistence service.
type StoredReview struct {
	ID        int       `json:"id"`
	Product   string    `json:"product"`
	Review    string    `json:"review"`
	Rating    *int      `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
}

// ScrapeSession tracks one product scrape from first fetch to publish.
type ScrapeSession struct {
	ID                    string
	ProductName           string
	URL                   string
	PagesVisited          int
	LastPageHeightOrCount int
	StartedAt             time.Time
	Raw                   []RawReview
	Reviews               []*NormalizedReview
	Skipped               int
	StopReason            string
}

// SessionResult is the outcome of one product in a run.
type SessionResult struct {
	ProductName  string
	URL          string
	PagesVisited int
	RawCount     int
	ReviewCount  int
	Skipped      int
	StopReason   string
	Err          error
}

// RunResult holds the overall result of a scrape run.
type RunResult struct {
	Sessions       []SessionResult
	StartTime      time.Time
	EndTime        time.Time
	TotalReviews   int
	PageCount      int
	ErrorCount     int
	FailedProducts []string
	ErrorsByType   map[string]int
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
