package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

// ValidateReview ensures a normalized review carries the fields the persistence
// service requires.
func ValidateReview(r *models.NormalizedReview) error {
	if r == nil {
		return fmt.Errorf("review is nil")
	}
	if strings.TrimSpace(r.Text) == "" {
		return fmt.Errorf("review missing text")
	}
	if strings.TrimSpace(r.ProductName) == "" {
		return fmt.Errorf("review missing product name")
	}
	if r.Fingerprint == "" {
		return fmt.Errorf("review missing fingerprint for %s", r.ProductName)
	}
	if r.Rating != nil && (*r.Rating < 1 || *r.Rating > 5) {
		return fmt.Errorf("review rating %d out of range for %s", *r.Rating, r.ProductName)
	}
	return nil
}

// CanonicalText lower-cases text and collapses whitespace runs to single spaces.
func CanonicalText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Fingerprint returns the hex SHA-256 of the canonical form of text.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(CanonicalText(text)))
	return hex.EncodeToString(sum[:])
}

// Normalize trims, rates and fingerprints raw reviews for productName, dropping
// empty entries and any review whose fingerprint already appeared earlier in the
// batch. Output order follows input order.
func Normalize(raw []models.RawReview, productName string) []*models.NormalizedReview {
	productName = strings.TrimSpace(productName)
	out := make([]*models.NormalizedReview, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))

	for _, r := range raw {
		text := strings.TrimSpace(r.Text)
		if text == "" {
			continue
		}

		var rating *int
		if v, ok := ParseRating(r.RatingText); ok {
			rating = models.IntPtr(v)
		}
		if rest, v, ok := SplitEmbeddedRating(text); ok {
			text = rest
			if rating == nil {
				rating = models.IntPtr(v)
			}
		}
		if text == "" {
			continue
		}

		fp := Fingerprint(text)
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}

		out = append(out, &models.NormalizedReview{
			Text:        text,
			Rating:      rating,
			ProductName: productName,
			Fingerprint: fp,
		})
	}
	return out
}
