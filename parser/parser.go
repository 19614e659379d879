// Package parser turns listing markup into raw reviews and raw reviews into
// normalized, de-duplicated records.
package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	filledStar = '★'
	emptyStar  = '☆'
)

var (
	leadingNumber  = regexp.MustCompile(`^\s*(\d+(?:[.,]\d+)?)`)
	trailingNumber = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*$`)
	outOfFive      = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(?:out of|of|/)\s*5(?:[.,]0+)?\b`)

	// "5★ Great phone" or "Great phone ★★★★☆"
	leadingStarToken  = regexp.MustCompile(`^\s*(\d\s*★|[★☆]+)\s*`)
	trailingStarToken = regexp.MustCompile(`\s*(\d\s*★|[★☆]+)\s*$`)
)

// RatingToNumeric converts the textual rating to a numeric scale.
func RatingToNumeric(rating string) int {
	switch strings.TrimSpace(rating) {
	case "One":
		return 1
	case "Two":
		return 2
	case "Three":
		return 3
	case "Four":
		return 4
	case "Five":
		return 5
	default:
		return 0
	}
}

// ParseRating extracts a 1..5 rating from rating text such as "4.0 out of 5 stars",
// "Rated 2 out of 5", "Rating: 4/5", "★★★☆☆", "5★", "Rating: 4" or a star-rating
// class word ("star-rating Four"). An "N out of 5" anywhere in the text wins over
// other numbers.
func ParseRating(text string) (int, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}

	if m := outOfFive.FindStringSubmatch(text); m != nil {
		return numericRating(m[1])
	}
	if strings.ContainsRune(text, filledStar) || strings.ContainsRune(text, emptyStar) {
		if m := leadingNumber.FindStringSubmatch(text); m != nil {
			return numericRating(m[1])
		}
		return starRating(text)
	}
	if m := leadingNumber.FindStringSubmatch(text); m != nil {
		return numericRating(m[1])
	}
	if m := trailingNumber.FindStringSubmatch(text); m != nil {
		return numericRating(m[1])
	}
	for _, field := range strings.Fields(text) {
		if v := RatingToNumeric(field); v > 0 {
			return v, true
		}
	}
	return 0, false
}

// SplitEmbeddedRating detects a star-glyph rating at the start or end of a review
// body, returning the remaining text and the rating.
func SplitEmbeddedRating(text string) (string, int, bool) {
	for _, re := range []*regexp.Regexp{leadingStarToken, trailingStarToken} {
		loc := re.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		token := text[loc[2]:loc[3]]
		rating, ok := ParseRating(token)
		if !ok {
			continue
		}
		rest := strings.TrimSpace(text[:loc[0]] + " " + text[loc[1]:])
		return rest, rating, true
	}
	return text, 0, false
}

func numericRating(raw string) (int, bool) {
	value, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
	if err != nil {
		return 0, false
	}
	rating := int(math.Round(value))
	if rating < 1 || rating > 5 {
		return 0, false
	}
	return rating, true
}

func starRating(text string) (int, bool) {
	filled := strings.Count(text, string(filledStar))
	total := filled + strings.Count(text, string(emptyStar))
	if filled < 1 || filled > 5 || total > 5 {
		return 0, false
	}
	return filled, true
}
