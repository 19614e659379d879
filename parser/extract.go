package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

// ErrExtractionSkip reports a review block that could not be extracted.
type ErrExtractionSkip struct {
	Index  int
	Reason string
	Err    error
}

func (e ErrExtractionSkip) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction_skip: block %d: %s: %v", e.Index, e.Reason, e.Err)
	}
	return fmt.Sprintf("extraction_skip: block %d: %s", e.Index, e.Reason)
}

func (e ErrExtractionSkip) Unwrap() error {
	return e.Err
}

// Selectors locate review blocks and their fields inside a page.
type Selectors struct {
	Review string
	Text   string
	Rating string
}

// Extractor parses review blocks out of a rendered page.
type Extractor struct {
	sel Selectors
}

// NewExtractor builds an extractor for the given selectors.
func NewExtractor(sel Selectors) *Extractor {
	return &Extractor{sel: sel}
}

// Extract returns one RawReview per well-formed review block under root. Malformed
// blocks are reported as ErrExtractionSkip and do not stop extraction of the rest.
func (x *Extractor) Extract(root *goquery.Selection, sourceURL string) ([]models.RawReview, []error) {
	if root == nil {
		return nil, nil
	}

	blocks := root.Find(x.sel.Review)
	reviews := make([]models.RawReview, 0, blocks.Length())
	var skips []error

	blocks.Each(func(i int, block *goquery.Selection) {
		review, err := x.extractBlock(i, block, sourceURL)
		if err != nil {
			skips = append(skips, err)
			return
		}
		reviews = append(reviews, review)
	})
	return reviews, skips
}

func (x *Extractor) extractBlock(i int, block *goquery.Selection, sourceURL string) (review models.RawReview, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrExtractionSkip{Index: i, Reason: "panic", Err: fmt.Errorf("%v", r)}
		}
	}()

	textNode := block.Find(x.sel.Text)
	if textNode.Length() == 0 {
		return models.RawReview{}, ErrExtractionSkip{Index: i, Reason: "missing text element"}
	}
	text := strings.TrimSpace(textNode.First().Text())
	if text == "" {
		return models.RawReview{}, ErrExtractionSkip{Index: i, Reason: "empty text"}
	}

	ratingText := ""
	if x.sel.Rating != "" {
		ratingNode := block.Find(x.sel.Rating).First()
		ratingText = strings.TrimSpace(ratingNode.Text())
		if ratingText == "" {
			// star-rating markup often carries the value in a class or aria label
			if label, ok := ratingNode.Attr("aria-label"); ok {
				ratingText = strings.TrimSpace(label)
			} else if class, ok := ratingNode.Attr("class"); ok {
				ratingText = class
			}
		}
	}

	return models.RawReview{
		Text:       text,
		RatingText: ratingText,
		SourceURL:  sourceURL,
	}, nil
}
