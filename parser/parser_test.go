package parser

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

func TestValidateReview(t *testing.T) {
	tests := []struct {
		name    string
		review  *models.NormalizedReview
		wantErr bool
	}{
		{
			name: "valid review",
			review: &models.NormalizedReview{
				Text:        "Great camera",
				Rating:      models.IntPtr(5),
				ProductName: "TestPhone X",
				Fingerprint: Fingerprint("Great camera"),
			},
			wantErr: false,
		},
		{
			name: "unrated review",
			review: &models.NormalizedReview{
				Text:        "Great camera",
				ProductName: "TestPhone X",
				Fingerprint: Fingerprint("Great camera"),
			},
			wantErr: false,
		},
		{
			name:    "nil review",
			review:  nil,
			wantErr: true,
		},
		{
			name: "missing text",
			review: &models.NormalizedReview{
				Text:        "  ",
				ProductName: "TestPhone X",
				Fingerprint: "abc",
			},
			wantErr: true,
		},
		{
			name: "missing product",
			review: &models.NormalizedReview{
				Text:        "Fine",
				Fingerprint: "abc",
			},
			wantErr: true,
		},
		{
			name: "rating out of range",
			review: &models.NormalizedReview{
				Text:        "Fine",
				Rating:      models.IntPtr(6),
				ProductName: "TestPhone X",
				Fingerprint: "abc",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateReview(tt.review)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateReview() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseRating(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   int
		wantOK bool
	}{
		{name: "amazon out of five", input: "4.0 out of 5 stars", want: 4, wantOK: true},
		{name: "slash five", input: "3/5", want: 3, wantOK: true},
		{name: "prefixed slash five", input: "Rating: 4/5", want: 4, wantOK: true},
		{name: "prefixed out of five", input: "Rated 2 out of 5", want: 2, wantOK: true},
		{name: "prefixed of five", input: "Score 1 of 5", want: 1, wantOK: true},
		{name: "decimal scale", input: "Customer rating 3.5 out of 5.0", want: 4, wantOK: true},
		{name: "of fifty is not a scale", input: "Review 2 of 50", wantOK: false},
		{name: "bare digit", input: "5", want: 5, wantOK: true},
		{name: "digit and star", input: "5★", want: 5, wantOK: true},
		{name: "star glyphs", input: "★★★☆☆", want: 3, wantOK: true},
		{name: "trailing number", input: "Rating: 2", want: 2, wantOK: true},
		{name: "rounded", input: "4.6", want: 5, wantOK: true},
		{name: "comma decimal", input: "3,8 von 5", want: 4, wantOK: true},
		{name: "class word", input: "review-rating star-rating Four", want: 4, wantOK: true},
		{name: "out of range", input: "10", wantOK: false},
		{name: "zero", input: "0 stars", wantOK: false},
		{name: "too many stars", input: "★★★★★★", wantOK: false},
		{name: "empty", input: "", wantOK: false},
		{name: "no rating", input: "helpful", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseRating(tt.input)
			if ok != tt.wantOK || (ok && got != tt.want) {
				t.Errorf("ParseRating(%q) = %d, %v, want %d, %v", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestRatingToNumeric(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{input: "One", expected: 1},
		{input: "Two", expected: 2},
		{input: "Three", expected: 3},
		{input: "Four", expected: 4},
		{input: "Five", expected: 5},
		{input: "Zero", expected: 0},
		{input: "three", expected: 0},
		{input: "", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := RatingToNumeric(tt.input); got != tt.expected {
				t.Errorf("RatingToNumeric(%q) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSplitEmbeddedRating(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantText string
		want     int
		wantOK   bool
	}{
		{name: "leading digit star", input: "5★ Great phone", wantText: "Great phone", want: 5, wantOK: true},
		{name: "leading no space", input: "4★Nice", wantText: "Nice", want: 4, wantOK: true},
		{name: "trailing glyphs", input: "Decent battery ★★★☆☆", wantText: "Decent battery", want: 3, wantOK: true},
		{name: "plain text", input: "Lasted 2 weeks", wantText: "Lasted 2 weeks", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, got, ok := SplitEmbeddedRating(tt.input)
			if text != tt.wantText || ok != tt.wantOK || (ok && got != tt.want) {
				t.Errorf("SplitEmbeddedRating(%q) = %q, %d, %v", tt.input, text, got, ok)
			}
		})
	}
}

func TestFingerprintCanonical(t *testing.T) {
	a := Fingerprint("Great   Camera,\n love it")
	b := Fingerprint("great camera, love it")
	if a != b {
		t.Fatalf("fingerprints differ for equivalent text")
	}
	if a == Fingerprint("great camera") {
		t.Fatalf("fingerprints collide for different text")
	}
	if len(a) != 64 {
		t.Fatalf("fingerprint length = %d, want 64 hex chars", len(a))
	}
}

func TestNormalize(t *testing.T) {
	raw := []models.RawReview{
		{Text: "  Great camera, love it  ", RatingText: "5.0 out of 5 stars"},
		{Text: "   "},
		{Text: "GREAT camera,   love it", RatingText: "1"},
		{Text: "Terrible battery life", RatingText: "★☆☆☆☆"},
		{Text: "4★ It's okay"},
		{Text: "No rating here"},
	}

	got := Normalize(raw, " TestPhone X ")
	if len(got) != 4 {
		t.Fatalf("normalized = %d, want 4", len(got))
	}

	wantTexts := []string{"Great camera, love it", "Terrible battery life", "It's okay", "No rating here"}
	wantRatings := []int{5, 1, 4, 0}
	for i, r := range got {
		if r.Text != wantTexts[i] {
			t.Errorf("review %d text = %q, want %q", i, r.Text, wantTexts[i])
		}
		if r.ProductName != "TestPhone X" {
			t.Errorf("review %d product = %q", i, r.ProductName)
		}
		if wantRatings[i] == 0 {
			if r.Rating != nil {
				t.Errorf("review %d rating = %d, want nil", i, *r.Rating)
			}
		} else if r.Rating == nil || *r.Rating != wantRatings[i] {
			t.Errorf("review %d rating = %v, want %d", i, r.Rating, wantRatings[i])
		}
		if err := ValidateReview(r); err != nil {
			t.Errorf("review %d invalid: %v", i, err)
		}
	}
}

func TestNormalizeUniqueFingerprints(t *testing.T) {
	raw := []models.RawReview{
		{Text: "Same text"},
		{Text: "same   TEXT"},
		{Text: "Other"},
		{Text: "same text "},
	}
	got := Normalize(raw, "P1")
	seen := map[string]bool{}
	for _, r := range got {
		if seen[r.Fingerprint] {
			t.Fatalf("duplicate fingerprint %s in output", r.Fingerprint)
		}
		seen[r.Fingerprint] = true
	}
	if len(got) != 2 || got[0].Text != "Same text" || got[1].Text != "Other" {
		t.Fatalf("first occurrence should win in order, got %+v", got)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	raw := []models.RawReview{
		{Text: "Great", RatingText: "5"},
		{Text: "great"},
		{Text: "Bad", RatingText: "★★☆☆☆"},
	}
	first := Normalize(raw, "P")
	second := Normalize(raw, "P")
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("normalize not idempotent:\n%+v\n%+v", first, second)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	if got := Normalize(nil, "P"); len(got) != 0 {
		t.Fatalf("normalize(nil) = %d reviews, want 0", len(got))
	}
}

func TestExtractorSkipsMalformedBlocks(t *testing.T) {
	html := `<html><body>
<div data-review><p class="review-text">Great camera</p><span class="review-rating">5 out of 5</span></div>
<div data-review><span class="review-rating">4</span></div>
<div data-review><p class="review-text">   </p></div>
<div data-review><p class="review-text">Battery dies fast</p><i class="review-rating star-rating Two"></i></div>
<div data-review><p class="review-text">Okay</p></div>
</body></html>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}

	x := NewExtractor(Selectors{Review: "div[data-review]", Text: ".review-text", Rating: ".review-rating"})
	reviews, skips := x.Extract(doc.Selection, "http://example.test/p")

	if len(reviews) != 3 {
		t.Fatalf("reviews = %d, want 3", len(reviews))
	}
	if len(skips) != 2 {
		t.Fatalf("skips = %d, want 2", len(skips))
	}
	for _, err := range skips {
		var skip ErrExtractionSkip
		if !errors.As(err, &skip) {
			t.Fatalf("skip error %v is not ErrExtractionSkip", err)
		}
	}
	if reviews[0].RatingText != "5 out of 5" || reviews[0].SourceURL != "http://example.test/p" {
		t.Fatalf("unexpected first review %+v", reviews[0])
	}
	if v, ok := ParseRating(reviews[1].RatingText); !ok || v != 2 {
		t.Fatalf("class rating = %q, want Two", reviews[1].RatingText)
	}
	if reviews[2].RatingText != "" {
		t.Fatalf("unrated review rating text = %q", reviews[2].RatingText)
	}
}

func TestExtractorNilRoot(t *testing.T) {
	x := NewExtractor(Selectors{Review: "div", Text: "p"})
	reviews, skips := x.Extract(nil, "")
	if reviews != nil || skips != nil {
		t.Fatalf("expected nothing from nil root")
	}
}
