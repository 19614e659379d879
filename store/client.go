// Package store talks to the review persistence service.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/models"
)

const reviewsPath = "/reviews/"

// StatusError is a non-2xx answer from the persistence service.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Client is an HTTP client for the persistence service's create/list contract.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
}

// NewClient builds a client from cfg. Retries follow cfg.PublishRetries.
func NewClient(cfg *config.Config) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.PublishRetries
	rc.RetryWaitMin = cfg.RetryBackoff
	rc.RetryWaitMax = cfg.RetryBackoffMax
	rc.HTTPClient.Timeout = cfg.PublishTimeout
	rc.Logger = slog.Default()
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL: strings.TrimRight(cfg.PersistenceURL, "/"),
		http:    rc,
	}
}

// WithTransport replaces the HTTP transport.
func (c *Client) WithTransport(rt http.RoundTripper) {
	c.http.HTTPClient.Transport = rt
}

type createReviewRequest struct {
	ProductName string `json:"product_name"`
	Review      string `json:"review"`
	Rating      *int   `json:"rating"`
}

// Publish creates one review on the persistence service.
func (c *Client) Publish(ctx context.Context, review *models.NormalizedReview) error {
	payload, err := json.Marshal(createReviewRequest{
		ProductName: review.ProductName,
		Review:      review.Text,
		Rating:      review.Rating,
	})
	if err != nil {
		return fmt.Errorf("encode review: %w", err)
	}

	endpoint := c.baseURL + reviewsPath
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post review: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(http.MethodPost, endpoint, resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// ListReviews returns stored reviews whose product contains search. An empty
// search lists everything.
func (c *Client) ListReviews(ctx context.Context, search string) ([]models.StoredReview, error) {
	endpoint := c.baseURL + reviewsPath
	if search != "" {
		endpoint += "?" + url.Values{"search": {search}}.Encode()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(http.MethodGet, endpoint, resp)
	}

	var reviews []models.StoredReview
	if err := json.NewDecoder(resp.Body).Decode(&reviews); err != nil {
		return nil, fmt.Errorf("decode reviews: %w", err)
	}
	slog.Debug("listed reviews",
		slog.String("search", search),
		slog.Int("count", len(reviews)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return reviews, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.HTTPClient.CloseIdleConnections()
	return nil
}

func statusError(method, endpoint string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return StatusError{
		Method:     method,
		URL:        endpoint,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}
