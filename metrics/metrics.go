// Package metrics bundles the Prometheus collectors shared by the scraper,
// publisher and analyzers. All methods are safe on a nil receiver.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for one process.
type Metrics struct {
	Registry              *prometheus.Registry
	PagesTotal            prometheus.Counter
	SessionsTotal         *prometheus.CounterVec
	FetchDuration         prometheus.Histogram
	ReviewsExtractedTotal prometheus.Counter
	ExtractionSkipsTotal  prometheus.Counter
	ErrorsTotal           *prometheus.CounterVec
	PublishedTotal        prometheus.Counter
	PublishErrorsTotal    prometheus.Counter
	DuplicatesTotal       prometheus.Counter
	AnalysesTotal         *prometheus.CounterVec
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_pages_total",
			Help: "Total page states fetched by pagination drivers.",
		},
	)
	sessions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_sessions_total",
			Help: "Scrape sessions by terminal state.",
		},
		[]string{"state"},
	)
	fetchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_fetch_duration_seconds",
			Help:    "Latency of page fetches including readiness polling.",
			Buckets: prometheus.DefBuckets,
		},
	)
	extracted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_reviews_extracted_total",
			Help: "Total raw reviews extracted from pages.",
		},
	)
	skips := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_extraction_skips_total",
			Help: "Total malformed review blocks skipped.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of errors by type.",
		},
		[]string{"error_type"},
	)
	published := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "publisher_reviews_published_total",
			Help: "Total reviews accepted by the persistence sink.",
		},
	)
	publishErrors := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "publisher_errors_total",
			Help: "Total reviews that failed to persist.",
		},
	)
	duplicates := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "publisher_duplicates_total",
			Help: "Total reviews suppressed because they were already published in this run.",
		},
	)
	analyses := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentiment_analyses_total",
			Help: "Sentiment analyses by strategy and outcome.",
		},
		[]string{"strategy", "outcome"},
	)

	registry.MustRegister(pages, sessions, fetchDuration, extracted, skips, errorsTotal, published, publishErrors, duplicates, analyses)

	return &Metrics{
		Registry:              registry,
		PagesTotal:            pages,
		SessionsTotal:         sessions,
		FetchDuration:         fetchDuration,
		ReviewsExtractedTotal: extracted,
		ExtractionSkipsTotal:  skips,
		ErrorsTotal:           errorsTotal,
		PublishedTotal:        published,
		PublishErrorsTotal:    publishErrors,
		DuplicatesTotal:       duplicates,
		AnalysesTotal:         analyses,
	}
}

// IncPage increments the pages counter.
func (m *Metrics) IncPage() {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
}

// IncSession records a finished session by its terminal state.
func (m *Metrics) IncSession(state string) {
	if m == nil {
		return
	}
	m.SessionsTotal.WithLabelValues(state).Inc()
}

// ObserveFetch records a fetch duration.
func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

// AddExtracted adds n extracted reviews.
func (m *Metrics) AddExtracted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ReviewsExtractedTotal.Add(float64(n))
}

// AddSkips adds n skipped review blocks.
func (m *Metrics) AddSkips(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ExtractionSkipsTotal.Add(float64(n))
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncPublished increments the published counter.
func (m *Metrics) IncPublished() {
	if m == nil {
		return
	}
	m.PublishedTotal.Inc()
}

// IncPublishError increments the publish error counter.
func (m *Metrics) IncPublishError() {
	if m == nil {
		return
	}
	m.PublishErrorsTotal.Inc()
}

// IncDuplicate increments the suppressed duplicate counter.
func (m *Metrics) IncDuplicate() {
	if m == nil {
		return
	}
	m.DuplicatesTotal.Inc()
}

// IncAnalysis records one analysis outcome for a strategy.
func (m *Metrics) IncAnalysis(strategy, outcome string) {
	if m == nil {
		return
	}
	m.AnalysesTotal.WithLabelValues(strategy, outcome).Inc()
}
