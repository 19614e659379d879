package config

import (
	"fmt"
	"net/url"
	"time"
)

// Sink names accepted by Config.Sink.
const (
	SinkHTTP     = "http"
	SinkPostgres = "postgres"
	SinkCSV      = "csv"
	SinkJSON     = "json"
	SinkDual     = "dual"
)

// Analyzer names accepted by Config.Analyzer.
const (
	AnalyzerLexicon = "lexicon"
	AnalyzerVader   = "vader"
)

// Config holds scraper, publisher and analyzer configuration.
type Config struct {
	JobsFile string

	// Pagination
	MaxRounds         int
	SettleDelay       time.Duration
	InitialWaitBudget time.Duration
	ReviewCap         int

	// Fetching
	Parallelism     int
	Timeout         time.Duration
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
	Delay           time.Duration
	RandomDelay     time.Duration
	UserAgent       string

	// Extraction selectors
	ReviewSelector string
	TextSelector   string
	RatingSelector string
	NextSelector   string
	ReadySelector  string

	// Publishing
	Sink               string
	PersistenceURL     string
	DatabaseURL        string
	OutputFile         string
	PublishWorkers     int
	PublishRetries     int
	PublishTimeout     time.Duration
	PipelineBufferSize int
	DedupeMaxSize      int

	// Analysis
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	OpenAIModel    string
	AnalyzeTimeout time.Duration
	Analyzer       string

	MetricsAddr string
	Schedule    string
	Verbose     bool
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() *Config {
	return &Config{
		JobsFile:           "products.yaml",
		MaxRounds:          10,
		SettleDelay:        time.Second,
		InitialWaitBudget:  30 * time.Second,
		ReviewCap:          100,
		Parallelism:        4,
		Timeout:            10 * time.Second,
		RetryBackoff:       200 * time.Millisecond,
		RetryBackoffMax:    2 * time.Second,
		UserAgent:          "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		ReviewSelector:     "div[data-review]",
		TextSelector:       ".review-text",
		RatingSelector:     ".review-rating",
		NextSelector:       "a.next",
		ReadySelector:      "div[data-review]",
		Sink:               SinkHTTP,
		PersistenceURL:     "http://127.0.0.1:8000/api",
		OutputFile:         "output/reviews.csv",
		PublishWorkers:     4,
		PublishRetries:     0,
		PublishTimeout:     10 * time.Second,
		PipelineBufferSize: 512,
		DedupeMaxSize:      100000,
		OpenAIModel:        "gpt-3.5-turbo",
		AnalyzeTimeout:     60 * time.Second,
		Analyzer:           AnalyzerLexicon,
		Verbose:            false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.MaxRounds <= 0 {
		return fmt.Errorf("max rounds must be positive")
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("settle delay cannot be negative")
	}
	if c.InitialWaitBudget <= 0 {
		return fmt.Errorf("initial wait budget must be positive")
	}
	if c.ReviewCap <= 0 {
		return fmt.Errorf("review cap must be positive")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.Delay < 0 || c.RandomDelay < 0 {
		return fmt.Errorf("delays cannot be negative")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.ReviewSelector == "" || c.TextSelector == "" {
		return fmt.Errorf("review and text selectors cannot be empty")
	}
	if c.PublishWorkers <= 0 {
		return fmt.Errorf("publish workers must be positive")
	}
	if c.PublishRetries < 0 {
		return fmt.Errorf("publish retries cannot be negative")
	}
	if c.PublishTimeout <= 0 {
		return fmt.Errorf("publish timeout must be positive")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}

	switch c.Sink {
	case SinkHTTP:
		if err := validateURL("persistence URL", c.PersistenceURL); err != nil {
			return err
		}
	case SinkPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database URL cannot be empty for the postgres sink")
		}
	case SinkCSV, SinkJSON, SinkDual:
		if c.OutputFile == "" {
			return fmt.Errorf("output file cannot be empty")
		}
	default:
		return fmt.Errorf("sink must be http, postgres, csv, json, or dual")
	}

	if c.OpenAIBaseURL != "" {
		if err := validateURL("openai base URL", c.OpenAIBaseURL); err != nil {
			return err
		}
	}
	if c.OpenAIModel == "" {
		return fmt.Errorf("openai model cannot be empty")
	}
	if c.AnalyzeTimeout <= 0 {
		return fmt.Errorf("analyze timeout must be positive")
	}
	if c.Analyzer != AnalyzerLexicon && c.Analyzer != AnalyzerVader {
		return fmt.Errorf("analyzer must be lexicon or vader")
	}

	return nil
}

func validateURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}
