package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads variables from the given files into the process environment.
// Missing files are ignored; existing variables are not overridden.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// EnvString returns the trimmed value of key and whether it was set.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}

// EnvDuration parses key as a Go duration string.
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}

// ApplyEnv overrides cfg fields from the environment.
func ApplyEnv(cfg *Config) error {
	strs := map[string]*string{
		"REVIEWS_JOBS_FILE":       &cfg.JobsFile,
		"REVIEWS_SINK":            &cfg.Sink,
		"REVIEWS_PERSISTENCE_URL": &cfg.PersistenceURL,
		"REVIEWS_OUTPUT":          &cfg.OutputFile,
		"REVIEWS_METRICS_ADDR":    &cfg.MetricsAddr,
		"REVIEWS_SCHEDULE":        &cfg.Schedule,
		"REVIEWS_ANALYZER":        &cfg.Analyzer,
		"DATABASE_URL":            &cfg.DatabaseURL,
		"OPENAI_API_KEY":          &cfg.OpenAIAPIKey,
		"OPENAI_BASE_URL":         &cfg.OpenAIBaseURL,
		"OPENAI_MODEL":            &cfg.OpenAIModel,
	}
	for key, dst := range strs {
		if value, ok := EnvString(key); ok {
			*dst = value
		}
	}

	ints := map[string]*int{
		"REVIEWS_MAX_ROUNDS":      &cfg.MaxRounds,
		"REVIEWS_REVIEW_CAP":      &cfg.ReviewCap,
		"REVIEWS_PARALLEL":        &cfg.Parallelism,
		"REVIEWS_PUBLISH_WORKERS": &cfg.PublishWorkers,
		"REVIEWS_PUBLISH_RETRIES": &cfg.PublishRetries,
	}
	for key, dst := range ints {
		value, ok, err := EnvInt(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = value
		}
	}

	durations := map[string]*time.Duration{
		"REVIEWS_SETTLE_DELAY":    &cfg.SettleDelay,
		"REVIEWS_WAIT_BUDGET":     &cfg.InitialWaitBudget,
		"REVIEWS_TIMEOUT":         &cfg.Timeout,
		"REVIEWS_DELAY":           &cfg.Delay,
		"REVIEWS_RANDOM_DELAY":    &cfg.RandomDelay,
		"REVIEWS_ANALYZE_TIMEOUT": &cfg.AnalyzeTimeout,
	}
	for key, dst := range durations {
		value, ok, err := EnvDuration(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = value
		}
	}
	return nil
}
