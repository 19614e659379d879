package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/models"
)

// DualWriter publishes every review to both a CSV and a JSONL file.
type DualWriter struct {
	csvWriter  *CSVWriter
	jsonWriter *JSONWriter
	mu         sync.Mutex
}

// NewDualWriter opens both output files.
func NewDualWriter(csvFilename, jsonFilename string) (*DualWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, fmt.Errorf("create csv writer: %w", err)
	}

	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		csvWriter.Close()
		return nil, fmt.Errorf("create json writer: %w", err)
	}

	return &DualWriter{
		csvWriter:  csvWriter,
		jsonWriter: jsonWriter,
	}, nil
}

// Publish writes the review to both outputs.
func (dw *DualWriter) Publish(ctx context.Context, review *models.NormalizedReview) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if err := dw.csvWriter.Publish(ctx, review); err != nil {
		return fmt.Errorf("csv: %w", err)
	}
	if err := dw.jsonWriter.Publish(ctx, review); err != nil {
		return fmt.Errorf("json: %w", err)
	}
	return nil
}

// Close closes both writers.
func (dw *DualWriter) Close() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	var errs []error
	if err := dw.csvWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("csv close: %w", err))
	}
	if err := dw.jsonWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("json close: %w", err))
	}
	return errors.Join(errs...)
}

// Validate validates both output files.
func (dw *DualWriter) Validate() error {
	var errs []error
	if err := dw.csvWriter.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("csv: %w", err))
	}
	if err := dw.jsonWriter.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("json: %w", err))
	}
	return errors.Join(errs...)
}

// NewFilePublisher opens the file sink named by sink, writing to output. The
// dual sink writes output plus a sibling .jsonl file.
func NewFilePublisher(sink, output string) (Publisher, error) {
	var (
		pub Publisher
		err error
	)
	switch sink {
	case config.SinkCSV:
		pub, err = NewCSVWriter(output)
	case config.SinkJSON:
		pub, err = NewJSONWriter(output)
	case config.SinkDual:
		pub, err = NewDualWriter(output, jsonSibling(output))
	default:
		return nil, fmt.Errorf("unknown file sink %q", sink)
	}
	if err != nil {
		return nil, err
	}
	return pub, nil
}

func jsonSibling(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".jsonl"
}
