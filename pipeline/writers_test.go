package pipeline

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/models"
)

func TestCSVWriterPublish(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reviews.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}

	ctx := context.Background()
	if err := writer.Publish(ctx, review("TestPhone X", "Great camera", 5)); err != nil {
		t.Fatalf("publish csv: %v", err)
	}
	if err := writer.Publish(ctx, review("TestPhone X", "It's okay", 0)); err != nil {
		t.Fatalf("publish csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records=%d, want 3", len(records))
	}
	if records[0][0] != "product_name" || records[0][1] != "review" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if records[1][2] != "5" || records[2][2] != "" {
		t.Fatalf("ratings = %q/%q, want 5 and empty", records[1][2], records[2][2])
	}
}

func TestJSONWriterPublish(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reviews.jsonl")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}

	if err := writer.Publish(context.Background(), review("TestPhone X", "Terrible battery life", 1)); err != nil {
		t.Fatalf("publish json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	count := 0
	for scanner.Scan() {
		var decoded models.NormalizedReview
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid json line: %v", err)
		}
		if decoded.ProductName != "TestPhone X" || decoded.Rating == nil || *decoded.Rating != 1 {
			t.Fatalf("decoded = %+v", decoded)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan json: %v", err)
	}
	if count != 1 {
		t.Fatalf("json lines=%d, want 1", count)
	}
}

func TestWriterPublishCanceled(t *testing.T) {
	writer, err := NewJSONWriter(filepath.Join(t.TempDir(), "reviews.jsonl"))
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	defer writer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := writer.Publish(ctx, review("P1", "late", 0)); err == nil {
		t.Fatalf("expected error publishing with canceled context")
	}
}

func TestNewFilePublisherDual(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out", "reviews.csv")

	pub, err := NewFilePublisher(config.SinkDual, csvPath)
	if err != nil {
		t.Fatalf("create dual publisher: %v", err)
	}
	if err := pub.Publish(context.Background(), review("P1", "Solid build", 4)); err != nil {
		t.Fatalf("publish dual: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("close dual: %v", err)
	}

	if info, err := os.Stat(csvPath); err != nil || info.Size() == 0 {
		t.Fatalf("csv file missing or empty")
	}
	if info, err := os.Stat(filepath.Join(dir, "out", "reviews.jsonl")); err != nil || info.Size() == 0 {
		t.Fatalf("json file missing or empty")
	}

	if _, err := NewFilePublisher("http", csvPath); err == nil {
		t.Fatalf("expected error for non-file sink")
	}
}
