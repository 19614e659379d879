package store

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-reviews/models"
	"github.com/aluiziolira/go-scrape-reviews/parser"
)

// Runs only against a disposable database named by REVIEWS_TEST_DATABASE_URL.
func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("REVIEWS_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("REVIEWS_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pg, err := OpenPostgres(ctx, dsn, 2)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer pg.Close()

	if err := pg.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}

	product := fmt.Sprintf("TestPhone %d", time.Now().UnixNano())
	review := &models.NormalizedReview{
		Text:        "Great camera",
		Rating:      models.IntPtr(5),
		ProductName: product,
		Fingerprint: parser.Fingerprint("Great camera"),
	}
	for i := 0; i < 2; i++ {
		if err := pg.Publish(ctx, review); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	unrated := &models.NormalizedReview{Text: "It's okay", ProductName: product, Fingerprint: parser.Fingerprint("It's okay")}
	if err := pg.Publish(ctx, unrated); err != nil {
		t.Fatalf("publish unrated: %v", err)
	}

	got, err := pg.ListReviews(ctx, product)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("reviews = %d, want 2 (duplicate ignored)", len(got))
	}
	if got[0].Rating == nil || *got[0].Rating != 5 || got[1].Rating != nil {
		t.Fatalf("unexpected ratings %+v", got)
	}
}

func TestConnectFreshDatabaseReadsEmpty(t *testing.T) {
	dsn := os.Getenv("REVIEWS_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("REVIEWS_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	admin, err := OpenPostgres(ctx, dsn, 1)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer admin.Close()

	schema := fmt.Sprintf("reviews_fresh_%d", time.Now().UnixNano())
	if _, err := admin.pool.Exec(ctx, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	defer admin.pool.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")

	pg, err := Connect(ctx, withSearchPath(dsn, schema), 1)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pg.Close()

	got, err := pg.ListReviews(ctx, "")
	if err != nil {
		t.Fatalf("list on fresh database: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("reviews = %d, want 0", len(got))
	}
}

func withSearchPath(dsn, schema string) string {
	if !strings.Contains(dsn, "://") {
		return dsn + " search_path=" + schema
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "search_path=" + schema
}
