package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS reviews (
	id          BIGSERIAL PRIMARY KEY,
	product     TEXT        NOT NULL,
	review      TEXT        NOT NULL,
	rating      SMALLINT    CHECK (rating BETWEEN 1 AND 5),
	fingerprint TEXT        NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (product, fingerprint)
)`

// Postgres stores reviews directly in a PostgreSQL table.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects a pool to dsn.
func OpenPostgres(ctx context.Context, dsn string, maxConns int) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 2
	}
	cfg.MaxConns = int32(maxConns)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Connect opens a pool to dsn and makes sure the reviews table exists, so a
// fresh database reads as empty instead of failing.
func Connect(ctx context.Context, dsn string, maxConns int) (*Postgres, error) {
	pg, err := OpenPostgres(ctx, dsn, maxConns)
	if err != nil {
		return nil, err
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, err
	}
	return pg, nil
}

// EnsureSchema creates the reviews table when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Publish inserts one review. A review already stored for the product is left as is.
func (p *Postgres) Publish(ctx context.Context, review *models.NormalizedReview) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO reviews (product, review, rating, fingerprint)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (product, fingerprint) DO NOTHING`,
		review.ProductName, review.Text, review.Rating, review.Fingerprint,
	)
	if err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

// ListReviews returns reviews whose product contains search, oldest first.
func (p *Postgres) ListReviews(ctx context.Context, search string) ([]models.StoredReview, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, product, review, rating, created_at
		FROM reviews
		WHERE $1 = '' OR product ILIKE '%' || $1 || '%'
		ORDER BY id`,
		search,
	)
	if err != nil {
		return nil, fmt.Errorf("query reviews: %w", err)
	}

	reviews, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.StoredReview, error) {
		var r models.StoredReview
		err := row.Scan(&r.ID, &r.Product, &r.Review, &r.Rating, &r.CreatedAt)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan reviews: %w", err)
	}
	return reviews, nil
}

// Close closes the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
