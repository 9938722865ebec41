package postgres

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-flash-sale/internal/orders"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"time"
)

// quantity has no CHECK (quantity >= 0): a negative value is how an
// oversell shows up.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id          uuid PRIMARY KEY,
		title       text        NOT NULL,
		author      text        NOT NULL DEFAULT '',
		year        integer     NOT NULL DEFAULT 0,
		price_cents integer     NOT NULL DEFAULT 0,
		quantity    integer     NOT NULL,
		created_at  timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id         uuid PRIMARY KEY,
		product_id uuid        NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS orders_created_at_idx ON orders (created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS orders_product_id_idx ON orders (product_id)`,
}

func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// EnsureProduct inserts p unless a product already exists, and returns the
// sale product either way.
func EnsureProduct(ctx context.Context, db *pgxpool.Pool, p orders.Product) (orders.Product, error) {
	s := NewStore(db)
	existing, err := s.Inventory().First(ctx)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, orders.ErrProductNotFound) {
		return orders.Product{}, err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err = db.Exec(ctx, `
		INSERT INTO products(id, title, author, year, price_cents, quantity, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Title, p.Author, p.Year, p.PriceCents, p.Quantity, p.CreatedAt)
	if err != nil {
		return orders.Product{}, err
	}
	return s.Inventory().First(ctx)
}
