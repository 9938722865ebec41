package postgres

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-flash-sale/internal/orders"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"time"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct{ DB *pgxpool.Pool }

func NewStore(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func (s *Store) Inventory() orders.InventoryLedger { return &InventoryLedger{q: s.DB} }
func (s *Store) Orders() orders.OrderLedger        { return &OrderLedger{q: s.DB} }

func (s *Store) WithinTx(ctx context.Context, fn func(l orders.Ledgers) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(txLedgers{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type txLedgers struct{ tx pgx.Tx }

func (l txLedgers) Inventory() orders.InventoryLedger { return &InventoryLedger{q: l.tx} }
func (l txLedgers) Orders() orders.OrderLedger        { return &OrderLedger{q: l.tx} }

type InventoryLedger struct{ q querier }

const productColumns = `id::text, title, author, year, price_cents, quantity, created_at`

func scanProduct(row pgx.Row) (orders.Product, error) {
	var p orders.Product
	err := row.Scan(&p.ID, &p.Title, &p.Author, &p.Year, &p.PriceCents, &p.Quantity, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Product{}, orders.ErrProductNotFound
	}
	return p, err
}

// validID keeps malformed ids from reaching Postgres, where they would fail
// the uuid cast instead of matching nothing.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (r *InventoryLedger) Lookup(ctx context.Context, productID string) (orders.Product, error) {
	if !validID(productID) {
		return orders.Product{}, orders.ErrProductNotFound
	}
	return scanProduct(r.q.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, productID))
}

func (r *InventoryLedger) First(ctx context.Context) (orders.Product, error) {
	return scanProduct(r.q.QueryRow(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at, id LIMIT 1`))
}

// TryReserve: the row lock taken by UPDATE makes racing callers wait, and
// READ COMMITTED re-evaluates "quantity > 0" against the committed row
// before applying, so at most quantity callers see one affected row.
func (r *InventoryLedger) TryReserve(ctx context.Context, productID string) (orders.ReservationResult, error) {
	if !validID(productID) {
		return orders.OutOfStock, orders.ErrProductNotFound
	}
	ct, err := r.q.Exec(ctx, `UPDATE products SET quantity = quantity - 1 WHERE id=$1 AND quantity > 0`, productID)
	if err != nil {
		return orders.OutOfStock, err
	}
	if ct.RowsAffected() != 1 {
		return orders.OutOfStock, nil
	}
	return orders.Reserved, nil
}

func (r *InventoryLedger) ResetTo(ctx context.Context, productID string, quantity int) error {
	if !validID(productID) {
		return orders.ErrProductNotFound
	}
	ct, err := r.q.Exec(ctx, `UPDATE products SET quantity = $2 WHERE id=$1`, productID, quantity)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return orders.ErrProductNotFound
	}
	return nil
}

type OrderLedger struct{ q querier }

func (r *OrderLedger) Append(ctx context.Context, productID string, at time.Time) (orders.Order, error) {
	o := orders.Order{ID: uuid.NewString(), ProductID: productID, CreatedAt: at}
	_, err := r.q.Exec(ctx, `INSERT INTO orders(id, product_id, created_at) VALUES ($1,$2,$3)`, o.ID, o.ProductID, o.CreatedAt)
	if err != nil {
		return orders.Order{}, err
	}
	return o, nil
}

func (r *OrderLedger) ListAll(ctx context.Context) ([]orders.Order, error) {
	rows, err := r.q.Query(ctx, `SELECT id::text, product_id::text, created_at FROM orders ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []orders.Order{}
	for rows.Next() {
		var o orders.Order
		if err := rows.Scan(&o.ID, &o.ProductID, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *OrderLedger) ClearAll(ctx context.Context) (int64, error) {
	ct, err := r.q.Exec(ctx, `DELETE FROM orders`)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
