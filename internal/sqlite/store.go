package sqlite

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-flash-sale/internal/orders"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"time"
)

type Store struct{ db *gorm.DB }

func NewStore(db *gorm.DB) *Store { return &Store{db: db} }

func (s *Store) Inventory() orders.InventoryLedger { return &InventoryLedger{db: s.db} }
func (s *Store) Orders() orders.OrderLedger        { return &OrderLedger{db: s.db} }

func (s *Store) WithinTx(ctx context.Context, fn func(l orders.Ledgers) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

type InventoryLedger struct{ db *gorm.DB }

func (r *InventoryLedger) Lookup(ctx context.Context, productID string) (orders.Product, error) {
	var row productRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return orders.Product{}, orders.ErrProductNotFound
		}
		return orders.Product{}, err
	}
	return row.toProduct(), nil
}

func (r *InventoryLedger) First(ctx context.Context) (orders.Product, error) {
	var row productRow
	err := r.db.WithContext(ctx).Order("created_at, id").Limit(1).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return orders.Product{}, orders.ErrProductNotFound
		}
		return orders.Product{}, err
	}
	return row.toProduct(), nil
}

// TryReserve: one conditional UPDATE; RowsAffected tells whether a unit
// was taken.
func (r *InventoryLedger) TryReserve(ctx context.Context, productID string) (orders.ReservationResult, error) {
	res := r.db.WithContext(ctx).
		Model(&productRow{}).
		Where("id = ? AND quantity > 0", productID).
		UpdateColumn("quantity", gorm.Expr("quantity - 1"))

	if res.Error != nil {
		return orders.OutOfStock, res.Error
	}
	if res.RowsAffected == 0 {
		return orders.OutOfStock, nil
	}
	return orders.Reserved, nil
}

func (r *InventoryLedger) ResetTo(ctx context.Context, productID string, quantity int) error {
	res := r.db.WithContext(ctx).
		Model(&productRow{}).
		Where("id = ?", productID).
		UpdateColumn("quantity", quantity)

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return orders.ErrProductNotFound
	}
	return nil
}

type OrderLedger struct{ db *gorm.DB }

func (r *OrderLedger) Append(ctx context.Context, productID string, at time.Time) (orders.Order, error) {
	row := orderRow{ID: uuid.NewString(), ProductID: productID, CreatedAt: at.UTC()}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return orders.Order{}, err
	}
	return row.toOrder(), nil
}

func (r *OrderLedger) ListAll(ctx context.Context) ([]orders.Order, error) {
	var rows []orderRow
	if err := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]orders.Order, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toOrder())
	}
	return out, nil
}

func (r *OrderLedger) ClearAll(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Where("1 = 1").Delete(&orderRow{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
