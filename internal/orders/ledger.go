package orders

import (
	"context"
	"time"
)

type ReservationResult int

const (
	OutOfStock ReservationResult = iota
	Reserved
)

func (r ReservationResult) String() string {
	if r == Reserved {
		return "reserved"
	}
	return "out_of_stock"
}

// InventoryLedger owns product stock. Quantity is only ever changed through
// TryReserve or ResetTo.
type InventoryLedger interface {
	Lookup(ctx context.Context, productID string) (Product, error)
	// First returns the sale product: the oldest product row.
	First(ctx context.Context) (Product, error)
	// TryReserve decrements quantity by one only if it is positive, as a
	// single conditional statement. A read followed by a write here is the
	// oversell bug.
	TryReserve(ctx context.Context, productID string) (ReservationResult, error)
	ResetTo(ctx context.Context, productID string, quantity int) error
}

// OrderLedger is the append-only record of successful purchases.
type OrderLedger interface {
	// Append never checks stock; call it only after a successful reservation.
	Append(ctx context.Context, productID string, at time.Time) (Order, error)
	// ListAll returns orders newest first.
	ListAll(ctx context.Context) ([]Order, error)
	ClearAll(ctx context.Context) (int64, error)
}

type Ledgers interface {
	Inventory() InventoryLedger
	Orders() OrderLedger
}

// Store hands out ledgers bound either to the pool (outside a transaction)
// or to one transaction. WithinTx commits when fn returns nil and rolls
// back otherwise.
type Store interface {
	Ledgers
	WithinTx(ctx context.Context, fn func(l Ledgers) error) error
}
