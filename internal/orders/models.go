package orders

import (
	"encoding/json"
	"time"
)

type Product struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Author     string    `json:"author"`
	Year       int       `json:"year"`
	PriceCents int       `json:"-"`
	Quantity   int       `json:"quantity"` // signed: negative only after an out-of-band write
	CreatedAt  time.Time `json:"created_at"`
}

// MarshalJSON adds price in currency units, the shape clients display.
func (p Product) MarshalJSON() ([]byte, error) {
	type product Product
	return json.Marshal(struct {
		product
		Price float64 `json:"price"`
	}{product(p), float64(p.PriceCents) / 100})
}

type Order struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	CreatedAt time.Time `json:"created_at"`
}

type ResetResult struct {
	ProductID     string    `json:"-"`
	DeletedOrders int64     `json:"deleted_orders"`
	Quantity      int       `json:"quantity_reset_to"`
	ResetAt       time.Time `json:"-"`
}

// Baseline is the quantity restored by Reset.
const Baseline = 1
