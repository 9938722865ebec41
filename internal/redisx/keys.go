package redisx

import "time"

const (
	// Purchase idempotency: idem:purchase:{Idempotency-Key} -> "pending" | order JSON
	KeyIdemPurchase = "idem:purchase:%s"

	// Sold-out marker: flashsale:soldout:{product_id} -> "1"
	KeySoldOut = "flashsale:soldout:%s"

	// Projection of sold units: flashsale:sold:{product_id} -> zset of
	// order ids scored by created_at (unix micros)
	KeySold = "flashsale:sold:%s"

	// Last applied reset: flashsale:reset_at:{product_id} -> unix micros
	KeyResetAt = "flashsale:reset_at:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLIdemPending = 30 * time.Second
	TTLSoldOut     = 10 * time.Minute
	TTLDedup       = 48 * time.Hour
)
