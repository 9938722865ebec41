package orders

import "errors"

var (
	// ErrProductNotFound: no such product. Permanent.
	ErrProductNotFound = errors.New("product not found")

	// ErrOutOfStock: stock was exhausted when the attempt was evaluated.
	// Only a new attempt after a reset can succeed.
	ErrOutOfStock = errors.New("out of stock")

	// ErrTransactionFailed wraps infrastructure failures. Nothing was
	// persisted; the caller may retry the whole attempt.
	ErrTransactionFailed = errors.New("transaction failed")
)
