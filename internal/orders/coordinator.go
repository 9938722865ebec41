package orders

import (
	"context"
	"errors"
	"fmt"
	"go.uber.org/zap"
	"time"
)

type Options struct {
	// PurchaseDelay is slept between a successful reservation and the order
	// append. Used to widen the race window in demos and tests.
	PurchaseDelay time.Duration
	Now           func() time.Time
	Logger        *zap.Logger
}

// Coordinator runs purchase attempts and resets. It holds no stock state
// of its own: admission is decided by the storage layer's conditional
// update, so any number of instances may share one Store.
type Coordinator struct {
	store Store
	delay time.Duration
	now   func() time.Time
	log   *zap.Logger
}

func NewCoordinator(store Store, opts Options) *Coordinator {
	c := &Coordinator{
		store: store,
		delay: opts.PurchaseDelay,
		now:   opts.Now,
		log:   opts.Logger,
	}
	if c.now == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c
}

// Purchase reserves one unit of productID and appends an order for it in a
// single transaction. It returns ErrProductNotFound, ErrOutOfStock, or an
// error wrapping ErrTransactionFailed; in every failure case nothing is
// persisted.
func (c *Coordinator) Purchase(ctx context.Context, productID string) (Order, error) {
	var order Order

	err := c.store.WithinTx(ctx, func(l Ledgers) error {
		if _, err := l.Inventory().Lookup(ctx, productID); err != nil {
			return err
		}
		res, err := l.Inventory().TryReserve(ctx, productID)
		if err != nil {
			return err
		}
		if res == OutOfStock {
			return ErrOutOfStock
		}
		if err := c.sleep(ctx); err != nil {
			return err
		}
		order, err = l.Orders().Append(ctx, productID, c.now())
		return err
	})

	state := settle(err)

	switch {
	case err == nil:
		c.log.Info("purchase", zap.String("product_id", productID), zap.String("order_id", order.ID), zap.Stringer("state", state))
		return order, nil
	case errors.Is(err, ErrProductNotFound), errors.Is(err, ErrOutOfStock):
		c.log.Info("purchase", zap.String("product_id", productID), zap.Stringer("state", state), zap.Error(err))
		return Order{}, err
	default:
		c.log.Warn("purchase", zap.String("product_id", productID), zap.Stringer("state", state), zap.Error(err))
		return Order{}, fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}
}

func (c *Coordinator) sleep(ctx context.Context) error {
	if c.delay <= 0 {
		return nil
	}
	t := time.NewTimer(c.delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset deletes every order and restores the sale product to Baseline in
// one transaction. Calling it twice reports zero deleted orders the second
// time.
//
// The product row is written before the orders are cleared: that waits out
// any purchase still holding the row, so every order committed before the
// reset is deleted by it and carries a timestamp before ResetAt, and every
// later order carries one after.
func (c *Coordinator) Reset(ctx context.Context) (ResetResult, error) {
	var out ResetResult
	err := c.store.WithinTx(ctx, func(l Ledgers) error {
		p, err := l.Inventory().First(ctx)
		if err != nil {
			return err
		}
		if err := l.Inventory().ResetTo(ctx, p.ID, Baseline); err != nil {
			return err
		}
		n, err := l.Orders().ClearAll(ctx)
		if err != nil {
			return err
		}
		out = ResetResult{ProductID: p.ID, DeletedOrders: n, Quantity: Baseline, ResetAt: c.now()}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return ResetResult{}, err
		}
		c.log.Warn("reset", zap.Error(err))
		return ResetResult{}, fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}
	c.log.Info("reset", zap.String("product_id", out.ProductID), zap.Int64("deleted_orders", out.DeletedOrders), zap.Int("quantity", out.Quantity))
	return out, nil
}

func (c *Coordinator) Product(ctx context.Context, productID string) (Product, error) {
	return c.store.Inventory().Lookup(ctx, productID)
}

// SaleProduct returns the product the sale runs on.
func (c *Coordinator) SaleProduct(ctx context.Context) (Product, error) {
	return c.store.Inventory().First(ctx)
}

func (c *Coordinator) Orders(ctx context.Context) ([]Order, error) {
	return c.store.Orders().ListAll(ctx)
}
