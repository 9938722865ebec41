package projection

import (
	"context"
	"encoding/json"
	kafkax "github.com/ariefcatur/go-flash-sale/internal/kafka"
	"github.com/ariefcatur/go-flash-sale/internal/orders"
	"github.com/ariefcatur/go-flash-sale/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Service keeps a per-product sold-units projection in Redis from the event
// stream. It never reads or writes the order database. Events may arrive in
// a different order than their transactions committed, since api instances
// publish independently; the reset watermark in redisx makes the result the
// same either way.
type Service struct {
	Redis       *redis.Client
	ServiceName string
	Log         *zap.Logger
}

// HandleEvent is installed as the consumer handler.
func (s *Service) HandleEvent(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// poison message: log and let the offset advance
		s.Log.Error("decode envelope", zap.Error(err))
		return nil
	}
	return s.Apply(ctx, env)
}

func (s *Service) Apply(ctx context.Context, env orders.Envelope) error {
	switch env.EventType {
	case orders.EventOrderCreated, orders.EventSaleReset:
	default:
		return nil
	}

	first, err := redisx.FirstSeen(ctx, s.Redis, s.ServiceName, env.EventID)
	if err != nil {
		return err
	}
	if !first {
		s.Log.Debug("duplicate event", zap.String("event_id", env.EventID))
		return nil
	}

	if err := s.apply(ctx, env); err != nil {
		// forget the event so the redelivery is processed
		_ = redisx.ForgetSeen(ctx, s.Redis, s.ServiceName, env.EventID)
		return err
	}
	return nil
}

func (s *Service) apply(ctx context.Context, env orders.Envelope) error {
	switch env.EventType {
	case orders.EventOrderCreated:
		p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
		if err != nil {
			return err
		}
		added, err := redisx.AddSold(ctx, s.Redis, p.ProductID, p.OrderID, p.CreatedAt)
		if err != nil {
			return err
		}
		if !added {
			s.Log.Info("order skipped, predates reset or already counted", zap.String("order_id", p.OrderID), zap.String("product_id", p.ProductID))
			return nil
		}
		s.Log.Info("order projected", zap.String("order_id", p.OrderID), zap.String("product_id", p.ProductID))
	case orders.EventSaleReset:
		p, err := kafkax.UnwrapPayload[orders.SaleResetPayload](env.Payload)
		if err != nil {
			return err
		}
		left, err := redisx.ResetSold(ctx, s.Redis, p.ProductID, p.ResetAt)
		if err != nil {
			return err
		}
		s.Log.Info("reset projected", zap.String("product_id", p.ProductID), zap.Int64("deleted_orders", p.DeletedOrders), zap.Int64("sold", left))
	}
	return nil
}
