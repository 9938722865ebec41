package httpx

import (
	"context"
	"encoding/json"
	"errors"
	kafkax "github.com/ariefcatur/go-flash-sale/internal/kafka"
	"github.com/ariefcatur/go-flash-sale/internal/orders"
	"github.com/ariefcatur/go-flash-sale/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"net/http"
	"time"
)

// Sale is the purchase coordinator as seen by the transport.
type Sale interface {
	Purchase(ctx context.Context, productID string) (orders.Order, error)
	Reset(ctx context.Context) (orders.ResetResult, error)
	Product(ctx context.Context, productID string) (orders.Product, error)
	SaleProduct(ctx context.Context) (orders.Product, error)
	Orders(ctx context.Context) ([]orders.Order, error)
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// SaleHandler serves the flash-sale API. Redis and Producer are optional.
type SaleHandler struct {
	Sale     Sale
	Redis    *redis.Client
	Producer Publisher
	Service  string
	Log      *zap.Logger
}

const (
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeInvalidProductID    = "INVALID_PRODUCT_ID"
	CodeProductNotFound     = "PRODUCT_NOT_FOUND"
	CodeOutOfStock          = "OUT_OF_STOCK"
	CodeIdempotencyConflict = "IDEMPOTENCY_CONFLICT"
	CodeTransactionFailed   = "TRANSACTION_FAILED"
	CodeInternal            = "INTERNAL"
)

type CreateOrderReq struct {
	ProductID string `json:"product_id"`
}

func (h *SaleHandler) Register(r *chi.Mux) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/orders", h.createOrder)
		r.Get("/orders", h.listOrders)
		r.Get("/products", h.getSaleProduct)
		r.Get("/products/{id}", h.getProduct)
		r.Get("/products/{id}/sales", h.getSales)
		r.Post("/reset", h.reset)
	})
}

func (h *SaleHandler) logger() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}

func (h *SaleHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid json")
		return
	}
	if !validProductID(w, req.ProductID) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	idemKey := ""
	if k := r.Header.Get("Idempotency-Key"); k != "" && h.Redis != nil {
		st, body, err := redisx.BeginIdempotent(ctx, h.Redis, k)
		if err != nil {
			h.logger().Warn("idempotency begin", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, CodeTransactionFailed, "idempotency store unavailable")
			return
		}
		switch st {
		case redisx.IdemDone:
			w.Header().Set("Idempotent-Replayed", "true")
			writeJSON(w, http.StatusOK, json.RawMessage(body))
			return
		case redisx.IdemPending:
			writeError(w, http.StatusConflict, CodeIdempotencyConflict, "a request with this Idempotency-Key is in progress")
			return
		}
		idemKey = k
	}

	order, err := h.purchase(ctx, req.ProductID)
	if err != nil {
		if idemKey != "" {
			_ = redisx.ReleaseIdempotent(context.WithoutCancel(ctx), h.Redis, idemKey)
		}
		h.writePurchaseError(w, err)
		return
	}

	body := kafkax.MustMarshal(order)
	if idemKey != "" {
		if err := redisx.CompleteIdempotent(context.WithoutCancel(ctx), h.Redis, idemKey, body); err != nil {
			h.logger().Warn("idempotency complete", zap.String("order_id", order.ID), zap.Error(err))
		}
	}

	h.publish(orders.EventOrderCreated, order.ProductID, order.ID, middleware.GetReqID(r.Context()),
		orders.OrderCreatedPayload{OrderID: order.ID, ProductID: order.ProductID, CreatedAt: order.CreatedAt})

	writeJSON(w, http.StatusOK, json.RawMessage(body))
}

// purchase consults the sold-out marker before running the transaction.
// A marked product is re-read once so a marker that outlived a reset
// cannot turn away a purchase while stock exists.
func (h *SaleHandler) purchase(ctx context.Context, productID string) (orders.Order, error) {
	if h.Redis != nil {
		if out, err := redisx.IsSoldOut(ctx, h.Redis, productID); err == nil && out {
			p, err := h.Sale.Product(ctx, productID)
			if err == nil && p.Quantity <= 0 {
				return orders.Order{}, orders.ErrOutOfStock
			}
			_ = redisx.ClearSoldOut(ctx, h.Redis, productID)
		}
	}

	order, err := h.Sale.Purchase(ctx, productID)
	if errors.Is(err, orders.ErrOutOfStock) && h.Redis != nil {
		if err := redisx.MarkSoldOut(ctx, h.Redis, productID); err != nil {
			h.logger().Warn("mark sold out", zap.String("product_id", productID), zap.Error(err))
		}
	}
	return order, err
}

// validProductID answers 422 for an id that is not a UUID, on every route
// that takes one.
func validProductID(w http.ResponseWriter, id string) bool {
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusUnprocessableEntity, CodeInvalidProductID, "product id must be a UUID")
		return false
	}
	return true
}

func (h *SaleHandler) writePurchaseError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orders.ErrProductNotFound):
		writeError(w, http.StatusNotFound, CodeProductNotFound, "product not found")
	case errors.Is(err, orders.ErrOutOfStock):
		writeError(w, http.StatusBadRequest, CodeOutOfStock, "out of stock")
	case errors.Is(err, orders.ErrTransactionFailed):
		writeError(w, http.StatusServiceUnavailable, CodeTransactionFailed, "transaction failed, retry the purchase")
	default:
		h.logger().Error("purchase", zap.Error(err))
		writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}

func (h *SaleHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Sale.Orders(ctx)
	if err != nil {
		h.logger().Error("list orders", zap.Error(err))
		writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *SaleHandler) publish(eventType, productID, correlationID, traceID string, payload any) {
	if h.Producer == nil {
		return
	}
	ev := kafkax.NewEnvelope(eventType, h.Service, traceID, correlationID, payload)
	h.Producer.Publish(orders.PartitionKey(productID), kafkax.MustMarshal(ev), kafkax.EventHeaders(eventType)...)
}
