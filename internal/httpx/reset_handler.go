package httpx

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-flash-sale/internal/orders"
	"github.com/ariefcatur/go-flash-sale/internal/redisx"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"net/http"
	"time"
)

func (h *SaleHandler) reset(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Sale.Reset(ctx)
	switch {
	case errors.Is(err, orders.ErrProductNotFound):
		writeError(w, http.StatusNotFound, CodeProductNotFound, "no product found")
		return
	case err != nil:
		h.logger().Error("reset", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, CodeTransactionFailed, "reset failed")
		return
	}

	if h.Redis != nil {
		if err := redisx.ClearSoldOut(ctx, h.Redis, res.ProductID); err != nil {
			h.logger().Warn("clear sold out", zap.String("product_id", res.ProductID), zap.Error(err))
		}
	}
	h.publish(orders.EventSaleReset, res.ProductID, res.ProductID, middleware.GetReqID(r.Context()),
		orders.SaleResetPayload{ProductID: res.ProductID, DeletedOrders: res.DeletedOrders, Quantity: res.Quantity, ResetAt: res.ResetAt})

	writeJSON(w, http.StatusOK, res)
}
