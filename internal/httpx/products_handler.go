package httpx

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-flash-sale/internal/orders"
	"github.com/ariefcatur/go-flash-sale/internal/redisx"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"net/http"
	"time"
)

type SalesResp struct {
	ProductID string `json:"product_id"`
	Sold      int64  `json:"sold"`
}

func (h *SaleHandler) getSaleProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Sale.SaleProduct(ctx)
	h.writeProduct(w, p, err)
}

func (h *SaleHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !validProductID(w, id) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Sale.Product(ctx, id)
	h.writeProduct(w, p, err)
}

func (h *SaleHandler) writeProduct(w http.ResponseWriter, p orders.Product, err error) {
	switch {
	case errors.Is(err, orders.ErrProductNotFound):
		writeError(w, http.StatusNotFound, CodeProductNotFound, "product not found")
	case err != nil:
		h.logger().Error("get product", zap.Error(err))
		writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
	default:
		writeJSON(w, http.StatusOK, p)
	}
}

// getSales reports the projector's sold count; it may lag the order table
// by the event pipeline delay.
func (h *SaleHandler) getSales(w http.ResponseWriter, r *http.Request) {
	if h.Redis == nil {
		writeError(w, http.StatusServiceUnavailable, CodeInternal, "sales projection disabled")
		return
	}
	id := chi.URLParam(r, "id")
	if !validProductID(w, id) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if _, err := h.Sale.Product(ctx, id); err != nil {
		h.writeProduct(w, orders.Product{}, err)
		return
	}
	n, err := redisx.Sold(ctx, h.Redis, id)
	if err != nil {
		h.logger().Error("read sales", zap.String("product_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, SalesResp{ProductID: id, Sold: n})
}
