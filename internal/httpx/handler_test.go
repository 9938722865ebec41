package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-flash-sale/internal/orders"
	"github.com/ariefcatur/go-flash-sale/internal/redisx"
	"github.com/ariefcatur/go-flash-sale/internal/sqlite"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type published struct {
	key   string
	event orders.Envelope
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(key, value []byte, _ ...kafkago.Header) {
	var ev orders.Envelope
	if err := json.Unmarshal(value, &ev); err != nil {
		panic(err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{key: string(key), event: ev})
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.event.EventType)
	}
	return out
}

type fixture struct {
	router  *chi.Mux
	db      *gorm.DB
	mr      *miniredis.Miniredis
	pub     *recordingPublisher
	handler *SaleHandler
	product orders.Product
}

func newFixture(t *testing.T, quantity int) *fixture {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	p, err := sqlite.CreateProduct(db, orders.Product{Title: "Flash item", Quantity: quantity})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redisx.New(mr.Addr())
	t.Cleanup(func() { _ = rdb.Close() })

	pub := &recordingPublisher{}
	h := &SaleHandler{
		Sale:     orders.NewCoordinator(sqlite.NewStore(db), orders.Options{}),
		Redis:    rdb,
		Producer: pub,
		Service:  "api-1",
	}
	r := NewRouter(RouterOptions{Service: "api-1"})
	h.Register(r)
	return &fixture{router: r, db: db, mr: mr, pub: pub, handler: h, product: p}
}

func (f *fixture) do(method, path, body string, header ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) buy(productID string, header ...string) *httptest.ResponseRecorder {
	return f.do(http.MethodPost, "/api/orders", fmt.Sprintf(`{"product_id":%q}`, productID), header...)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestCreateOrder(t *testing.T) {
	f := newFixture(t, 1)

	rec := f.buy(f.product.ID)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "api-1", rec.Header().Get("X-Backend"))
	order := decode[orders.Order](t, rec)
	assert.Equal(t, f.product.ID, order.ProductID)
	assert.NotEmpty(t, order.ID)

	require.Len(t, f.pub.events, 1)
	assert.Equal(t, f.product.ID, f.pub.events[0].key)
	assert.Equal(t, orders.EventOrderCreated, f.pub.events[0].event.EventType)
	assert.Equal(t, order.ID, f.pub.events[0].event.CorrelationID)

	rec = f.buy(f.product.ID)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeOutOfStock, decode[errorBody](t, rec).Code)
	assert.Len(t, f.pub.events, 1)
}

func TestCreateOrder_BadRequests(t *testing.T) {
	f := newFixture(t, 1)

	rec := f.do(http.MethodPost, "/api/orders", "{nope")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalidRequest, decode[errorBody](t, rec).Code)

	rec = f.buy("abc")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, CodeInvalidProductID, decode[errorBody](t, rec).Code)

	rec = f.buy(uuid.NewString())
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeProductNotFound, decode[errorBody](t, rec).Code)

	assert.Empty(t, f.pub.events)
	p, err := f.handler.Sale.Product(context.Background(), f.product.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Quantity)
}

func TestCreateOrder_IdempotentReplay(t *testing.T) {
	f := newFixture(t, 1)

	first := f.buy(f.product.ID, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Empty(t, first.Header().Get("Idempotent-Replayed"))

	again := f.buy(f.product.ID, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusOK, again.Code)
	assert.Equal(t, "true", again.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), again.Body.String())

	list := decode[[]orders.Order](t, f.do(http.MethodGet, "/api/orders", ""))
	assert.Len(t, list, 1)
	assert.Len(t, f.pub.events, 1)
}

func TestCreateOrder_IdempotencyInFlight(t *testing.T) {
	f := newFixture(t, 1)
	require.NoError(t, f.mr.Set("idem:purchase:k-2", "pending"))

	rec := f.buy(f.product.ID, "Idempotency-Key", "k-2")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeIdempotencyConflict, decode[errorBody](t, rec).Code)
}

func TestCreateOrder_FailureReleasesIdempotencyKey(t *testing.T) {
	f := newFixture(t, 0)

	rec := f.buy(f.product.ID, "Idempotency-Key", "k-3")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, f.mr.Exists("idem:purchase:k-3"))
}

func TestCreateOrder_SoldOutMarker(t *testing.T) {
	f := newFixture(t, 0)
	marker := "flashsale:soldout:" + f.product.ID

	rec := f.buy(f.product.ID)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, f.mr.Exists(marker))

	rec = f.buy(f.product.ID)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.mr.Exists(marker))

	rec = f.buy(f.product.ID)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateOrder_StaleMarkerIsIgnored(t *testing.T) {
	f := newFixture(t, 1)
	marker := "flashsale:soldout:" + f.product.ID
	require.NoError(t, f.mr.Set(marker, "1"))

	rec := f.buy(f.product.ID)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.mr.Exists(marker))
}

func TestCreateOrder_WithoutRedis(t *testing.T) {
	f := newFixture(t, 1)
	f.handler.Redis = nil
	f.handler.Producer = nil

	rec := f.buy(f.product.ID, "Idempotency-Key", "ignored")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.mr.Exists("idem:purchase:ignored"))
}

type failingSale struct{ Sale }

func (failingSale) Purchase(context.Context, string) (orders.Order, error) {
	return orders.Order{}, fmt.Errorf("%w: %w", orders.ErrTransactionFailed, context.DeadlineExceeded)
}

func (failingSale) Reset(context.Context) (orders.ResetResult, error) {
	return orders.ResetResult{}, fmt.Errorf("%w: boom", orders.ErrTransactionFailed)
}

func TestTransactionFailureIsRetriable(t *testing.T) {
	f := newFixture(t, 1)
	f.handler.Sale = failingSale{Sale: f.handler.Sale}

	rec := f.buy(f.product.ID, "Idempotency-Key", "k-4")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, CodeTransactionFailed, decode[errorBody](t, rec).Code)
	assert.False(t, f.mr.Exists("idem:purchase:k-4"))

	rec = f.do(http.MethodPost, "/api/reset", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, f.pub.events)
}

func TestListOrders(t *testing.T) {
	f := newFixture(t, 2)

	rec := f.do(http.MethodGet, "/api/orders", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	a := decode[orders.Order](t, f.buy(f.product.ID))
	b := decode[orders.Order](t, f.buy(f.product.ID))

	list := decode[[]orders.Order](t, f.do(http.MethodGet, "/api/orders", ""))
	require.Len(t, list, 2)
	ids := []string{list[0].ID, list[1].ID}
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)
	assert.False(t, list[0].CreatedAt.Before(list[1].CreatedAt))
}

func TestReset(t *testing.T) {
	f := newFixture(t, 1)
	require.Equal(t, http.StatusOK, f.buy(f.product.ID).Code)

	rec := f.do(http.MethodPost, "/api/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted_orders":1,"quantity_reset_to":1}`, rec.Body.String())

	rec = f.do(http.MethodPost, "/api/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted_orders":0,"quantity_reset_to":1}`, rec.Body.String())

	assert.Equal(t, []string{orders.EventOrderCreated, orders.EventSaleReset, orders.EventSaleReset}, f.pub.types())
	assert.Equal(t, f.product.ID, f.pub.events[1].key)
}

func TestReset_NoProduct(t *testing.T) {
	f := newFixture(t, 1)
	require.NoError(t, f.db.Exec("DELETE FROM products").Error)

	rec := f.do(http.MethodPost, "/api/reset", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeProductNotFound, decode[errorBody](t, rec).Code)
}

func TestProducts(t *testing.T) {
	f := newFixture(t, 3)

	rec := f.do(http.MethodGet, "/api/products", "")
	require.Equal(t, http.StatusOK, rec.Code)
	p := decode[orders.Product](t, rec)
	assert.Equal(t, f.product.ID, p.ID)
	assert.Equal(t, 3, p.Quantity)

	rec = f.do(http.MethodGet, "/api/products/"+f.product.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Flash item", decode[orders.Product](t, rec).Title)

	rec = f.do(http.MethodGet, "/api/products/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProducts_PriceInCurrencyUnits(t *testing.T) {
	f := newFixture(t, 1)
	require.NoError(t, f.db.Exec("UPDATE products SET price_cents = 3999").Error)

	rec := f.do(http.MethodGet, "/api/products", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.InDelta(t, 39.99, body["price"], 1e-9)
	assert.NotContains(t, body, "price_cents")
	assert.Equal(t, f.product.ID, body["id"])
}

func TestMalformedProductIDIsRejectedEverywhere(t *testing.T) {
	f := newFixture(t, 1)

	for _, rec := range []*httptest.ResponseRecorder{
		f.buy("not-a-uuid"),
		f.do(http.MethodGet, "/api/products/not-a-uuid", ""),
		f.do(http.MethodGet, "/api/products/not-a-uuid/sales", ""),
	} {
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, CodeInvalidProductID, decode[errorBody](t, rec).Code)
	}
}

func TestSales(t *testing.T) {
	f := newFixture(t, 1)
	path := "/api/products/" + f.product.ID + "/sales"

	rec := f.do(http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode[SalesResp](t, rec).Sold)

	for i, id := range []string{"o1", "o2", "o3"} {
		_, err := f.mr.ZAdd("flashsale:sold:"+f.product.ID, float64(1_700_000_000_000_000+i), id)
		require.NoError(t, err)
	}
	rec = f.do(http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, SalesResp{ProductID: f.product.ID, Sold: 3}, decode[SalesResp](t, rec))

	rec = f.do(http.MethodGet, "/api/products/"+uuid.NewString()+"/sales", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.handler.Redis = nil
	rec = f.do(http.MethodGet, path, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, 1)

	rec := f.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = f.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"api-1"}`, rec.Body.String())
	assert.Equal(t, "api-1", rec.Header().Get("X-Backend"))
}
