package httpx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront-engine/internal/cart"
	"github.com/ariefcatur/go-storefront-engine/internal/fulfillment"
	"github.com/ariefcatur/go-storefront-engine/internal/memstore"
	"github.com/ariefcatur/go-storefront-engine/internal/metrics"
	"github.com/ariefcatur/go-storefront-engine/internal/orders"
	"github.com/ariefcatur/go-storefront-engine/internal/refcode"
	"github.com/ariefcatur/go-storefront-engine/internal/storefront"
)

type testAPI struct {
	router   *chi.Mux
	store    *memstore.Store
	products []orders.Product
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	s := memstore.New(nil)
	products := memstore.Seed(s)
	reg := prometheus.NewRegistry()

	agg, err := cart.New(cart.Deps{Store: s})
	require.NoError(t, err)
	conv, err := fulfillment.New(fulfillment.Deps{Store: s, Codes: refcode.NewSeeded(11), Metrics: metrics.New(reg)})
	require.NoError(t, err)
	svc, err := storefront.New(storefront.Deps{Cart: agg, Converter: conv, Catalog: s})
	require.NoError(t, err)

	return &testAPI{
		router:   NewRouter(RouterDeps{Service: svc, Gatherer: reg}),
		store:    s,
		products: products,
	}
}

func (a *testAPI) do(t *testing.T, method, path string, user string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set(HeaderUserID, user)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealthAndMetrics(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCartToCheckoutFlow(t *testing.T) {
	api := newTestAPI(t)
	aviator := api.products[0]

	rec := api.do(t, http.MethodPost, "/cart/lines", "7", map[string]any{"product_id": aviator.ID, "quantity": 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/cart", "7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeBody[cart.View](t, rec)
	require.Len(t, view.Lines, 1)
	assert.True(t, decimal.RequireFromString("299.98").Equal(view.Total))

	rec = api.do(t, http.MethodPost, "/checkout", "7", map[string]string{"payment_method": "card", "shipping_address": "1 Main St"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decodeBody[orders.Order](t, rec)
	assert.True(t, strings.HasPrefix(order.ReferenceCode, "ORD"))
	assert.Equal(t, orders.StatusPending, order.Status)

	rec = api.do(t, http.MethodPost, "/checkout", "7", map[string]string{"payment_method": "card", "shipping_address": "1 Main St"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "empty_cart", decodeBody[problem](t, rec).Error)

	rec = api.do(t, http.MethodGet, "/orders", "7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]orders.Order](t, rec), 1)
}

func TestAddToCartErrors(t *testing.T) {
	api := newTestAPI(t)
	aviator := api.products[0]

	rec := api.do(t, http.MethodPost, "/cart/lines", "7", map[string]any{"product_id": aviator.ID, "quantity": 0})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	p := decodeBody[problem](t, rec)
	assert.Equal(t, "invalid_input", p.Error)
	assert.Contains(t, p.Details, "quantity")

	rec = api.do(t, http.MethodPost, "/cart/lines", "7", map[string]any{"product_id": aviator.ID, "quantity": 26})
	require.Equal(t, http.StatusConflict, rec.Code)
	p = decodeBody[problem](t, rec)
	assert.Equal(t, "insufficient_stock", p.Error)
	details, ok := p.Details.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 25, details["available"])

	rec = api.do(t, http.MethodPost, "/cart/lines", "7", map[string]any{"product_id": 999, "quantity": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodPost, "/cart/lines", "7", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIdentityRequired(t *testing.T) {
	api := newTestAPI(t)

	for _, user := range []string{"", "abc", "-1"} {
		rec := api.do(t, http.MethodGet, "/cart", user, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "user %q", user)
	}

	rec := api.do(t, http.MethodGet, fmt.Sprintf("/products/%d", api.products[1].ID), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Wayfarer Classic Black", decodeBody[orders.Product](t, rec).Name)
}

func TestCartLineOwnership(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/cart/lines", "1", map[string]any{"product_id": api.products[0].ID, "quantity": 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	line := decodeBody[orders.CartLine](t, rec)
	path := fmt.Sprintf("/cart/lines/%d", line.ID)

	rec = api.do(t, http.MethodPost, path, "2", map[string]any{"action": "update", "quantity": 3})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = api.do(t, http.MethodDelete, path, "2", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPost, path, "1", map[string]any{"action": "update", "quantity": 3})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = api.do(t, http.MethodPost, path, "1", map[string]any{"action": "explode"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodDelete, path, "1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = api.do(t, http.MethodDelete, path, "1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, http.MethodPost, "/cart/lines/abc", "1", map[string]any{"action": "remove"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBookAndAdmin(t *testing.T) {
	api := newTestAPI(t)
	wayfarer := api.products[1]

	rec := api.do(t, http.MethodPost, "/bookings", "3", map[string]any{"product_id": wayfarer.ID, "quantity": 2, "pickup_date": "2025-03-01"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	booking := decodeBody[orders.Booking](t, rec)
	assert.Len(t, booking.ReferenceCode, 11)

	rec = api.do(t, http.MethodPost, "/bookings", "3", map[string]any{"product_id": wayfarer.ID, "quantity": 1, "pickup_date": "tomorrow"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/bookings", "3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]orders.Booking](t, rec), 1)

	rec = api.do(t, http.MethodGet, "/admin/bookings", "3", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = api.do(t, http.MethodGet, "/admin/bookings", "3", nil, HeaderUserRole, RoleAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]orders.Booking](t, rec), 1)
}

func TestAdminSetOrderStatus(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/cart/lines", "5", map[string]any{"product_id": api.products[0].ID, "quantity": 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = api.do(t, http.MethodPost, "/checkout", "5", map[string]string{"payment_method": "card", "shipping_address": "addr"})
	require.Equal(t, http.StatusCreated, rec.Code)
	order := decodeBody[orders.Order](t, rec)

	admin := []string{HeaderUserRole, RoleAdmin}
	path := fmt.Sprintf("/admin/orders/%d/status", order.ID)

	rec = api.do(t, http.MethodPost, path, "1", map[string]string{"status": "shipped"}, admin...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, orders.StatusShipped, decodeBody[orders.Order](t, rec).Status)

	rec = api.do(t, http.MethodPost, path, "1", map[string]string{"status": "lost"}, admin...)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/admin/orders/9999/status", "1", map[string]string{"status": "shipped"}, admin...)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodGet, "/admin/orders", "1", nil, admin...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]orders.Order](t, rec), 1)
}

func TestUpdateCartLineWithoutQuantity(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/cart/lines", "4", map[string]any{"product_id": api.products[0].ID, "quantity": 2})
	require.Equal(t, http.StatusCreated, rec.Code)
	line := decodeBody[orders.CartLine](t, rec)

	rec = api.do(t, http.MethodPost, fmt.Sprintf("/cart/lines/%d", line.ID), "4", map[string]any{"action": "update"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, http.MethodGet, "/cart", "4", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeBody[cart.View](t, rec)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, storefront.DefaultQuantity, view.Lines[0].Quantity)

	rec = api.do(t, http.MethodPost, "/cart/lines", "4", map[string]any{"product_id": api.products[1].ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, storefront.DefaultQuantity, decodeBody[orders.CartLine](t, rec).Quantity)
}
