package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nazeru/quickmart-checkout-go/internal/cart"
	"github.com/nazeru/quickmart-checkout-go/internal/checkout"
	"github.com/nazeru/quickmart-checkout-go/internal/checkout/pricing"
	"github.com/nazeru/quickmart-checkout-go/internal/order/domain"
	"github.com/nazeru/quickmart-checkout-go/internal/store/memory"
	"github.com/nazeru/quickmart-checkout-go/pkg/idempotency"
)

const testSecret = "test-secret"

type apiFixture struct {
	store   *memory.Store
	handler http.Handler
}

func newAPI(t *testing.T, cfg Config) *apiFixture {
	t.Helper()
	st := memory.New()
	cfg.JWTSecret = testSecret
	srv := NewServer(cart.NewService(st), checkout.NewService(st, pricing.NewEngine(pricing.DefaultTaxRate)), cfg, prometheus.NewRegistry())
	return &apiFixture{store: st, handler: srv.Routes()}
}

func token(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func (f *apiFixture) do(t *testing.T, method, path string, userID int64, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != 0 {
		req.Header.Set("Authorization", "Bearer "+token(t, jwt.MapClaims{"sub": strconv.FormatInt(userID, 10)}))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func message(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	msg, _ := body["message"].(string)
	return msg
}

func (f *apiFixture) product(stock int) domain.Product {
	return f.store.PutProduct(domain.Product{
		Name:          "Toor Dal 1kg",
		Price:         decimal.RequireFromString("40"),
		StockQuantity: stock,
		Active:        true,
	})
}

var cashOrder = map[string]any{
	"shipping_address":  "12 MG Road",
	"shipping_city":     "Pune",
	"shipping_zip_code": "411001",
	"payment_method":    "Cash",
}

func TestHealthNeedsNoToken(t *testing.T) {
	f := newAPI(t, Config{})
	rec := f.do(t, http.MethodGet, "/health", 0, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthentication(t *testing.T) {
	f := newAPI(t, Config{})

	rec := f.do(t, http.MethodGet, "/api/cart", 0, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/cart", 0, nil, "Authorization", "Bearer not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	nameid := token(t, jwt.MapClaims{"nameid": "42"})
	rec = f.do(t, http.MethodGet, "/api/cart", 0, nil, "Authorization", "Bearer "+nameid)
	assert.Equal(t, http.StatusOK, rec.Code)

	noSubject := token(t, jwt.MapClaims{"email": "a@b.c"})
	rec = f.do(t, http.MethodGet, "/api/cart", 0, nil, "Authorization", "Bearer "+noSubject)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	expired := token(t, jwt.MapClaims{"sub": "1", "exp": time.Now().Add(-time.Minute).Unix()})
	rec = f.do(t, http.MethodGet, "/api/cart", 0, nil, "Authorization", "Bearer "+expired)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	numeric := token(t, jwt.MapClaims{"sub": float64(42)})
	rec = f.do(t, http.MethodGet, "/api/cart", 0, nil, "Authorization", "Bearer "+numeric)
	assert.Equal(t, http.StatusOK, rec.Code)

	for _, sub := range []float64{1e20, 4.5} {
		bad := token(t, jwt.MapClaims{"sub": sub})
		rec = f.do(t, http.MethodGet, "/api/cart", 0, nil, "Authorization", "Bearer "+bad)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "sub %v", sub)
	}
}

func TestEmptySecretRejectsEveryToken(t *testing.T) {
	st := memory.New()
	srv := NewServer(cart.NewService(st), checkout.NewService(st, pricing.NewEngine(pricing.DefaultTaxRate)), Config{}, prometheus.NewRegistry())

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "42",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(""))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "authentication is not configured")
}

func TestCartFlow(t *testing.T) {
	f := newAPI(t, Config{})
	p := f.product(10)

	rec := f.do(t, http.MethodPost, "/api/cart/add", 7, map[string]any{"product_id": p.ID, "quantity": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var view cart.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Len(t, view.Items, 1)
	assert.Equal(t, 2, view.TotalItems)
	assert.True(t, view.TotalAmount.Equal(decimal.RequireFromString("80")))

	itemPath := "/api/cart/items/" + strconv.FormatInt(view.Items[0].CartItemID, 10)
	rec = f.do(t, http.MethodPut, itemPath, 7, map[string]any{"quantity": 11})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "insufficient stock for Toor Dal 1kg", message(t, rec))

	rec = f.do(t, http.MethodPut, itemPath, 7, map[string]any{"quantity": 3})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/cart/items/999", 7, map[string]any{"quantity": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/cart/add", 7, map[string]any{"product_id": 999, "quantity": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/cart/add", 7, map[string]any{"product_id": p.ID, "quantity": "two"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodDelete, itemPath, 7, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Empty(t, view.Items)

	rec = f.do(t, http.MethodDelete, "/api/cart/clear", 7, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateOrder(t *testing.T) {
	f := newAPI(t, Config{})
	p := f.product(10)
	f.do(t, http.MethodPost, "/api/cart/add", 7, map[string]any{"product_id": p.ID, "quantity": 3})

	rec := f.do(t, http.MethodPost, "/api/orders", 7, cashOrder)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var order domain.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.Regexp(t, `^ORD-\d{8}-0001$`, order.OrderNumber)
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("120")))
	assert.True(t, order.TaxAmount.Equal(decimal.RequireFromString("6")))
	assert.True(t, order.FinalAmount.Equal(decimal.RequireFromString("126")))
	assert.Equal(t, domain.OrderStatusProcessing, order.Status)
	assert.Equal(t, "/api/orders/"+strconv.FormatInt(order.ID, 10), rec.Header().Get("Location"))

	rec = f.do(t, http.MethodGet, "/api/orders/"+strconv.FormatInt(order.ID, 10), 7, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/orders/"+strconv.FormatInt(order.ID, 10), 8, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/orders", 7, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []domain.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = f.do(t, http.MethodGet, "/api/orders", 8, nil)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCreateOrderErrors(t *testing.T) {
	f := newAPI(t, Config{})
	p := f.product(10)

	rec := f.do(t, http.MethodPost, "/api/orders", 7, cashOrder)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.ErrEmptyCart.Error(), message(t, rec))

	f.do(t, http.MethodPost, "/api/cart/add", 7, map[string]any{"product_id": p.ID, "quantity": 1})

	rec = f.do(t, http.MethodPost, "/api/orders", 7, map[string]any{"payment_method": "Barter"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.ErrUnknownPaymentMethod.Error(), message(t, rec))

	rec = f.do(t, http.MethodPost, "/api/orders", 7, map[string]any{"shipping_city": "Pune"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Zero(t, f.store.OrderCount())
}

func TestCreateOrderIdempotencyKey(t *testing.T) {
	f := newAPI(t, Config{})
	p := f.product(10)
	f.do(t, http.MethodPost, "/api/cart/add", 7, map[string]any{"product_id": p.ID, "quantity": 1})

	first := f.do(t, http.MethodPost, "/api/orders", 7, cashOrder, idempotency.Header, "k-1")
	require.Equal(t, http.StatusCreated, first.Code)
	second := f.do(t, http.MethodPost, "/api/orders", 7, cashOrder, idempotency.Header, "k-1")
	require.Equal(t, http.StatusCreated, second.Code)

	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, f.store.OrderCount())
}

func TestCheckoutRateLimit(t *testing.T) {
	f := newAPI(t, Config{CheckoutRPS: 0.001, CheckoutBurst: 1})

	rec := f.do(t, http.MethodPost, "/api/orders", 7, cashOrder)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/orders", 7, cashOrder)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/orders", 7, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newAPI(t, Config{})
	f.do(t, http.MethodGet, "/health", 0, nil)

	rec := f.do(t, http.MethodGet, "/metrics", 0, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "quickmart_api_http_requests_total")
}
