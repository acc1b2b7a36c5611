package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"purchaseservice/internal/cart"
	"purchaseservice/internal/purchase"
	"purchaseservice/internal/storage/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"
)

type recordingPublisher struct {
	mu      sync.Mutex
	settled []string
}

func (p *recordingPublisher) PublishSettled(_ context.Context, _ string, userID string, _ []purchase.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settled = append(p.settled, userID)
	return nil
}

func (p *recordingPublisher) PublishRejected(context.Context, string, string, error) error {
	return nil
}

type testServer struct {
	*httptest.Server
	store     *memory.Store
	publisher *recordingPublisher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.New()
	store.Seed(purchase.Product{ID: "p1", Title: "Mug", Price: decimal.RequireFromString("9.99"), Inventory: 10})
	store.Seed(purchase.Product{ID: "p2", Title: "Plate", Price: decimal.NewFromInt(4), Inventory: 1})
	store.SeedUser("u1", "u1@example.com")

	logger := zaptest.NewLogger(t)
	engine := purchase.NewEngine(store, store, store, logger, noop.NewTracerProvider().Tracer("test"))
	publisher := &recordingPublisher{}
	h := New(engine, store, store, cart.NewMemoryStore(), logger, WithPublisher(publisher))

	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, store: store, publisher: publisher}
}

func (s *testServer) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	resp, body := s.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestPurchase_Success(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodPost, "/users/u1/purchases",
		`[{"productId":"p1","quantity":2},{"productId":"p1","quantity":3}]`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	got := decode[PurchaseResponse](t, body)
	assert.Equal(t, "Products purchased successfully", got.Message)
	require.Len(t, got.PurchasedItems, 1)
	assert.Equal(t, "Mug", got.PurchasedItems[0].Title)
	assert.Equal(t, 5, got.PurchasedItems[0].Quantity)
	assert.True(t, decimal.RequireFromString("9.99").Equal(got.PurchasedItems[0].Price))

	assert.Equal(t, []string{"u1"}, s.publisher.settled)
}

func TestPurchase_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantError  string
	}{
		{name: "object body", path: "/users/u1/purchases", body: `{"productId":"p1"}`, wantStatus: http.StatusBadRequest, wantError: "invalid_request"},
		{name: "empty array", path: "/users/u1/purchases", body: `[]`, wantStatus: http.StatusBadRequest, wantError: "invalid_request"},
		{name: "zero quantity", path: "/users/u1/purchases", body: `[{"productId":"p1","quantity":0}]`, wantStatus: http.StatusBadRequest, wantError: "invalid_request"},
		{name: "unknown user", path: "/users/ghost/purchases", body: `[{"productId":"p1","quantity":1}]`, wantStatus: http.StatusNotFound, wantError: "user_not_found"},
		{name: "unknown product", path: "/users/u1/purchases", body: `[{"productId":"px","quantity":1}]`, wantStatus: http.StatusNotFound, wantError: "product_not_found"},
		{name: "short stock", path: "/users/u1/purchases", body: `[{"productId":"p2","quantity":2}]`, wantStatus: http.StatusBadRequest, wantError: "insufficient_inventory"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t)
			resp, body := s.do(t, http.MethodPost, tc.path, tc.body)
			assert.Equal(t, tc.wantStatus, resp.StatusCode)
			assert.Equal(t, tc.wantError, decode[ErrorResponse](t, body).Error)
			assert.Empty(t, s.publisher.settled)
		})
	}
}

func TestPurchase_NonArrayBodyMessage(t *testing.T) {
	s := newTestServer(t)
	_, body := s.do(t, http.MethodPost, "/users/u1/purchases", `"nope"`)
	assert.Equal(t, "Invalid request body. Expected an array of products.", decode[ErrorResponse](t, body).Message)
}

func TestUsers_CreateConflictAndLedger(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodPost, "/users", `{"email":"ada@example.com"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	user := decode[purchase.User](t, body)
	assert.NotEmpty(t, user.ID)

	resp, _ = s.do(t, http.MethodPost, "/users", `{"email":"ADA@example.com"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/users", `{"email":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/users/"+user.ID+"/purchases", `[{"productId":"p2","quantity":1}]`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = s.do(t, http.MethodGet, "/users/"+user.ID+"/purchases", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	records := decode[[]purchase.Record](t, body)
	require.Len(t, records, 1)
	assert.Equal(t, "Plate", records[0].Title)

	resp, _ = s.do(t, http.MethodDelete, "/users/"+user.ID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = s.do(t, http.MethodGet, "/users/"+user.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUsers_ListingPages(t *testing.T) {
	s := newTestServer(t)

	for _, email := range []string{"a@example.com", "b@example.com"} {
		resp, body := s.do(t, http.MethodPost, "/users", `{"email":"`+email+`"}`)
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	}

	resp, body := s.do(t, http.MethodGet, "/users", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	page := decode[Page[purchase.User]](t, body)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 3, page.TotalItems)
	assert.Equal(t, 1, page.TotalPages)
	require.Len(t, page.Data, 3)
	assert.Equal(t, "u1", page.Data[0].ID)
	assert.Equal(t, "b@example.com", page.Data[2].Email)
	assert.Contains(t, string(body), `"bought_items":[]`)

	resp, body = s.do(t, http.MethodGet, "/users?page=2&limit=2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page = decode[Page[purchase.User]](t, body)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "b@example.com", page.Data[0].Email)

	resp, body = s.do(t, http.MethodGet, "/users?page=9", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[Page[purchase.User]](t, body).Data)

	for _, q := range []string{"page=0", "limit=abc", "limit=-2"} {
		resp, body = s.do(t, http.MethodGet, "/users?"+q, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
		assert.Equal(t, "invalid_request", decode[ErrorResponse](t, body).Error, q)
	}
}

func TestProducts_CRUDAndListing(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodPost, "/products", `{"title":"Teapot","price":"40","inventory":0}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	teapot := decode[purchase.Product](t, body)

	resp, _ = s.do(t, http.MethodPost, "/products", `{"title":"","price":"1","inventory":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = s.do(t, http.MethodGet, "/products?inventory=soldout", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decode[Page[purchase.Product]](t, body)
	assert.Equal(t, 1, page.TotalItems)
	assert.Equal(t, 1, page.TotalPages)
	require.Len(t, page.Data, 1)
	assert.Equal(t, teapot.ID, page.Data[0].ID)

	resp, body = s.do(t, http.MethodGet, "/products?limit=2&page=2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page = decode[Page[purchase.Product]](t, body)
	assert.Equal(t, 3, page.TotalItems)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, 2, page.Page)
	assert.Len(t, page.Data, 1)

	resp, _ = s.do(t, http.MethodGet, "/products?minPrice=abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = s.do(t, http.MethodGet, "/products?date=sideways", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, http.MethodDelete, "/products/"+teapot.ID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = s.do(t, http.MethodGet, "/products/"+teapot.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCart_FlowAndCheckout(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodPost, "/users/u1/cart/items", `{"productId":"p1","quantity":2}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	items := decode[[]cart.Item](t, body)
	require.Len(t, items, 1)
	assert.Equal(t, "Mug", items[0].Title)

	resp, _ = s.do(t, http.MethodPost, "/users/u1/cart/items", `{"productId":"px","quantity":1}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/users/u1/cart/items", `{"productId":"p1","quantity":0}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, body = s.do(t, http.MethodPatch, "/users/u1/cart/items/p1", `{"delta":-10}`)
	items = decode[[]cart.Item](t, body)
	assert.Equal(t, 1, items[0].Quantity)

	_, body = s.do(t, http.MethodPatch, "/users/u1/cart/items/p1", `{"delta":3}`)
	items = decode[[]cart.Item](t, body)
	assert.Equal(t, 4, items[0].Quantity)

	resp, body = s.do(t, http.MethodPost, "/users/u1/cart/checkout", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	got := decode[PurchaseResponse](t, body)
	require.Len(t, got.PurchasedItems, 1)
	assert.Equal(t, 4, got.PurchasedItems[0].Quantity)

	_, body = s.do(t, http.MethodGet, "/users/u1/cart", "")
	assert.Empty(t, decode[[]cart.Item](t, body))

	resp, _ = s.do(t, http.MethodPost, "/users/u1/cart/checkout", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	p, err := s.store.FindByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 6, p.Inventory)
}

func TestCart_FailedCheckoutKeepsCart(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.do(t, http.MethodPost, "/users/u1/cart/items", `{"productId":"p2","quantity":2}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := s.do(t, http.MethodPost, "/users/u1/cart/checkout", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "insufficient_inventory", decode[ErrorResponse](t, body).Error)

	_, body = s.do(t, http.MethodGet, "/users/u1/cart", "")
	assert.Len(t, decode[[]cart.Item](t, body), 1)

	_, body = s.do(t, http.MethodDelete, "/users/u1/cart/items/p2", "")
	assert.Empty(t, decode[[]cart.Item](t, body))
}
