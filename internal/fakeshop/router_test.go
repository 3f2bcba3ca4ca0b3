package fakeshop

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type harness struct {
	t      *testing.T
	store  *Store
	router *gin.Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s := seededStore(t)
	return &harness{t: t, store: s, router: NewRouter(s, ServerConfig{Secret: []byte("test-secret")})}
}

func (h *harness) do(method, path, token, body string) *httptest.ResponseRecorder {
	h.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) login(username, password string) string {
	h.t.Helper()
	w := h.do("POST", "/api/auth/login", "", `{"username":"`+username+`","password":"`+password+`"}`)
	require.Equal(h.t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(h.t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token
}

func TestRouter_Login(t *testing.T) {
	h := newHarness(t)

	w := h.do("POST", "/api/auth/login", "", `{"username":"admin","password":"admin123"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ROLE_ADMIN", resp["role"])
	assert.Equal(t, float64(1), resp["user_id"])
	assert.NotEmpty(t, resp["token"])

	w = h.do("POST", "/api/auth/login", "", `{"username":"admin","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Wrong password", w.Body.String())
}

func TestRouter_ProductsArePublic(t *testing.T) {
	h := newHarness(t)
	w := h.do("GET", "/api/products", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"product_id":1`)
	assert.Contains(t, w.Body.String(), `"stock_quantity":25`)
}

func TestRouter_AuthRequired(t *testing.T) {
	h := newHarness(t)

	w := h.do("GET", "/api/orders", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do("GET", "/api/orders", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_AdminOnly(t *testing.T) {
	h := newHarness(t)
	user := h.login("Renuka", "password")

	w := h.do("GET", "/api/orders", user, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do("POST", "/api/products", user, `{"name":"Mug","price":3,"stock_quantity":1}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_PlaceOrderAnswersWithOrderID(t *testing.T) {
	h := newHarness(t)
	user := h.login("Renuka", "password")

	w := h.do("POST", "/api/orders/place", user,
		`{"userId":2,"orderDate":"2026-03-14T09:30:00Z","items":[{"productId":1,"quantity":2}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Order placed successfully! Order ID: 1", w.Body.String())

	w = h.do("GET", "/api/orders/user/2", user, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"PLACED"`)

	w = h.do("GET", "/api/orders/user/1", user, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_PlaceOrderForAnotherUser(t *testing.T) {
	h := newHarness(t)
	user := h.login("Renuka", "password")

	w := h.do("POST", "/api/orders/place", user, `{"userId":1,"items":[{"productId":1,"quantity":1}]}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_PlaceOrderInsufficientStockIsText(t *testing.T) {
	h := newHarness(t)
	user := h.login("Renuka", "password")

	w := h.do("POST", "/api/orders/place", user, `{"userId":2,"items":[{"productId":4,"quantity":1}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Insufficient stock for: Saffron", w.Body.String())
}

func TestRouter_ProductValidationIsStructured(t *testing.T) {
	h := newHarness(t)
	admin := h.login("admin", "admin123")

	w := h.do("POST", "/api/products", admin, `{"name":"","price":3}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Product name is required"}`, w.Body.String())
}

func TestRouter_AdminProductLifecycle(t *testing.T) {
	h := newHarness(t)
	admin := h.login("admin", "admin123")

	w := h.do("POST", "/api/products", admin, `{"name":"Mug","price":7,"stock_quantity":3}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"product_id":5`)

	w = h.do("PUT", "/api/products/update/5", admin, `{"product_id":5,"name":"Big Mug","price":9,"stock_quantity":3}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"name":"Big Mug"`)

	w = h.do("DELETE", "/api/products/delete/5", admin, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do("DELETE", "/api/products/delete/5", admin, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do("DELETE", "/api/products/delete/abc", admin, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_UpdateOrderStatus(t *testing.T) {
	h := newHarness(t)
	admin := h.login("admin", "admin123")
	user := h.login("Renuka", "password")

	w := h.do("POST", "/api/orders/place", user, `{"userId":2,"items":[{"productId":2,"quantity":1}]}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do("PUT", "/api/orders/update/1?paymentStatus=COMPLETED", admin, "{}")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"payment_status":"COMPLETED"`)
	assert.Contains(t, w.Body.String(), `"status":"PLACED"`)

	w = h.do("PUT", "/api/orders/update/1?status=BOGUS", admin, "{}")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid status: BOGUS", w.Body.String())
}

func TestRouter_Register(t *testing.T) {
	h := newHarness(t)

	w := h.do("POST", "/api/auth/register", "", `{"username":"maya","password":"Secret123","email":"maya@example.com"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "User registered successfully!", w.Body.String())

	h.login("maya", "Secret123")
}

func TestRouter_CORS(t *testing.T) {
	s := seededStore(t)
	r := NewRouter(s, ServerConfig{Secret: []byte("k"), AllowedOrigins: []string{"https://shop.example.com"}})

	req := httptest.NewRequest("OPTIONS", "/api/products", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "https://shop.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}
