package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/shopsync/internal/failure"
	"github.com/roach88/shopsync/internal/fakeshop"
	"github.com/roach88/shopsync/internal/model"
	"github.com/roach88/shopsync/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	store  *fakeshop.Store
	server *httptest.Server
	token  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := fakeshop.NewStore(fakeshop.WithHashCost(bcrypt.MinCost))
	require.NoError(t, store.Seed())
	srv := httptest.NewServer(fakeshop.NewRouter(store, fakeshop.ServerConfig{Secret: []byte("test")}))
	t.Cleanup(srv.Close)
	return &fixture{store: store, server: srv}
}

func (f *fixture) client(opts ...ClientOption) *Client {
	opts = append([]ClientOption{WithTokenSource(func(context.Context) string { return f.token })}, opts...)
	return NewClient(f.server.URL, opts...)
}

func (f *fixture) signIn(t *testing.T, c *Client, username, password string) model.Session {
	t.Helper()
	sess, err := c.Login(context.Background(), model.Credentials{Username: username, Password: password})
	require.NoError(t, err)
	f.token = sess.Token
	return sess
}

func TestClient_LoginNormalizesRole(t *testing.T) {
	f := newFixture(t)
	c := f.client()

	sess := f.signIn(t, c, "admin", "admin123")
	assert.Equal(t, int64(1), sess.UserID)
	assert.Equal(t, model.RoleAdmin, sess.Role)
	assert.NotEmpty(t, sess.Token)
}

func TestClient_LoginInvalidCredentials(t *testing.T) {
	f := newFixture(t)
	_, err := f.client().Login(context.Background(), model.Credentials{Username: "admin", Password: "bad"})

	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.KindAuthentication))
	assert.Equal(t, MsgInvalidCredentials, failure.Describe(err))
}

func TestClient_LoginTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).Login(context.Background(), model.Credentials{Username: "a", Password: "b"})
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.KindTransport))
	assert.Equal(t, "Server did not respond. Please check your connection.", failure.Describe(err))
}

func TestClient_LoginOtherStatusIsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance window", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	_, err := NewClient(srv.URL).Login(context.Background(), model.Credentials{Username: "a", Password: "b"})
	assert.True(t, failure.Is(err, failure.KindRemoteRejection))
	assert.Equal(t, "maintenance window", failure.Describe(err))
}

func TestClient_PlaceOrderReturnsText(t *testing.T) {
	f := newFixture(t)
	c := f.client()
	sess := f.signIn(t, c, "Renuka", "password")

	text, err := c.PlaceOrder(context.Background(), model.OrderRequest{
		UserID:    sess.UserID,
		OrderDate: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Items:     []model.OrderItemRequest{{ProductID: 1, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Order placed successfully! Order ID: 1", text)

	orders, err := c.ListUserOrders(context.Background(), sess.UserID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, model.StatusPlaced, orders[0].Status)
	assert.Equal(t, 20.0, orders[0].TotalAmount)
	require.Len(t, orders[0].Lines, 1)
	assert.Equal(t, "Assam Tea", orders[0].Lines[0].Product.Name)
}

func TestClient_PlaceOrderRejectedWithTextPayload(t *testing.T) {
	f := newFixture(t)
	c := f.client()
	sess := f.signIn(t, c, "Renuka", "password")

	_, err := c.PlaceOrder(context.Background(), model.OrderRequest{
		UserID: sess.UserID,
		Items:  []model.OrderItemRequest{{ProductID: 3, Quantity: 9}},
	})
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.KindRemoteRejection))
	assert.Equal(t, "Insufficient stock for: Teak Serving Tray", failure.Describe(err))
}

func TestClient_StructuredRejectionIsSerialized(t *testing.T) {
	f := newFixture(t)
	c := f.client()
	f.signIn(t, c, "admin", "admin123")

	_, err := c.CreateProduct(context.Background(), model.ProductDraft{Name: "Mug", Price: -1})
	require.Error(t, err)
	assert.Equal(t, `{"error":"Price must be greater than 0"}`, failure.Describe(err))
}

func TestClient_ProductLifecycle(t *testing.T) {
	f := newFixture(t)
	c := f.client()
	f.signIn(t, c, "admin", "admin123")
	ctx := context.Background()

	created, err := c.CreateProduct(ctx, model.ProductDraft{Name: "Mug", Price: 7, StockQuantity: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(5), created.ID)

	created.Price = 8.5
	updated, err := c.UpdateProduct(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, 8.5, updated.Price)

	require.NoError(t, c.DeleteProduct(ctx, created.ID))

	products, err := c.ListProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, products, 4)

	err = c.DeleteProduct(ctx, created.ID)
	assert.True(t, failure.Is(err, failure.KindRemoteRejection))
	var fe *failure.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusNotFound, fe.Status)
}

func TestClient_SetOrderStatusFieldsIndependent(t *testing.T) {
	f := newFixture(t)
	c := f.client()
	sess := f.signIn(t, c, "admin", "admin123")
	ctx := context.Background()

	_, err := c.PlaceOrder(ctx, model.OrderRequest{UserID: sess.UserID, Items: []model.OrderItemRequest{{ProductID: 2, Quantity: 1}}})
	require.NoError(t, err)

	o, err := c.SetOrderStatus(ctx, 1, model.StatusChange{Status: model.StatusShipped})
	require.NoError(t, err)
	assert.Equal(t, model.StatusShipped, o.Status)
	assert.Equal(t, model.PaymentPending, o.PaymentStatus)

	o, err = c.SetOrderStatus(ctx, 1, model.StatusChange{PaymentStatus: model.PaymentCompleted})
	require.NoError(t, err)
	assert.Equal(t, model.StatusShipped, o.Status)
	assert.Equal(t, model.PaymentCompleted, o.PaymentStatus)

	all, err := c.ListOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestClient_RegisterReturnsText(t *testing.T) {
	f := newFixture(t)
	text, err := f.client().Register(context.Background(), model.UserDraft{Username: "maya", Password: "Secret123", Email: "maya@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "User registered successfully!", text)
}

func TestClient_SendsRequestIDAndBearer(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte("[]"))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL+"/", WithTokenSource(func(context.Context) string { return "tok" }))
	_, err := c.ListOrders(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", got.Get("Authorization"))
	assert.Len(t, got.Get(RequestIDHeader), 36)
}

func TestClient_TimeoutIsTransportFailure(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	_, err := NewClient(srv.URL, WithTimeout(50*time.Millisecond)).ListProducts(context.Background())
	assert.True(t, failure.Is(err, failure.KindTransport))
}

func TestClient_MalformedStatusRejectedAtBoundary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"order_id":1,"status":"TELEPORTED","payment_status":"PENDING"}]`))
	}))
	t.Cleanup(srv.Close)

	_, err := NewClient(srv.URL).ListOrders(context.Background())
	assert.ErrorContains(t, err, "unknown order status")
	assert.True(t, failure.Is(err, failure.KindRemoteRejection))
	assert.True(t, failure.IsRemote(err))
}

func TestClient_UndecodableBodyIsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>gateway</html>`))
	}))
	t.Cleanup(srv.Close)

	_, err := NewClient(srv.URL).ListProducts(context.Background())
	require.Error(t, err)
	assert.Equal(t, failure.KindRemoteRejection, failure.KindOf(err))

	var fe *failure.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusOK, fe.Status)
	assert.Equal(t, "<html>gateway</html>", fe.Payload)
}

func TestClient_RecordsSpans(t *testing.T) {
	f := newFixture(t)
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	c := f.client(WithTracerProvider(tp))
	_, err := c.ListProducts(context.Background())
	require.NoError(t, err)
	_, err = c.Login(context.Background(), model.Credentials{Username: "admin", Password: "bad"})
	require.Error(t, err)

	var names []string
	for _, s := range rec.Ended() {
		names = append(names, s.Name())
	}
	assert.Contains(t, names, "list products")
	assert.Contains(t, names, "login")
}

func TestClient_RequestIDGenerator(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get(RequestIDHeader))
		w.Write([]byte("[]"))
	}))
	t.Cleanup(srv.Close)

	ids := testutil.NewSequenceIDs("t")
	c := NewClient(srv.URL, WithRequestIDs(ids.Next))
	_, _ = c.ListProducts(context.Background())
	_, _ = c.ListOrders(context.Background())

	assert.Equal(t, []string{"t-0001", "t-0002"}, got)
}
