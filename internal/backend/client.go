package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/shopsync/internal/failure"
	"github.com/roach88/shopsync/internal/model"
)

// RequestIDHeader carries a fresh id on every request.
const RequestIDHeader = "X-Request-ID"

// MsgInvalidCredentials is the login failure shown for 401 and 403 answers.
const MsgInvalidCredentials = "Invalid credentials"

// TokenSource returns the bearer token for the current session, or "".
type TokenSource func(ctx context.Context) string

// Client implements Shop over the REST API.
type Client struct {
	baseURL string
	http    *http.Client
	tracer  trace.Tracer
	token   TokenSource
	ids     func() string
	logger  *slog.Logger
}

var _ Shop = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its transport is used
// as is; wrap it with otelhttp yourself if spans are wanted.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout bounds every request. A timeout is reported as a transport failure.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithTokenSource attaches "Authorization: Bearer <token>" when the source
// returns a token.
func WithTokenSource(ts TokenSource) ClientOption {
	return func(c *Client) {
		c.token = ts
	}
}

// WithRequestIDs replaces the uuid request id generator.
func WithRequestIDs(next func() string) ClientOption {
	return func(c *Client) {
		c.ids = next
	}
}

// WithTracerProvider sets the provider for client spans (default: global).
func WithTracerProvider(tp trace.TracerProvider) ClientOption {
	return func(c *Client) {
		c.tracer = tp.Tracer("github.com/roach88/shopsync/internal/backend")
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a client for the API rooted at baseURL,
// e.g. "http://localhost:8080".
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   30 * time.Second,
		},
		tracer: otel.Tracer("github.com/roach88/shopsync/internal/backend"),
		ids:    uuid.NewString,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListProducts implements Catalog.
func (c *Client) ListProducts(ctx context.Context) ([]model.Product, error) {
	var out []model.Product
	err := c.do(ctx, "list products", http.MethodGet, "/api/products", nil, &out)
	return out, err
}

// CreateProduct implements Catalog.
func (c *Client) CreateProduct(ctx context.Context, draft model.ProductDraft) (model.Product, error) {
	var out model.Product
	err := c.do(ctx, "create product", http.MethodPost, "/api/products", draft, &out)
	return out, err
}

// UpdateProduct implements Catalog.
func (c *Client) UpdateProduct(ctx context.Context, p model.Product) (model.Product, error) {
	var out model.Product
	path := "/api/products/update/" + strconv.FormatInt(p.ID, 10)
	err := c.do(ctx, "update product", http.MethodPut, path, p, &out)
	return out, err
}

// DeleteProduct implements Catalog.
func (c *Client) DeleteProduct(ctx context.Context, id int64) error {
	path := "/api/products/delete/" + strconv.FormatInt(id, 10)
	return c.do(ctx, "delete product", http.MethodDelete, path, nil, nil)
}

// PlaceOrder implements Orders.
func (c *Client) PlaceOrder(ctx context.Context, req model.OrderRequest) (string, error) {
	var text string
	err := c.do(ctx, "place order", http.MethodPost, "/api/orders/place", req, &text)
	return text, err
}

// ListOrders implements Orders.
func (c *Client) ListOrders(ctx context.Context) ([]model.Order, error) {
	var out []model.Order
	err := c.do(ctx, "list orders", http.MethodGet, "/api/orders", nil, &out)
	return out, err
}

// ListUserOrders implements Orders.
func (c *Client) ListUserOrders(ctx context.Context, userID int64) ([]model.Order, error) {
	var out []model.Order
	path := "/api/orders/user/" + strconv.FormatInt(userID, 10)
	err := c.do(ctx, "list user orders", http.MethodGet, path, nil, &out)
	return out, err
}

// SetOrderStatus implements Orders.
func (c *Client) SetOrderStatus(ctx context.Context, orderID int64, change model.StatusChange) (model.Order, error) {
	q := url.Values{}
	if change.Status != "" {
		q.Set("status", string(change.Status))
	}
	if change.PaymentStatus != "" {
		q.Set("paymentStatus", string(change.PaymentStatus))
	}
	path := "/api/orders/update/" + strconv.FormatInt(orderID, 10)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out model.Order
	err := c.do(ctx, "update order status", http.MethodPut, path, struct{}{}, &out)
	return out, err
}

// Login implements Identity. 401 and 403 answers become KindAuthentication
// with MsgInvalidCredentials; other failures keep their own kind.
func (c *Client) Login(ctx context.Context, creds model.Credentials) (model.Session, error) {
	var out model.Session
	err := c.do(ctx, "login", http.MethodPost, "/api/auth/login", creds, &out)
	if err != nil {
		var fe *failure.Error
		if errors.As(err, &fe) && fe.Kind == failure.KindRemoteRejection &&
			(fe.Status == http.StatusUnauthorized || fe.Status == http.StatusForbidden) {
			return model.Session{}, failure.Authentication(MsgInvalidCredentials, fe.Status)
		}
		return model.Session{}, err
	}
	if !out.Valid() {
		return model.Session{}, failure.Authentication("login response carried no usable identity", 0)
	}
	return out, nil
}

// Register implements Identity.
func (c *Client) Register(ctx context.Context, draft model.UserDraft) (string, error) {
	var text string
	err := c.do(ctx, "register", http.MethodPost, "/api/auth/register", draft, &text)
	return text, err
}

// do performs one request inside a client span.
//
// out may be nil (body discarded), a *string (body taken as text), or any
// JSON target.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	ctx, span := c.tracer.Start(ctx, op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	requestID := c.ids()
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("shopsync.path", path),
		attribute.String("shopsync.request_id", requestID),
	)

	err := c.roundTrip(ctx, op, method, path, requestID, body, out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, failure.Describe(err))
		c.logger.Debug("backend call failed", "op", op, "request_id", requestID, "error", err)
		return err
	}
	c.logger.Debug("backend call", "op", op, "request_id", requestID)
	return nil
}

func (c *Client) roundTrip(ctx context.Context, op, method, path, requestID string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json, text/plain")
	req.Header.Set(RequestIDHeader, requestID)
	if c.token != nil {
		if tok := c.token(ctx); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return failure.Transport(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure.Transport(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return failure.Rejected(resp.StatusCode, data)
	}

	switch target := out.(type) {
	case nil:
		return nil
	case *string:
		*target = decodeText(data)
		return nil
	default:
		if err := json.Unmarshal(data, target); err != nil {
			return failure.Malformed(op, resp.StatusCode, data, err)
		}
		return nil
	}
}

// decodeText accepts both a plain-text body and a JSON string body.
func decodeText(data []byte) string {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}
	return string(data)
}
