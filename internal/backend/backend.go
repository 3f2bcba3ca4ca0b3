// Package backend defines the remote collaborators consumed by the client
// core and an HTTP implementation of them.
//
// Every method is fallible. Errors are *failure.Error values: a response
// with a non-2xx status becomes KindRemoteRejection carrying the server's
// payload, and a request that got no response becomes KindTransport.
package backend

import (
	"context"

	"github.com/roach88/shopsync/internal/model"
)

// Catalog is the product catalog service.
type Catalog interface {
	ListProducts(ctx context.Context) ([]model.Product, error)
	CreateProduct(ctx context.Context, draft model.ProductDraft) (model.Product, error)
	UpdateProduct(ctx context.Context, p model.Product) (model.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
}

// Orders is the order ledger service.
type Orders interface {
	// PlaceOrder returns the backend's free-text confirmation.
	PlaceOrder(ctx context.Context, req model.OrderRequest) (string, error)
	ListOrders(ctx context.Context) ([]model.Order, error)
	ListUserOrders(ctx context.Context, userID int64) ([]model.Order, error)
	SetOrderStatus(ctx context.Context, orderID int64, change model.StatusChange) (model.Order, error)
}

// Identity is the authentication provider.
type Identity interface {
	// Login returns the signed-in session or a KindAuthentication error.
	Login(ctx context.Context, creds model.Credentials) (model.Session, error)
	// Register returns the backend's free-text acknowledgement.
	Register(ctx context.Context, draft model.UserDraft) (string, error)
}

// Shop is the full backend surface.
type Shop interface {
	Catalog
	Orders
	Identity
}
