package admin

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/shopsync/internal/failure"
	"github.com/roach88/shopsync/internal/model"
	"github.com/roach88/shopsync/internal/optimistic"
	"github.com/roach88/shopsync/internal/roster"
)

// MsgDraftIncomplete is returned by Add for a draft without name or price.
const MsgDraftIncomplete = "Name and Price are required!"

// CatalogWriter mutates the backend catalog.
type CatalogWriter interface {
	CreateProduct(ctx context.Context, draft model.ProductDraft) (model.Product, error)
	UpdateProduct(ctx context.Context, p model.Product) (model.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
}

// ProductEditor runs the admin catalog actions against the products roster.
type ProductEditor struct {
	products *roster.Roster[model.Product]
	backend  CatalogWriter
	applier  *optimistic.Applier
	confirm  Confirmer
	logger   *slog.Logger

	mu      sync.Mutex
	editing int64
}

// ProductOption configures a ProductEditor.
type ProductOption func(*ProductEditor)

// WithProductLogger sets the logger.
func WithProductLogger(l *slog.Logger) ProductOption {
	return func(e *ProductEditor) {
		e.logger = l
	}
}

// NewProductEditor creates an editor over the products roster.
func NewProductEditor(products *roster.Roster[model.Product], backend CatalogWriter, applier *optimistic.Applier, confirm Confirmer, opts ...ProductOption) *ProductEditor {
	e := &ProductEditor{
		products: products,
		backend:  backend,
		applier:  applier,
		confirm:  confirm,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StartEdit returns a copy of the product to edit. Sentinel or vanished
// products yield a StaleEntity guidance error instead.
func (e *ProductEditor) StartEdit(id int64) (model.Product, error) {
	p, err := e.products.Editable(id)
	if err != nil {
		return model.Product{}, err
	}
	e.mu.Lock()
	e.editing = id
	e.mu.Unlock()
	return p, nil
}

// Editing returns the id of the product being edited, or 0.
func (e *ProductEditor) Editing() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.editing
}

// CancelEdit leaves edit mode.
func (e *ProductEditor) CancelEdit() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.editing = 0
}

// Save sends the edited product. The edited copy replaces the cached entry
// on success.
func (e *ProductEditor) Save(ctx context.Context, p model.Product) (*optimistic.Pending, error) {
	if _, err := e.products.Editable(p.ID); err != nil {
		return nil, err
	}

	return optimistic.Submit(ctx, e.applier, optimistic.Mutation[model.Product]{
		Kind:     optimistic.KindProductEdit,
		Snapshot: p,
		Call: func(ctx context.Context, snap model.Product) (model.Product, error) {
			if _, err := e.backend.UpdateProduct(ctx, snap); err != nil {
				return model.Product{}, err
			}
			return snap, nil
		},
		Apply: func(saved model.Product) {
			e.products.Replace(saved)
			e.mu.Lock()
			if e.editing == saved.ID {
				e.editing = 0
			}
			e.mu.Unlock()
		},
		Confirm: e.announce(MsgProductUpdated),
		Message: MsgProductUpdated,
		Reload:  e.products.Reload,
	})
}

// Delete removes a product after confirmation.
func (e *ProductEditor) Delete(ctx context.Context, id int64) (*optimistic.Pending, error) {
	p, err := e.products.Editable(id)
	if err != nil {
		return nil, err
	}
	if e.applier.InFlight(optimistic.KindProductDelete) {
		return nil, optimistic.ErrInFlight
	}
	if !e.confirm.Confirm(ctx, "Delete this product?") {
		return nil, ErrDeclined
	}

	return optimistic.Submit(ctx, e.applier, optimistic.Mutation[model.Product]{
		Kind:     optimistic.KindProductDelete,
		Snapshot: p,
		Call: func(ctx context.Context, snap model.Product) (model.Product, error) {
			return snap, e.backend.DeleteProduct(ctx, snap.ID)
		},
		Apply:   func(deleted model.Product) { e.products.Remove(deleted.ID) },
		Confirm: e.announce(MsgProductDeleted),
		Message: MsgProductDeleted,
		Reload:  e.products.Reload,
	})
}

// Add creates a product from draft. The backend assigns the id; the
// returned product is added to the roster.
func (e *ProductEditor) Add(ctx context.Context, draft model.ProductDraft) (*optimistic.Pending, error) {
	if !draft.Complete() {
		return nil, failure.Validation(MsgDraftIncomplete)
	}

	return optimistic.Submit(ctx, e.applier, optimistic.Mutation[model.Product]{
		Kind:     optimistic.KindProductAdd,
		Snapshot: draft.Product(0),
		Call: func(ctx context.Context, _ model.Product) (model.Product, error) {
			return e.backend.CreateProduct(ctx, draft)
		},
		Apply:   e.products.Upsert,
		Confirm: e.announce(MsgProductAdded),
		Message: MsgProductAdded,
		Reload:  e.products.Reload,
	})
}

func (e *ProductEditor) announce(msg string) func(model.Product) {
	return func(p model.Product) {
		e.logger.Info(msg, "product_id", p.ID)
	}
}
