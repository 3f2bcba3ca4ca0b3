package admin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/shopsync/internal/failure"
	"github.com/roach88/shopsync/internal/model"
	"github.com/roach88/shopsync/internal/optimistic"
	"github.com/roach88/shopsync/internal/roster"
)

// StatusSetter updates order status fields on the backend.
type StatusSetter interface {
	SetOrderStatus(ctx context.Context, orderID int64, change model.StatusChange) (model.Order, error)
}

// StatusController applies lifecycle and payment transitions to cached orders.
//
// Lifecycle and payment updates are independent action kinds: one in flight
// never blocks the other, even for the same order.
type StatusController struct {
	orders  *roster.Roster[model.Order]
	backend StatusSetter
	applier *optimistic.Applier
	confirm Confirmer
	logger  *slog.Logger
}

// StatusOption configures a StatusController.
type StatusOption func(*StatusController)

// WithStatusLogger sets the logger.
func WithStatusLogger(l *slog.Logger) StatusOption {
	return func(c *StatusController) {
		c.logger = l
	}
}

// NewStatusController creates a controller over the orders roster.
func NewStatusController(orders *roster.Roster[model.Order], backend StatusSetter, applier *optimistic.Applier, confirm Confirmer, opts ...StatusOption) *StatusController {
	c := &StatusController{
		orders:  orders,
		backend: backend,
		applier: applier,
		confirm: confirm,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UpdateStatus moves an order's lifecycle status forward.
//
// Only the status field changes locally; every other field of the cached
// order is preserved until the background reload replaces it.
func (c *StatusController) UpdateStatus(ctx context.Context, orderID int64, status model.OrderStatus) (*optimistic.Pending, error) {
	order, err := c.orders.Editable(orderID)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanAdvanceTo(status) {
		return nil, failure.Validation("Cannot change status from %s to %s", order.Status, status)
	}
	if c.applier.InFlight(optimistic.KindOrderStatus) {
		return nil, optimistic.ErrInFlight
	}
	if !c.confirm.Confirm(ctx, fmt.Sprintf("Change status to %s?", status)) {
		return nil, ErrDeclined
	}

	return optimistic.Submit(ctx, c.applier, optimistic.Mutation[model.Order]{
		Kind:     optimistic.KindOrderStatus,
		Snapshot: order,
		Call: func(ctx context.Context, snap model.Order) (model.Order, error) {
			if _, err := c.backend.SetOrderStatus(ctx, snap.ID, model.StatusChange{Status: status}); err != nil {
				return model.Order{}, err
			}
			return snap.WithStatus(status), nil
		},
		Apply: func(o model.Order) {
			c.patch(o.ID, func(cur model.Order) model.Order { return cur.WithStatus(o.Status) })
		},
		Confirm: c.announce(MsgStatusUpdated),
		Message: MsgStatusUpdated,
		Reload:  c.orders.Reload,
	})
}

// UpdatePaymentStatus moves an order's payment status forward.
func (c *StatusController) UpdatePaymentStatus(ctx context.Context, orderID int64, status model.PaymentStatus) (*optimistic.Pending, error) {
	order, err := c.orders.Editable(orderID)
	if err != nil {
		return nil, err
	}
	if !order.PaymentStatus.CanAdvanceTo(status) {
		return nil, failure.Validation("Cannot change payment status from %s to %s", order.PaymentStatus, status)
	}
	if c.applier.InFlight(optimistic.KindOrderPayment) {
		return nil, optimistic.ErrInFlight
	}
	if !c.confirm.Confirm(ctx, fmt.Sprintf("Change payment status to %s?", status)) {
		return nil, ErrDeclined
	}

	return optimistic.Submit(ctx, c.applier, optimistic.Mutation[model.Order]{
		Kind:     optimistic.KindOrderPayment,
		Snapshot: order,
		Call: func(ctx context.Context, snap model.Order) (model.Order, error) {
			if _, err := c.backend.SetOrderStatus(ctx, snap.ID, model.StatusChange{PaymentStatus: status}); err != nil {
				return model.Order{}, err
			}
			return snap.WithPaymentStatus(status), nil
		},
		Apply: func(o model.Order) {
			c.patch(o.ID, func(cur model.Order) model.Order { return cur.WithPaymentStatus(o.PaymentStatus) })
		},
		Confirm: c.announce(MsgPaymentUpdated),
		Message: MsgPaymentUpdated,
		Reload:  c.orders.Reload,
	})
}

// patch applies fn to the cached order. The cache may have been reloaded or
// patched by the other transition kind since dispatch, so only the targeted
// field is written onto the current copy.
func (c *StatusController) patch(orderID int64, fn func(model.Order) model.Order) {
	current, ok := c.orders.Get(orderID)
	if !ok {
		c.logger.Debug("order left roster before transition applied", "order_id", orderID)
		return
	}
	c.orders.Replace(fn(current))
}

func (c *StatusController) announce(msg string) func(model.Order) {
	return func(o model.Order) {
		c.logger.Info(msg, "order_id", o.ID)
	}
}
