// Package checkout implements the order submission workflow.
//
// States:
//
//	Idle ─► Validating ─┬─► Idle                      (cart not submittable, silent)
//	                    └─► Submitting ─┬─► Confirmed
//	                                    └─► Rejected ─► Idle
//
// On confirmation the cart is cleared, the active view switches to the order
// list, the order list is reloaded in the background, and a confirmation
// token is extracted from the backend's free-text answer.
package checkout

import (
	"context"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/roach88/shopsync/internal/cart"
	"github.com/roach88/shopsync/internal/failure"
	"github.com/roach88/shopsync/internal/model"
	"github.com/roach88/shopsync/internal/notify"
	"github.com/roach88/shopsync/internal/optimistic"
)

// State is a workflow state.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateSubmitting
	StateConfirmed
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateSubmitting:
		return "submitting"
	case StateConfirmed:
		return "confirmed"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// View is the active surface of the user dashboard.
type View string

const (
	ViewWelcome  View = "welcome"
	ViewProducts View = "products"
	ViewCart     View = "cart"
	ViewOrders   View = "orders"
)

// PlaceholderToken stands in when the confirmation text carries no order id.
const PlaceholderToken = "Pending"

// MsgLoginToOrder is returned when no identity is signed in.
const MsgLoginToOrder = "Please login to place an order"

var tokenPattern = regexp.MustCompile(`ID:\s*(\d+)`)

// ExtractOrderToken returns the digits following "ID:" in text, or
// PlaceholderToken when there are none. It never fails.
func ExtractOrderToken(text string) string {
	if m := tokenPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return PlaceholderToken
}

// Placer places orders.
type Placer interface {
	PlaceOrder(ctx context.Context, req model.OrderRequest) (string, error)
}

// Identity yields the signed-in session.
type Identity interface {
	Current(ctx context.Context) (model.Session, bool)
}

// Reloader refreshes a roster.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Workflow drives order submission for one session.
type Workflow struct {
	cart     *cart.Store
	placer   Placer
	identity Identity
	applier  *optimistic.Applier
	orders   Reloader
	now      func() time.Time
	bus      *notify.Bus
	logger   *slog.Logger

	mu           sync.Mutex
	state        State
	view         View
	token        string
	showToken    bool
	lastErr      error
	lastResponse string
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithOrders reloads r after every confirmed order.
func WithOrders(r Reloader) Option {
	return func(w *Workflow) {
		w.orders = r
	}
}

// WithClock sets the source of submission timestamps.
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) {
		w.now = now
	}
}

// WithBus publishes state changes and confirmations.
func WithBus(b *notify.Bus) Option {
	return func(w *Workflow) {
		w.bus = b
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workflow) {
		w.logger = l
	}
}

// New creates an idle workflow showing the welcome view.
func New(c *cart.Store, placer Placer, identity Identity, applier *optimistic.Applier, opts ...Option) *Workflow {
	w := &Workflow{
		cart:     c,
		placer:   placer,
		identity: identity,
		applier:  applier,
		now:      time.Now,
		logger:   slog.Default(),
		state:    StateIdle,
		view:     ViewWelcome,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Submit places the cart as an order.
//
// An unsubmittable cart is a silent no-op: Submit returns (nil, nil) and the
// workflow stays Idle, since the cart view already shows the invalid lines.
// A submission while another is unresolved returns optimistic.ErrInFlight.
// Otherwise the returned Pending resolves once the outcome is reconciled.
func (w *Workflow) Submit(ctx context.Context) (*optimistic.Pending, error) {
	if w.applier.InFlight(optimistic.KindOrderPlace) {
		return nil, optimistic.ErrInFlight
	}

	w.setState(StateValidating)
	if !w.cart.Submittable() {
		w.logger.Debug("cart not submittable, nothing placed")
		w.setState(StateIdle)
		return nil, nil
	}
	sess, ok := w.identity.Current(ctx)
	if !ok {
		err := failure.Validation(MsgLoginToOrder)
		w.setLastErr(err)
		w.setState(StateIdle)
		return nil, err
	}

	req := model.OrderRequest{
		UserID:    sess.UserID,
		OrderDate: w.now(),
		Items:     w.cart.Items(),
	}

	applyCtx := context.WithoutCancel(ctx)
	w.setState(StateSubmitting)
	p, err := optimistic.Submit(ctx, w.applier, optimistic.Mutation[string]{
		Kind: optimistic.KindOrderPlace,
		Call: func(ctx context.Context, _ string) (string, error) {
			return w.placer.PlaceOrder(ctx, req)
		},
		Apply:   func(text string) { w.confirm(applyCtx, text) },
		Confirm: w.announce,
		Reload:  w.reloadOrders,
		Reject:  w.reject,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// confirm applies a successful placement. Runs on the loop goroutine.
func (w *Workflow) confirm(ctx context.Context, text string) {
	if err := w.cart.Clear(ctx); err != nil {
		w.logger.Error("clearing cart after order failed", "error", err)
	}

	token := ExtractOrderToken(text)
	w.mu.Lock()
	w.view = ViewOrders
	w.token = token
	w.showToken = true
	w.lastErr = nil
	w.lastResponse = text
	w.mu.Unlock()

	w.logger.Info("order placed", "token", token)
	w.setState(StateConfirmed)
}

func (w *Workflow) announce(text string) {
	w.bus.Publish(notify.Event{
		Topic:   notify.TopicOrderConfirmed,
		Source:  string(optimistic.KindOrderPlace),
		Message: text,
	})
}

func (w *Workflow) reloadOrders(ctx context.Context) error {
	if w.orders == nil {
		return nil
	}
	return w.orders.Reload(ctx)
}

// reject records the failure. The cart is left intact for a retry.
func (w *Workflow) reject(err error) {
	w.setLastErr(err)
	w.setState(StateRejected)
	w.setState(StateIdle)
}

func (w *Workflow) setLastErr(err error) {
	w.mu.Lock()
	w.lastErr = err
	w.mu.Unlock()
}

func (w *Workflow) setState(s State) {
	w.mu.Lock()
	if w.state == s {
		w.mu.Unlock()
		return
	}
	from := w.state
	w.state = s
	w.mu.Unlock()

	w.logger.Debug("checkout state", "from", from, "to", s)
	w.bus.Publish(notify.Event{Topic: notify.TopicCheckoutState, Source: "checkout", Message: s.String()})
}

// State returns the current workflow state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// View returns the active view.
func (w *Workflow) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.view
}

// SetView switches the active view.
func (w *Workflow) SetView(v View) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.view = v
}

// Confirmation returns the last order token and whether the payment
// confirmation step is showing.
func (w *Workflow) Confirmation() (token string, showing bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.token, w.showToken
}

// DismissConfirmation hides the payment confirmation step. It has no
// network effect.
func (w *Workflow) DismissConfirmation() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.showToken = false
}

// LastResponse returns the backend's text for the last confirmed order.
func (w *Workflow) LastResponse() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastResponse
}

// LastError returns the failure of the last submission, or nil.
func (w *Workflow) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}
