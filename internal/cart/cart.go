// Package cart implements the stock-bounded shopping cart.
//
// The cart is an ordered list of lines keyed by product id. Each line holds a
// product snapshot taken when it was added; the snapshot is not refreshed, so a
// stale stock value is expected until the cart is edited or the backend rejects
// the order.
//
// Every mutation persists the full cart to the injected Storage before the
// change notification is published.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/shopsync/internal/failure"
	"github.com/roach88/shopsync/internal/model"
	"github.com/roach88/shopsync/internal/notify"
	"github.com/roach88/shopsync/internal/storage"
)

// Line validation messages.
const (
	MsgQuantityTooLow  = "Quantity must be at least 1"
	MsgExceedsStock    = "Quantity exceeds stock"
	MsgMaxStockReached = "Max stock reached in cart!"
)

// Line is one product+quantity entry.
type Line struct {
	Product  model.Product `json:"product"`
	Quantity int           `json:"quantity"`

	// Error is the validation message; empty when the line is valid.
	Error string `json:"error,omitempty"`
}

// Valid reports whether the line may be submitted.
func (l Line) Valid() bool {
	return l.Error == "" && l.Quantity >= 1
}

// Subtotal returns price * quantity on raw values.
func (l Line) Subtotal() float64 {
	return l.Product.Price * float64(l.Quantity)
}

// validate recomputes the validation message against the line's snapshot.
func (l *Line) validate() {
	switch {
	case l.Quantity < 1:
		l.Error = MsgQuantityTooLow
	case l.Quantity > l.Product.StockQuantity:
		l.Error = MsgExceedsStock
	default:
		l.Error = ""
	}
}

// Store holds the cart lines of one session.
// Safe for concurrent use; mutations are serialized.
type Store struct {
	mu      sync.Mutex
	lines   []Line
	storage storage.Storage
	key     string
	bus     *notify.Bus
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithBus publishes a TopicCartChanged event after every mutation.
func WithBus(b *notify.Bus) Option {
	return func(s *Store) {
		s.bus = b
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithKey overrides the storage key (default storage.KeyCart).
func WithKey(key string) Option {
	return func(s *Store) {
		s.key = key
	}
}

// Open restores the cart from st.
//
// The stored lines are restored verbatim: no re-validation against live stock
// happens here. An absent or malformed value yields an empty cart.
func Open(ctx context.Context, st storage.Storage, opts ...Option) (*Store, error) {
	s := &Store{
		storage: st,
		key:     storage.KeyCart,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	raw, ok, err := st.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("restore cart: %w", err)
	}
	if !ok || raw == "" {
		return s, nil
	}

	var lines []Line
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		s.logger.Warn("discarding malformed stored cart", "key", s.key, "error", err)
		return s, nil
	}
	s.lines = lines
	return s, nil
}

// Add puts one unit of p into the cart.
//
// A new product always starts at quantity 1, even with zero stock. An existing
// line is incremented only while the result stays within p.StockQuantity;
// otherwise a Conflict is returned and the cart is unchanged.
func (s *Store) Add(ctx context.Context, p model.Product) error {
	return s.mutate(ctx, "add", func() error {
		if i := s.indexOf(p.ID); i >= 0 {
			if s.lines[i].Quantity+1 > p.StockQuantity {
				return failure.Conflict(MsgMaxStockReached)
			}
			s.lines = s.cloneLines()
			s.lines[i].Quantity++
			return nil
		}
		s.lines = append(s.cloneLines(), Line{Product: p, Quantity: 1})
		return nil
	})
}

// SetQuantity sets the quantity of the line at index and recomputes its
// validation message. The cart is persisted whether or not the line is valid.
//
// Only an out-of-range index is an error.
func (s *Store) SetQuantity(ctx context.Context, index, qty int) error {
	return s.mutate(ctx, "set_quantity", func() error {
		if index < 0 || index >= len(s.lines) {
			return failure.Validation("no cart line at position %d", index)
		}
		s.lines = s.cloneLines()
		s.lines[index].Quantity = qty
		s.lines[index].validate()
		return nil
	})
}

// Remove deletes the line at index. Out-of-range indexes are ignored.
func (s *Store) Remove(ctx context.Context, index int) error {
	return s.mutate(ctx, "remove", func() error {
		if index < 0 || index >= len(s.lines) {
			return errUnchanged
		}
		lines := make([]Line, 0, len(s.lines)-1)
		lines = append(lines, s.lines[:index]...)
		lines = append(lines, s.lines[index+1:]...)
		s.lines = lines
		return nil
	})
}

// Clear empties the cart and persists the empty cart.
func (s *Store) Clear(ctx context.Context) error {
	return s.mutate(ctx, "clear", func() error {
		s.lines = nil
		return nil
	})
}

// Lines returns a copy of the cart lines in order.
func (s *Store) Lines() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cloneLines()
}

// Len returns the number of lines.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines)
}

// Units returns the total number of units across all lines.
func (s *Store) Units() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.lines {
		n += l.Quantity
	}
	return n
}

// Total returns the sum of price * quantity over all lines, valid or not.
// Callers gate submission on Submittable separately.
func (s *Store) Total() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total float64
	for _, l := range s.lines {
		total += l.Subtotal()
	}
	return total
}

// Submittable reports whether the cart is non-empty and every line is valid.
func (s *Store) Submittable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.lines) == 0 {
		return false
	}
	for _, l := range s.lines {
		if !l.Valid() {
			return false
		}
	}
	return true
}

// Items builds the order placement lines. Prices are intentionally omitted.
func (s *Store) Items() []model.OrderItemRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]model.OrderItemRequest, len(s.lines))
	for i, l := range s.lines {
		items[i] = model.OrderItemRequest{ProductID: l.Product.ID, Quantity: l.Quantity}
	}
	return items
}

func (s *Store) indexOf(productID int64) int {
	for i, l := range s.lines {
		if l.Product.ID == productID {
			return i
		}
	}
	return -1
}

// cloneLines copies the line slice so snapshots handed out by Lines never
// observe later mutations.
func (s *Store) cloneLines() []Line {
	if s.lines == nil {
		return nil
	}
	out := make([]Line, len(s.lines))
	copy(out, s.lines)
	return out
}

// errUnchanged aborts a mutation without persisting or notifying.
var errUnchanged = errors.New("cart unchanged")

// mutate runs fn under the lock, persists the result and then publishes the
// change outside the lock so subscribers may read the cart.
//
// The in-memory change is kept even if the write fails; no partial-write
// recovery is attempted.
func (s *Store) mutate(ctx context.Context, op string, fn func() error) error {
	s.mu.Lock()
	if err := fn(); err != nil {
		s.mu.Unlock()
		if errors.Is(err, errUnchanged) {
			return nil
		}
		return err
	}
	err := s.persist(ctx, op)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.bus.Publish(notify.Event{Topic: notify.TopicCartChanged, Source: op})
	return nil
}

// persist writes the full cart. Must be called with s.mu held.
func (s *Store) persist(ctx context.Context, op string) error {
	lines := s.lines
	if lines == nil {
		lines = []Line{}
	}
	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("persist cart: %w", err)
	}
	if err := s.storage.Set(ctx, s.key, string(data)); err != nil {
		s.logger.Error("cart persistence failed", "op", op, "error", err)
		return fmt.Errorf("persist cart: %w", err)
	}

	s.logger.Debug("cart persisted", "op", op, "lines", len(s.lines))
	return nil
}
