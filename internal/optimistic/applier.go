package optimistic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/shopsync/internal/failure"
	"github.com/roach88/shopsync/internal/loop"
	"github.com/roach88/shopsync/internal/notify"
)

// Kind names an action kind for in-flight guarding.
type Kind string

const (
	KindProductEdit   Kind = "product.edit"
	KindProductDelete Kind = "product.delete"
	KindProductAdd    Kind = "product.add"
	KindOrderStatus   Kind = "order.status"
	KindOrderPayment  Kind = "order.payment"
	KindOrderPlace    Kind = "order.place"
)

// ErrInFlight is returned by Submit when a mutation of the same kind is
// still unresolved. The new request was dropped.
var ErrInFlight = errors.New("action already in progress")

// Mutation describes one optimistic action on an entity of type T.
//
// Only Kind and Call are required.
type Mutation[T any] struct {
	Kind Kind

	// Snapshot is the local entity captured at Submit time. Call receives it
	// unchanged even if the local collection mutates meanwhile.
	Snapshot T

	// Call performs the remote operation and returns the value to apply.
	Call func(ctx context.Context, snapshot T) (T, error)

	// Apply replaces the entity in its local collection. Runs on the loop
	// goroutine before the guard is released. A panic fails the mutation.
	Apply func(result T)

	// Confirm is the confirmation side effect. Runs after the guard is
	// released so the user can act again immediately.
	Confirm func(result T)

	// Reload refreshes the owning collection in the background.
	Reload func(ctx context.Context) error

	// Reject receives the failure. Local state has not been touched.
	Reject func(err error)

	// Message is the user-facing success text carried by the applied event.
	Message string
}

// Applier runs mutations and tracks the per-kind in-flight guard.
//
// Thread-safety model:
//   - Submit(), InFlight(), Drain(): safe from any goroutine
//   - Apply/Confirm/Reject callbacks: always run on the loop goroutine
type Applier struct {
	loop   *loop.Loop
	bus    *notify.Bus
	logger *slog.Logger

	mu       sync.Mutex
	inFlight map[Kind]bool

	reloads sync.WaitGroup
}

// Option configures an Applier.
type Option func(*Applier)

// WithBus publishes applied, failed and dropped events.
func WithBus(b *notify.Bus) Option {
	return func(a *Applier) {
		a.bus = b
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Applier) {
		a.logger = l
	}
}

// New creates an Applier that reconciles on l. The caller runs l.
func New(l *loop.Loop, opts ...Option) *Applier {
	a := &Applier{
		loop:     l,
		logger:   slog.Default(),
		inFlight: make(map[Kind]bool),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// InFlight reports whether a mutation of kind is unresolved.
func (a *Applier) InFlight(kind Kind) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inFlight[kind]
}

// Drain waits for background reloads started so far.
func (a *Applier) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.reloads.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Applier) acquire(kind Kind) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.inFlight[kind] {
		return false
	}
	a.inFlight[kind] = true
	return true
}

func (a *Applier) release(kind Kind) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.inFlight, kind)
}

// Submit dispatches m unless a mutation of the same kind is in flight, in
// which case it returns ErrInFlight and makes no remote call.
//
// Once dispatched the remote call is not cancellable; cancelling ctx after
// Submit returns has no effect on it.
func Submit[T any](ctx context.Context, a *Applier, m Mutation[T]) (*Pending, error) {
	if m.Call == nil {
		return nil, errors.New("optimistic: mutation has no Call")
	}
	if !a.acquire(m.Kind) {
		a.logger.Warn("dropping duplicate mutation", "kind", m.Kind)
		a.bus.Publish(notify.Event{
			Topic:   notify.TopicMutationDropped,
			Source:  string(m.Kind),
			Message: ErrInFlight.Error(),
			Err:     ErrInFlight,
		})
		return nil, ErrInFlight
	}

	ctx = context.WithoutCancel(ctx)
	p := newPending(m.Kind)
	snapshot := m.Snapshot

	a.logger.Debug("mutation dispatched", "kind", m.Kind)
	go func() {
		result, err := m.Call(ctx, snapshot)
		settle := func() {
			if err != nil {
				fail(a, m, err, p)
				return
			}
			succeed(ctx, a, m, result, p)
		}
		if !a.loop.Post(string(m.Kind), settle) {
			// Loop already stopped: reconcile here so the guard never leaks.
			settle()
		}
	}()
	return p, nil
}

func succeed[T any](ctx context.Context, a *Applier, m Mutation[T], result T, p *Pending) {
	if err := apply(m, result); err != nil {
		a.logger.Error("mutation apply panicked", "kind", m.Kind, "error", err)
		fail(a, m, err, p)
		return
	}
	defer p.resolve(nil)

	a.release(m.Kind)
	a.logger.Info("mutation applied", "kind", m.Kind)
	a.bus.Publish(notify.Event{Topic: notify.TopicMutationApplied, Source: string(m.Kind), Message: m.Message})

	if m.Confirm != nil {
		m.Confirm(result)
	}
	if m.Reload != nil {
		a.reloads.Add(1)
		go func() {
			defer a.reloads.Done()
			if err := m.Reload(ctx); err != nil {
				a.logger.Warn("background reload failed", "kind", m.Kind, "error", err)
			}
		}()
	}
}

// apply runs m.Apply and turns a panic into an error.
func apply[T any](m Mutation[T], result T) (err error) {
	if m.Apply == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("optimistic: %s apply panicked: %v", m.Kind, r)
		}
	}()
	m.Apply(result)
	return nil
}

func fail[T any](a *Applier, m Mutation[T], err error, p *Pending) {
	defer p.resolve(err)

	a.release(m.Kind)
	msg := failure.Describe(err)
	a.logger.Warn("mutation failed", "kind", m.Kind, "error", err)
	a.bus.Publish(notify.Event{
		Topic:   notify.TopicMutationFailed,
		Source:  string(m.Kind),
		Message: msg,
		Err:     err,
	})
	if m.Reject != nil {
		m.Reject(err)
	}
}
