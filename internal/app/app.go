// Package app assembles the client-side stack for one session: storage,
// identity, the reconciliation loop, rosters, the cart and the workflows
// that mutate them.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/shopsync/internal/admin"
	"github.com/roach88/shopsync/internal/backend"
	"github.com/roach88/shopsync/internal/cart"
	"github.com/roach88/shopsync/internal/checkout"
	"github.com/roach88/shopsync/internal/config"
	"github.com/roach88/shopsync/internal/failure"
	"github.com/roach88/shopsync/internal/loop"
	"github.com/roach88/shopsync/internal/model"
	"github.com/roach88/shopsync/internal/notify"
	"github.com/roach88/shopsync/internal/optimistic"
	"github.com/roach88/shopsync/internal/roster"
	"github.com/roach88/shopsync/internal/session"
	"github.com/roach88/shopsync/internal/storage"
)

// Options overrides parts of the stack that Open would otherwise build
// from the config.
type Options struct {
	// Storage replaces the configured storage engine.
	Storage storage.Storage

	// Confirmer answers admin confirmation prompts. Defaults to
	// admin.AlwaysConfirm.
	Confirmer admin.Confirmer

	HTTPClient     *http.Client
	TracerProvider trace.TracerProvider
	RequestIDs     func() string
	Clock          func() time.Time
	Bus            *notify.Bus
	Logger         *slog.Logger
}

// App is a wired client session.
type App struct {
	Config   *config.Config
	Bus      *notify.Bus
	Storage  storage.Storage
	Loop     *loop.Loop
	Applier  *optimistic.Applier
	Session  *session.Manager
	Client   *backend.Client
	Products *roster.Roster[model.Product]
	Orders   *roster.Roster[model.Order]
	Cart     *cart.Store
	Checkout *checkout.Workflow
	Status   *admin.StatusController
	Editor   *admin.ProductEditor

	logger  *slog.Logger
	closers []func() error
	stop    context.CancelFunc
	stopped chan error
}

// Open builds an App and starts its loop. Close must be called to release
// it.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{
		Config: cfg,
		Bus:    opts.Bus,
		logger: opts.Logger,
	}
	if a.Bus == nil {
		a.Bus = notify.NewBus()
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	confirm := opts.Confirmer
	if confirm == nil {
		confirm = admin.AlwaysConfirm
	}

	a.Storage = opts.Storage
	if a.Storage == nil {
		st, closeStorage, err := storage.Open(ctx, storage.Options{
			Driver:   cfg.Storage.Driver,
			Path:     cfg.Storage.Path,
			RedisURL: cfg.Storage.RedisURL,
			RedisTTL: cfg.Storage.RedisTTL,
			Session:  cfg.Storage.Session,
		})
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		a.Storage = st
		a.closers = append(a.closers, closeStorage)
	}

	var clientOpts []backend.ClientOption
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, backend.WithHTTPClient(opts.HTTPClient))
	}
	clientOpts = append(clientOpts,
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithLogger(a.logger),
	)
	if opts.TracerProvider != nil {
		clientOpts = append(clientOpts, backend.WithTracerProvider(opts.TracerProvider))
	}
	if opts.RequestIDs != nil {
		clientOpts = append(clientOpts, backend.WithRequestIDs(opts.RequestIDs))
	}

	// The client reads the bearer token through the session manager, which
	// itself needs the client as its identity provider.
	var sessions *session.Manager
	clientOpts = append(clientOpts, backend.WithTokenSource(func(ctx context.Context) string {
		return sessions.Token(ctx)
	}))
	a.Client = backend.NewClient(cfg.Backend.BaseURL, clientOpts...)
	sessions = session.New(a.Storage, a.Client, session.WithBus(a.Bus), session.WithLogger(a.logger))
	a.Session = sessions

	a.Loop = loop.New(loop.WithLogger(a.logger))
	a.Applier = optimistic.New(a.Loop, optimistic.WithBus(a.Bus), optimistic.WithLogger(a.logger))

	a.Products = roster.New(a.Client.ListProducts, model.ProductID,
		roster.WithName[model.Product]("products"),
		roster.WithNoun[model.Product]("product"),
		roster.WithBus[model.Product](a.Bus),
		roster.WithLogger[model.Product](a.logger),
	)
	a.Orders = roster.New(a.fetchOrders, model.OrderID,
		roster.WithName[model.Order]("orders"),
		roster.WithNoun[model.Order]("order"),
		roster.WithBus[model.Order](a.Bus),
		roster.WithLogger[model.Order](a.logger),
	)

	c, err := cart.Open(ctx, a.Storage, cart.WithBus(a.Bus), cart.WithLogger(a.logger))
	if err != nil {
		_ = a.release()
		return nil, err
	}
	a.Cart = c

	checkoutOpts := []checkout.Option{
		checkout.WithOrders(a.Orders),
		checkout.WithBus(a.Bus),
		checkout.WithLogger(a.logger),
	}
	if opts.Clock != nil {
		checkoutOpts = append(checkoutOpts, checkout.WithClock(opts.Clock))
	}
	a.Checkout = checkout.New(a.Cart, a.Client, a.Session, a.Applier, checkoutOpts...)

	a.Status = admin.NewStatusController(a.Orders, a.Client, a.Applier, confirm,
		admin.WithStatusLogger(a.logger))
	a.Editor = admin.NewProductEditor(a.Products, a.Client, a.Applier, confirm,
		admin.WithProductLogger(a.logger))

	runCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	a.stop = stop
	a.stopped = make(chan error, 1)
	go func() {
		a.stopped <- a.Loop.Run(runCtx)
	}()

	a.logger.Debug("session opened",
		"backend", cfg.Backend.BaseURL,
		"storage", cfg.Storage.Driver,
		"session", cfg.Storage.Session,
	)
	return a, nil
}

// fetchOrders lists every order for an admin and the caller's own orders
// otherwise.
func (a *App) fetchOrders(ctx context.Context) ([]model.Order, error) {
	s, ok := a.Session.Current(ctx)
	if !ok {
		return nil, failure.Authentication(session.MsgLoginRequired, 0)
	}
	if s.IsAdmin() {
		return a.Client.ListOrders(ctx)
	}
	return a.Client.ListUserOrders(ctx, s.UserID)
}

// Logout signs out and drops the cart. The in-memory cart is emptied first
// so no later cart mutation can write the previous user's lines back.
func (a *App) Logout(ctx context.Context) error {
	if err := a.Cart.Clear(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return a.Session.Logout(ctx)
}

// Close waits for background reloads, drains the loop and releases storage.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Applier.Drain(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain reloads: %w", err))
	}

	a.Loop.Stop()
	select {
	case err := <-a.stopped:
		if err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}
	a.stop()

	if err := a.release(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) release() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
