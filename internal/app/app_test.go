package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shopsync/internal/checkout"
	"github.com/roach88/shopsync/internal/config"
	"github.com/roach88/shopsync/internal/failure"
	"github.com/roach88/shopsync/internal/model"
	"github.com/roach88/shopsync/internal/notify"
	"github.com/roach88/shopsync/internal/storage"
	"github.com/roach88/shopsync/internal/testutil"
)

func openApp(t *testing.T) (*App, *storage.Memory) {
	t.Helper()
	_, srv := testutil.ShopServer(t)

	cfg := config.Default()
	cfg.Backend.BaseURL = srv.URL
	cfg.Storage.Driver = storage.DriverMemory

	st := storage.NewMemory()
	a, err := Open(context.Background(), cfg, Options{
		Storage: st,
		Clock:   testutil.NewStepClock(time.Minute).Now,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, a.Close(ctx))
	})
	return a, st
}

func wait(t *testing.T, run func(context.Context) error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, run(ctx))
}

func TestOpen_CheckoutRoundTrip(t *testing.T) {
	a, st := openApp(t)
	ctx := context.Background()

	var events notify.Recorder
	a.Bus.Subscribe(events.Record)

	_, err := a.Session.Login(ctx, "Renuka", "password")
	require.NoError(t, err)

	require.NoError(t, a.Products.Reload(ctx))
	tea, ok := a.Products.Get(1)
	require.True(t, ok)
	require.NoError(t, a.Cart.Add(ctx, tea))
	require.NoError(t, a.Cart.Add(ctx, tea))

	p, err := a.Checkout.Submit(ctx)
	require.NoError(t, err)
	require.NotNil(t, p)
	wait(t, p.Wait)
	wait(t, a.Applier.Drain)

	assert.Equal(t, checkout.StateConfirmed, a.Checkout.State())
	assert.Equal(t, checkout.ViewOrders, a.Checkout.View())
	token, showing := a.Checkout.Confirmation()
	assert.True(t, showing)
	assert.Equal(t, "1", token)

	assert.Zero(t, a.Cart.Len())
	raw, _, err := st.Get(ctx, storage.KeyCart)
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)

	orders := a.Orders.Items()
	require.Len(t, orders, 1)
	assert.Equal(t, 20.0, orders[0].TotalAmount)
	assert.Equal(t, "Renuka", orders[0].User.Username)
	assert.Equal(t, 1, events.Count(notify.TopicOrderConfirmed))
}

func TestOpen_AdminSeesEveryOrder(t *testing.T) {
	a, _ := openApp(t)
	ctx := context.Background()

	_, err := a.Session.Login(ctx, "Renuka", "password")
	require.NoError(t, err)
	require.NoError(t, a.Products.Reload(ctx))
	cardamom, _ := a.Products.Get(2)
	require.NoError(t, a.Cart.Add(ctx, cardamom))
	p, err := a.Checkout.Submit(ctx)
	require.NoError(t, err)
	wait(t, p.Wait)
	wait(t, a.Applier.Drain)

	require.NoError(t, a.Logout(ctx))
	_, err = a.Session.Login(ctx, "admin", "admin123")
	require.NoError(t, err)
	require.NoError(t, a.Orders.Reload(ctx))
	require.Equal(t, 1, a.Orders.Len())

	p, err = a.Status.UpdateStatus(ctx, 1, model.StatusShipped)
	require.NoError(t, err)
	wait(t, p.Wait)

	o, ok := a.Orders.Get(1)
	require.True(t, ok)
	assert.Equal(t, model.StatusShipped, o.Status)
	assert.Equal(t, model.PaymentPending, o.PaymentStatus)
}

func TestOpen_OrdersRequireSession(t *testing.T) {
	a, _ := openApp(t)

	err := a.Orders.Reload(context.Background())
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.KindAuthentication))
}

func TestOpen_RestoresCartFromStorage(t *testing.T) {
	_, srv := testutil.ShopServer(t)
	cfg := config.Default()
	cfg.Backend.BaseURL = srv.URL

	st := storage.NewMemory()
	require.NoError(t, st.Set(context.Background(), storage.KeyCart,
		`[{"product":{"product_id":3,"name":"Teak Serving Tray","price":32,"stock_quantity":3},"quantity":2}]`))

	a, err := Open(context.Background(), cfg, Options{Storage: st})
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.Equal(t, 1, a.Cart.Len())
	assert.Equal(t, 64.0, a.Cart.Total())
}

func TestOpen_SQLiteStorageFromConfig(t *testing.T) {
	_, srv := testutil.ShopServer(t)
	cfg := config.Default()
	cfg.Backend.BaseURL = srv.URL
	cfg.Storage.Path = t.TempDir() + "/state.db"

	a, err := Open(context.Background(), cfg, Options{})
	require.NoError(t, err)
	_, err = a.Session.Login(context.Background(), "Renuka", "password")
	require.NoError(t, err)
	require.NoError(t, a.Close(context.Background()))

	b, err := Open(context.Background(), cfg, Options{})
	require.NoError(t, err)
	defer b.Close(context.Background())
	s, ok := b.Session.Current(context.Background())
	require.True(t, ok)
	assert.Equal(t, "Renuka", s.Username)
}

func TestOpen_BadStorage(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Driver = "floppy"
	_, err := Open(context.Background(), cfg, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open storage")
}

func TestLogout_DropsInMemoryCart(t *testing.T) {
	a, st := openApp(t)
	ctx := context.Background()

	_, err := a.Session.Login(ctx, "Renuka", "password")
	require.NoError(t, err)
	require.NoError(t, a.Products.Reload(ctx))
	tea, _ := a.Products.Get(1)
	cardamom, _ := a.Products.Get(2)
	require.NoError(t, a.Cart.Add(ctx, tea))

	require.NoError(t, a.Logout(ctx))
	_, present, err := st.Get(ctx, storage.KeyCart)
	require.NoError(t, err)
	assert.False(t, present)
	_, present, err = st.Get(ctx, storage.KeySession)
	require.NoError(t, err)
	assert.False(t, present)
	assert.Zero(t, a.Cart.Len())

	_, err = a.Session.Login(ctx, "Renuka", "password")
	require.NoError(t, err)
	require.NoError(t, a.Cart.Add(ctx, cardamom))

	lines := a.Cart.Lines()
	require.Len(t, lines, 1, "the previous session's lines must not come back")
	assert.Equal(t, int64(2), lines[0].Product.ID)

	raw, _, err := st.Get(ctx, storage.KeyCart)
	require.NoError(t, err)
	assert.NotContains(t, raw, "Assam Tea")
}
