package cart

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shopsync/internal/failure"
	"github.com/roach88/shopsync/internal/model"
	"github.com/roach88/shopsync/internal/notify"
	"github.com/roach88/shopsync/internal/storage"
)

func tea() model.Product {
	return model.Product{ID: 5, Name: "Tea", Price: 10, StockQuantity: 2}
}

func openCart(t *testing.T, st storage.Storage, opts ...Option) *Store {
	t.Helper()
	c, err := Open(context.Background(), st, opts...)
	require.NoError(t, err)
	return c
}

func TestAdd_StockBoundScenario(t *testing.T) {
	ctx := context.Background()
	c := openCart(t, storage.NewMemory())

	require.NoError(t, c.Add(ctx, tea()))
	require.NoError(t, c.Add(ctx, tea()))
	assert.Equal(t, 2, c.Lines()[0].Quantity)

	err := c.Add(ctx, tea())
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.KindConflict))
	assert.Equal(t, MsgMaxStockReached, failure.Describe(err))

	lines := c.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity, "rejected add must leave quantity unchanged")
	assert.Equal(t, 20.0, c.Total())
}

func TestAdd_QuantityEqualsAddsUpToStock(t *testing.T) {
	for stock := 1; stock <= 6; stock++ {
		ctx := context.Background()
		c := openCart(t, storage.NewMemory())
		p := model.Product{ID: 1, Price: 1, StockQuantity: stock}

		for i := 1; i <= stock; i++ {
			require.NoError(t, c.Add(ctx, p))
			assert.Equal(t, i, c.Lines()[0].Quantity)
		}
		assert.Error(t, c.Add(ctx, p), "first add beyond stock %d must be rejected", stock)
		assert.Equal(t, stock, c.Lines()[0].Quantity)
	}
}

func TestAdd_ZeroStockStillAddsFirstUnit(t *testing.T) {
	ctx := context.Background()
	c := openCart(t, storage.NewMemory())
	p := model.Product{ID: 9, Name: "Sold out", Price: 3, StockQuantity: 0}

	require.NoError(t, c.Add(ctx, p))
	assert.Equal(t, 1, c.Lines()[0].Quantity)

	assert.Error(t, c.Add(ctx, p))
}

func TestAdd_OneLinePerProduct(t *testing.T) {
	ctx := context.Background()
	c := openCart(t, storage.NewMemory())
	a := model.Product{ID: 1, Price: 2, StockQuantity: 10}
	b := model.Product{ID: 2, Price: 3, StockQuantity: 10}

	require.NoError(t, c.Add(ctx, a))
	require.NoError(t, c.Add(ctx, b))
	require.NoError(t, c.Add(ctx, a))

	lines := c.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, int64(1), lines[0].Product.ID)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, int64(2), lines[1].Product.ID)
	assert.Equal(t, 3, c.Units())
}

func TestSetQuantity_Validation(t *testing.T) {
	ctx := context.Background()
	c := openCart(t, storage.NewMemory())
	require.NoError(t, c.Add(ctx, tea()))

	tests := []struct {
		name        string
		qty         int
		wantMessage string
		submittable bool
	}{
		{"below one", 0, MsgQuantityTooLow, false},
		{"negative", -3, MsgQuantityTooLow, false},
		{"above stock", 3, MsgExceedsStock, false},
		{"at stock", 2, "", true},
		{"one", 1, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, c.SetQuantity(ctx, 0, tt.qty))
			line := c.Lines()[0]
			assert.Equal(t, tt.qty, line.Quantity, "quantity is never clamped")
			assert.Equal(t, tt.wantMessage, line.Error)
			assert.Equal(t, tt.submittable, c.Submittable())
		})
	}
}

func TestSetQuantity_PersistsInvalidLines(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	c := openCart(t, st)
	require.NoError(t, c.Add(ctx, tea()))
	require.NoError(t, c.SetQuantity(ctx, 0, 7))

	restored := openCart(t, st)
	lines := restored.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 7, lines[0].Quantity)
	assert.Equal(t, MsgExceedsStock, lines[0].Error)
	assert.False(t, restored.Submittable())
}

func TestSetQuantity_OutOfRange(t *testing.T) {
	c := openCart(t, storage.NewMemory())
	err := c.SetQuantity(context.Background(), 3, 1)
	assert.True(t, failure.Is(err, failure.KindValidation))
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	c := openCart(t, storage.NewMemory())
	require.NoError(t, c.Add(ctx, model.Product{ID: 1, StockQuantity: 1}))
	require.NoError(t, c.Add(ctx, model.Product{ID: 2, StockQuantity: 1}))
	require.NoError(t, c.Add(ctx, model.Product{ID: 3, StockQuantity: 1}))

	require.NoError(t, c.Remove(ctx, 1))
	lines := c.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, int64(1), lines[0].Product.ID)
	assert.Equal(t, int64(3), lines[1].Product.ID)

	assert.NoError(t, c.Remove(ctx, 9), "out of range is a silent no-op")
	assert.NoError(t, c.Remove(ctx, -1))
	assert.Equal(t, 2, c.Len())
}

func TestTotal_IgnoresValidity(t *testing.T) {
	ctx := context.Background()
	c := openCart(t, storage.NewMemory())
	require.NoError(t, c.Add(ctx, model.Product{ID: 1, Price: 2.5, StockQuantity: 1}))
	require.NoError(t, c.Add(ctx, model.Product{ID: 2, Price: 4, StockQuantity: 1}))
	require.NoError(t, c.SetQuantity(ctx, 0, 4)) // exceeds stock
	require.NoError(t, c.SetQuantity(ctx, 1, 0)) // below one

	assert.False(t, c.Submittable())
	assert.Equal(t, 10.0, c.Total())
}

func TestSubmittable_EmptyCart(t *testing.T) {
	c := openCart(t, storage.NewMemory())
	assert.False(t, c.Submittable())
}

func TestPersistRestore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	c := openCart(t, st)
	require.NoError(t, c.Add(ctx, model.Product{ID: 1, Name: "Tea", Price: 10, StockQuantity: 2, Description: "Green", ImageURL: "tea.png"}))
	require.NoError(t, c.Add(ctx, model.Product{ID: 2, Name: "Mug", Price: 7.25, StockQuantity: 5}))
	require.NoError(t, c.SetQuantity(ctx, 1, 6))

	restored := openCart(t, st)
	assert.Equal(t, c.Lines(), restored.Lines())
	assert.Equal(t, c.Total(), restored.Total())
}

func TestOpen_RestoresWithoutRevalidation(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	// Stock dropped to 1 since the line was stored with quantity 2.
	require.NoError(t, st.Set(ctx, storage.KeyCart,
		`[{"product":{"product_id":5,"name":"Tea","price":10,"stock_quantity":1},"quantity":2}]`))

	c := openCart(t, st)
	lines := c.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Empty(t, lines[0].Error, "restore must not re-validate")
	assert.True(t, c.Submittable())
}

func TestOpen_MalformedValueYieldsEmptyCart(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	require.NoError(t, st.Set(ctx, storage.KeyCart, "{not json"))

	c := openCart(t, st)
	assert.Equal(t, 0, c.Len())
}

type failingStorage struct{ storage.Memory }

func (f *failingStorage) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("disk gone")
}

func TestOpen_StorageError(t *testing.T) {
	_, err := Open(context.Background(), &failingStorage{})
	assert.ErrorContains(t, err, "disk gone")
}

func TestClear_PersistsEmptyCart(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	c := openCart(t, st)
	require.NoError(t, c.Add(ctx, tea()))
	require.NoError(t, c.Clear(ctx))

	raw, ok, err := st.Get(ctx, storage.KeyCart)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[]", raw)
	assert.Equal(t, 0, openCart(t, st).Len())
}

func TestItems_OmitPrices(t *testing.T) {
	ctx := context.Background()
	c := openCart(t, storage.NewMemory())
	require.NoError(t, c.Add(ctx, tea()))
	require.NoError(t, c.Add(ctx, tea()))

	assert.Equal(t, []model.OrderItemRequest{{ProductID: 5, Quantity: 2}}, c.Items())
}

func TestNotifications_OnePerMutationAfterPersist(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	bus := notify.NewBus()

	var c *Store
	var persistedAtNotify []string
	bus.Subscribe(func(ev notify.Event) {
		raw, _, _ := st.Get(ctx, storage.KeyCart)
		persistedAtNotify = append(persistedAtNotify, raw)
		// Subscribers may read the cart without deadlocking.
		_ = c.Lines()
	})

	c = openCart(t, st, WithBus(bus))
	require.NoError(t, c.Add(ctx, tea()))
	require.NoError(t, c.Remove(ctx, 4))                              // no-op: no event
	_ = c.Add(ctx, model.Product{ID: 5, StockQuantity: 1, Price: 10}) // rejected: no event
	require.NoError(t, c.SetQuantity(ctx, 0, 0))

	require.Len(t, persistedAtNotify, 2)
	assert.Contains(t, persistedAtNotify[0], `"quantity":1`)
	assert.Contains(t, persistedAtNotify[1], `"quantity":0`)
}

func TestLines_SnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	c := openCart(t, storage.NewMemory())
	require.NoError(t, c.Add(ctx, tea()))

	before := c.Lines()
	require.NoError(t, c.Add(ctx, tea()))

	assert.Equal(t, 1, before[0].Quantity, "earlier snapshot must not observe later mutation")
	assert.Equal(t, 2, c.Lines()[0].Quantity)
}

func TestWithKey(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	c := openCart(t, st, WithKey("cart:alt"))
	require.NoError(t, c.Add(ctx, tea()))

	_, ok, _ := st.Get(ctx, storage.KeyCart)
	assert.False(t, ok)
	_, ok, _ = st.Get(ctx, "cart:alt")
	assert.True(t, ok)
}
