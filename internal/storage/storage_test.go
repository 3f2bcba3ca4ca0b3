package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStorage runs the Storage contract against any engine.
func exerciseStorage(t *testing.T, s Storage) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, KeyCart)
	require.NoError(t, err)
	assert.False(t, ok, "fresh storage must be empty")

	require.NoError(t, s.Set(ctx, KeyCart, `[{"quantity":1}]`))
	v, ok, err := s.Get(ctx, KeyCart)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[{"quantity":1}]`, v)

	require.NoError(t, s.Set(ctx, KeyCart, `[]`))
	v, _, err = s.Get(ctx, KeyCart)
	require.NoError(t, err)
	assert.Equal(t, `[]`, v, "set must overwrite")

	require.NoError(t, s.Remove(ctx, KeyCart))
	_, ok, err = s.Get(ctx, KeyCart)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Remove(ctx, "never-set"), "removing an absent key is not an error")
}

func TestMemory_Contract(t *testing.T) {
	exerciseStorage(t, NewMemory())
}

func TestMemory_Len(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "a", "1"))
	require.NoError(t, m.Set(ctx, "b", "2"))
	assert.Equal(t, 2, m.Len())
}

func TestOpen_Memory(t *testing.T) {
	s, closeFn, err := Open(context.Background(), Options{Driver: DriverMemory})
	require.NoError(t, err)
	defer closeFn()
	exerciseStorage(t, s)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, _, err := Open(context.Background(), Options{Driver: "etcd"})
	assert.ErrorContains(t, err, "unknown storage driver")
}
