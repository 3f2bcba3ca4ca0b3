package testutil

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/shopsync/internal/fakeshop"
)

// ServerSecret signs tokens issued by ShopServer.
const ServerSecret = "test-secret"

// ShopServer starts a seeded fakeshop behind an httptest server. Orders are
// stamped from a StepClock, so order dates are reproducible. The server is
// closed when the test ends.
func ShopServer(t testing.TB, opts ...fakeshop.StoreOption) (*fakeshop.Store, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clock := NewStepClock(0)
	opts = append([]fakeshop.StoreOption{
		fakeshop.WithHashCost(bcrypt.MinCost),
		fakeshop.WithClock(clock.Now),
	}, opts...)

	store := fakeshop.NewStore(opts...)
	if err := store.Seed(); err != nil {
		t.Fatalf("seed shop: %v", err)
	}
	srv := httptest.NewServer(fakeshop.NewRouter(store, fakeshop.ServerConfig{
		Secret: []byte(ServerSecret),
	}))
	t.Cleanup(srv.Close)
	return store, srv
}
