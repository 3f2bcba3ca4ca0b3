package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shopsync/internal/config"
	"github.com/roach88/shopsync/internal/model"
)

// syncBuffer is a bytes.Buffer safe for the server goroutine and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServe_ServesSeededShopUntilCancelled(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "error"

	out := &syncBuffer{}
	cmd := newRootCommand(&RootOptions{Config: cfg})
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"serve", "--addr", "127.0.0.1:0"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- cmd.ExecuteContext(ctx)
	}()

	var addr string
	require.Eventually(t, func() bool {
		for _, line := range strings.Split(out.String(), "\n") {
			if rest, ok := strings.CutPrefix(line, "Shop listening on "); ok {
				addr = rest
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + addr + "/api/products")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var products []model.Product
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&products))
	assert.Len(t, products, 4)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}

func TestServe_BadAddress(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "error"

	res := execute(&RootOptions{Config: cfg}, "", "serve", "--addr", "bad-address")
	require.Error(t, res.Err)
	assert.Equal(t, ExitCommandError, res.ExitCode())
	assert.Contains(t, res.Err.Error(), "failed to listen")
}
