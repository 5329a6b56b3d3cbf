package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func serve(t *testing.T) *Server {
	t.Helper()
	srv, err := NewServer(ServerConfig{Listen: "127.0.0.1:0"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("metrics server did not stop")
		}
	})
	return srv
}

// Registry state is process-global, so the disabled and enabled cases run
// in order inside one test.
func TestServer(t *testing.T) {
	t.Run("Disabled", func(t *testing.T) {
		require.False(t, IsEnabled())
		srv := serve(t)

		code, body := get(t, "http://"+srv.Addr()+"/metrics")
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Contains(t, body, "disabled")
	})

	t.Run("Enabled", func(t *testing.T) {
		InitRegistry()
		InitRegistry()
		require.True(t, IsEnabled())
		srv := serve(t)

		code, _ := get(t, "http://"+srv.Addr()+"/metrics")
		assert.Equal(t, http.StatusOK, code)
	})

	t.Run("AddressInUse", func(t *testing.T) {
		srv := serve(t)
		_, err := NewServer(ServerConfig{Listen: srv.Addr()})
		assert.Error(t, err)
	})

	t.Run("StopIsIdempotent", func(t *testing.T) {
		srv, err := NewServer(ServerConfig{Listen: "127.0.0.1:0"})
		require.NoError(t, err)
		assert.NoError(t, srv.Stop(context.Background()))
		assert.NoError(t, srv.Stop(context.Background()))
	})
}
