package api

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/wcstore/pkg/api/handlers"
	"github.com/marmos91/wcstore/pkg/metrics"
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

func TestRouterMetricsDisabled(t *testing.T) {
	metrics.Reset()
	srv := httptest.NewServer(NewRouter(handlers.Components{}))
	defer srv.Close()

	code, body := get(t, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "wcstore")

	code, _ = get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRouterMetricsEnabled(t *testing.T) {
	metrics.InitRegistry()
	defer metrics.Reset()

	srv := httptest.NewServer(NewRouter(handlers.Components{}))
	defer srv.Close()

	code, body := get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "go_goroutines")
}

func TestServerStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := NewServer(Config{}, handlers.Components{})
	assert.Equal(t, 9090, s.Port())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health/")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
