package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/wcstore/pkg/kevent"
	"github.com/marmos91/wcstore/pkg/wc/pristine"
	"github.com/marmos91/wcstore/pkg/wc/pristine/memory"
	"github.com/marmos91/wcstore/pkg/wc/store"
)

func newComponents(t *testing.T) Components {
	t.Helper()
	st, err := store.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	return Components{
		Database: st,
		Pristine: pristine.New(memory.New(), nil),
		Kevent:   kevent.NewRegistry(kevent.RegistryOptions{}),
	}
}

func serve(t *testing.T, fn http.HandlerFunc, path string) (int, Response) {
	t.Helper()
	w := httptest.NewRecorder()
	fn(w, httptest.NewRequest(http.MethodGet, path, nil))

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return w.Code, resp
}

func TestLiveness(t *testing.T) {
	code, resp := serve(t, NewHealthHandler(Components{}).Liveness, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, map[string]any{"service": "wcstore"}, resp.Data)
}

func TestReadinessWithoutDatabase(t *testing.T) {
	code, resp := serve(t, NewHealthHandler(Components{}).Readiness, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "database not initialized", resp.Error)
}

func TestReadiness(t *testing.T) {
	code, resp := serve(t, NewHealthHandler(newComponents(t)).Readiness, "/health/ready")
	require.Equal(t, http.StatusOK, code)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "sqlite", data["database"])
	assert.Equal(t, "memory", data["pristine"])
	assert.EqualValues(t, 0, data["outstanding_timers"])
}

func TestStores(t *testing.T) {
	c := newComponents(t)
	h := NewHealthHandler(c)

	code, resp := serve(t, h.Stores, "/health/stores")
	require.Equal(t, http.StatusOK, code)
	stores, ok := resp.Data.([]any)
	require.True(t, ok)
	assert.Len(t, stores, 2)

	require.NoError(t, c.Pristine.Close())
	code, resp = serve(t, h.Stores, "/health/stores")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", resp.Status)
}

func TestStoresWithoutComponents(t *testing.T) {
	code, resp := serve(t, NewHealthHandler(Components{}).Stores, "/health/stores")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "no stores configured", resp.Error)
}
