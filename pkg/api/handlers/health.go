// Package handlers implements the status endpoints.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/marmos91/wcstore/pkg/kevent"
	"github.com/marmos91/wcstore/pkg/wc/pristine"
	"github.com/marmos91/wcstore/pkg/wc/store"
)

// Components are the parts of a running process the probes inspect. Any
// of them may be nil.
type Components struct {
	Database *store.GORMStore
	Pristine *pristine.Store
	Kevent   *kevent.Registry
}

// HealthHandler handles the /health endpoints.
type HealthHandler struct {
	components Components
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(components Components) *HealthHandler {
	return &HealthHandler{components: components}
}

// Liveness handles GET /health. It succeeds while the server responds.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "wcstore",
	}))
}

// Readiness handles GET /health/ready: 200 once the database and the
// pristine store are open, 503 otherwise.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.components.Database == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("database not initialized"))
		return
	}
	if h.components.Pristine == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("pristine store not initialized"))
		return
	}

	data := map[string]any{
		"database": string(h.components.Database.Config().Type),
		"pristine": h.components.Pristine.Backend().Name(),
	}
	if h.components.Kevent != nil {
		data["outstanding_timers"] = h.components.Kevent.OutstandingTimers()
	}
	writeJSON(w, http.StatusOK, healthyResponse(data))
}

// StoreHealth is the health of one store.
type StoreHealth struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Stores handles GET /health/stores: 200 when every configured store
// answers its health check, 503 otherwise.
func (h *HealthHandler) Stores(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var stores []StoreHealth
	if db := h.components.Database; db != nil {
		stores = append(stores, check(ctx, string(db.Config().Type), "database", db.Healthcheck))
	}
	if p := h.components.Pristine; p != nil {
		stores = append(stores, check(ctx, p.Backend().Name(), "pristine", p.HealthCheck))
	}
	if len(stores) == 0 {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("no stores configured"))
		return
	}

	for _, s := range stores {
		if s.Status != "healthy" {
			writeJSON(w, http.StatusServiceUnavailable, unhealthyResponseWithData(stores))
			return
		}
	}
	writeJSON(w, http.StatusOK, healthyResponse(stores))
}

func check(ctx context.Context, name, kind string, fn func(context.Context) error) StoreHealth {
	start := time.Now()
	err := fn(ctx)
	health := StoreHealth{
		Name:    name,
		Type:    kind,
		Status:  "healthy",
		Latency: time.Since(start).String(),
	}
	if err != nil {
		health.Status = "unhealthy"
		health.Error = err.Error()
	}
	return health
}
