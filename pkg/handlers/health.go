package handlers

import (
	"net/http"
	"runtime"

	"go.uber.org/zap"

	"github.com/fedsearch-io/fedsearch-engine/pkg/adapters/datasource"
	"github.com/fedsearch-io/fedsearch-engine/pkg/config"
)

// PingResponse reports service identity plus how many sources currently
// have live pools, so a probe can tell an empty engine from a broken one.
type PingResponse struct {
	Status      string `json:"status"`
	Service     string `json:"service"`
	Version     string `json:"version"`
	Environment string `json:"environment"`
	GoVersion   string `json:"go_version"`
	Sources     int    `json:"sources"`
}

// HealthHandler serves the liveness and service-info endpoints.
type HealthHandler struct {
	cfg    *config.Config
	pools  *datasource.PoolManager
	logger *zap.Logger
}

func NewHealthHandler(cfg *config.Config, pools *datasource.PoolManager, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, pools: pools, logger: logger}
}

func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health is the bare liveness probe.
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ping returns service identity and registered-source count.
func (h *HealthHandler) Ping(w http.ResponseWriter, _ *http.Request) {
	resp := PingResponse{
		Status:      "ok",
		Service:     "fedsearch-engine",
		Version:     h.cfg.Version,
		Environment: h.cfg.Env,
		GoVersion:   runtime.Version(),
		Sources:     len(h.pools.Registered()),
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("failed to encode ping response", zap.Error(err))
	}
}
