package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fedsearch-io/fedsearch-engine/pkg/adapters/datasource"
	"github.com/fedsearch-io/fedsearch-engine/pkg/services"
)

// DatasourceRequest is the wire form for registering or updating a source.
// Config is the plaintext connection config; it is encrypted before it
// touches the metadata store and never echoed back.
type DatasourceRequest struct {
	Name   string         `json:"name"`
	Type   string         `json:"type"`
	Config map[string]any `json:"config"`
}

// DatasourceHandler exposes source registration and lifecycle endpoints.
type DatasourceHandler struct {
	service *services.DatasourceService
	logger  *zap.Logger
}

// NewDatasourceHandler creates a datasource handler.
func NewDatasourceHandler(service *services.DatasourceService, logger *zap.Logger) *DatasourceHandler {
	return &DatasourceHandler{service: service, logger: logger}
}

// RegisterRoutes registers the datasource routes on the given mux.
func (h *DatasourceHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/datasources", h.List)
	mux.HandleFunc("POST /api/datasources", h.Create)
	mux.HandleFunc("GET /api/datasources/{id}", h.Get)
	mux.HandleFunc("PUT /api/datasources/{id}", h.Update)
	mux.HandleFunc("DELETE /api/datasources/{id}", h.Delete)
	mux.HandleFunc("POST /api/datasources/test", h.TestConnection)
	mux.HandleFunc("GET /api/datasources/{id}/health", h.Health)
	mux.HandleFunc("POST /api/datasources/{id}/schema/refresh", h.RefreshSchema)
	mux.HandleFunc("GET /api/datasources/types", h.Types)
}

// List handles GET /api/datasources.
func (h *DatasourceHandler) List(w http.ResponseWriter, r *http.Request) {
	sources, err := h.service.List(r.Context())
	if err != nil {
		_ = writeError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, sources)
}

// Create handles POST /api/datasources.
func (h *DatasourceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req DatasourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	ds, err := h.service.Register(r.Context(), req.Name, req.Type, req.Config)
	if err != nil {
		_ = writeError(w, err)
		return
	}

	h.logger.Info("datasource created", zap.String("source_id", ds.ID.String()))
	_ = WriteJSON(w, http.StatusCreated, ds)
}

// Get handles GET /api/datasources/{id}.
func (h *DatasourceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	ds, err := h.service.Get(r.Context(), id)
	if err != nil {
		_ = writeError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, ds)
}

// Update handles PUT /api/datasources/{id}.
func (h *DatasourceHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req DatasourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	ds, err := h.service.Update(r.Context(), id, req.Name, req.Config)
	if err != nil {
		_ = writeError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, ds)
}

// Delete handles DELETE /api/datasources/{id}.
func (h *DatasourceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := h.service.Remove(r.Context(), id); err != nil {
		_ = writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TestConnection handles POST /api/datasources/test.
func (h *DatasourceHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	var req DatasourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if err := h.service.TestConnection(r.Context(), req.Type, req.Config); err != nil {
		_ = writeError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Health handles GET /api/datasources/{id}/health.
func (h *DatasourceHandler) Health(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	health, err := h.service.Health(r.Context(), id)
	if err != nil {
		_ = writeError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, health)
}

// RefreshSchema handles POST /api/datasources/{id}/schema/refresh.
func (h *DatasourceHandler) RefreshSchema(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	refreshed, err := h.service.RefreshSchema(r.Context(), id)
	if err != nil {
		_ = writeError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, refreshed)
}

// Types handles GET /api/datasources/types.
func (h *DatasourceHandler) Types(w http.ResponseWriter, r *http.Request) {
	_ = WriteJSON(w, http.StatusOK, datasource.RegisteredAdapters())
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid datasource id")
		return uuid.Nil, false
	}
	return id, true
}
