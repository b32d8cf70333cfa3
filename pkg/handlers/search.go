package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fedsearch-io/fedsearch-engine/pkg/models"
	"github.com/fedsearch-io/fedsearch-engine/pkg/search"
)

// SearchRequest is the wire form of a federated search.
type SearchRequest struct {
	Text    string          `json:"text"`
	Mode    string          `json:"mode"`
	Sources []uuid.UUID     `json:"sources"`
	Tables  []string        `json:"tables,omitempty"`
	Columns []string        `json:"columns,omitempty"`
	Filters []models.Filter `json:"filters,omitempty"`
	Limit   int             `json:"limit,omitempty"`
	Offset  int             `json:"offset,omitempty"`
}

// SearchHandler exposes the search and cache administration endpoints.
type SearchHandler struct {
	orchestrator *search.Orchestrator
	logger       *zap.Logger
}

// NewSearchHandler creates a search handler.
func NewSearchHandler(orchestrator *search.Orchestrator, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{orchestrator: orchestrator, logger: logger}
}

// RegisterRoutes registers the search routes on the given mux.
func (h *SearchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/search", h.Search)
	mux.HandleFunc("DELETE /api/cache", h.InvalidateCache)
	mux.HandleFunc("DELETE /api/cache/sources/{id}", h.InvalidateSourceCache)
}

// Search handles POST /api/search.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	mode := models.SearchMode(req.Mode)
	if req.Mode == "" {
		mode = models.ModeNatural
	}

	query := &models.SearchQuery{
		RawText: req.Text,
		Mode:    mode,
		Sources: req.Sources,
		Tables:  req.Tables,
		Columns: req.Columns,
		Filters: req.Filters,
		Limit:   req.Limit,
		Offset:  req.Offset,
	}

	resp, err := h.orchestrator.Search(r.Context(), query)
	if err != nil {
		_ = writeError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode search response", zap.Error(err))
	}
}

// InvalidateCache handles DELETE /api/cache (full flush).
func (h *SearchHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	removed, err := h.orchestrator.InvalidateCache(r.Context(), nil)
	if err != nil {
		_ = writeError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

// InvalidateSourceCache handles DELETE /api/cache/sources/{id}.
func (h *SearchHandler) InvalidateSourceCache(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid source id")
		return
	}

	removed, err := h.orchestrator.InvalidateCache(r.Context(), &id)
	if err != nil {
		_ = writeError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}
