// Package handlers exposes the engine's HTTP surface: search, datasource
// management, cache administration, and health endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fedsearch-io/fedsearch-engine/pkg/apperrors"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// writeError maps an application error to an HTTP status and writes it.
// The message comes from the error itself; all internal errors are already
// sanitized before they reach a handler.
func writeError(w http.ResponseWriter, err error) error {
	switch {
	case errors.Is(err, apperrors.ErrValidation), errors.Is(err, apperrors.ErrInvalidTarget):
		return ErrorResponse(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, apperrors.ErrNotFound), errors.Is(err, apperrors.ErrSourceNotFound):
		return ErrorResponse(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, apperrors.ErrConflict):
		return ErrorResponse(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, apperrors.ErrDeadlineExceeded):
		return ErrorResponse(w, http.StatusGatewayTimeout, "deadline_exceeded", err.Error())
	case errors.Is(err, apperrors.ErrAllSourcesFailed):
		return ErrorResponse(w, http.StatusBadGateway, "all_sources_failed", err.Error())
	default:
		return ErrorResponse(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
