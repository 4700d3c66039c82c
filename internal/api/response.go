package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/pulsewatch/pulsewatch/internal/engine"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// ListResponse is the standard paginated list envelope.
type ListResponse struct {
	Data       interface{} `json:"data"`
	Page       int         `json:"page"`
	PerPage    int         `json:"per_page"`
	Total      int64       `json:"total"`
	TotalPages int         `json:"total_pages"`
}

// RespondJSON writes data as a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("Failed to encode JSON response: %v", err)
		}
	}
}

// RespondList writes a paginated list response.
func RespondList(w http.ResponseWriter, data interface{}, p PaginationParams, total int64) {
	RespondJSON(w, http.StatusOK, ListResponse{
		Data:       data,
		Page:       p.Page,
		PerPage:    p.PerPage,
		Total:      total,
		TotalPages: p.TotalPages(total),
	})
}

// RespondError writes a standard error response.
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{Error: message})
}

// RespondErrorWithCode writes an error response with a machine-readable code.
func RespondErrorWithCode(w http.ResponseWriter, status int, code, message string) {
	RespondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// RespondValidationError writes field-level validation errors as a 422 response.
func RespondValidationError(w http.ResponseWriter, fieldErrors map[string]string) {
	RespondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
		Error:   "Validation failed",
		Code:    "validation_error",
		Details: fieldErrors,
	})
}

// RespondEngineError maps the engine error taxonomy onto HTTP statuses:
// not-found is 404, conflict is 409, validation is 422, anything else 500.
func RespondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		RespondErrorWithCode(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, engine.ErrConflict):
		RespondErrorWithCode(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, engine.ErrValidation):
		RespondErrorWithCode(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
	default:
		log.Printf("Internal error: %v", err)
		RespondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// RespondNoContent writes a 204 No Content response with no body.
func RespondNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
