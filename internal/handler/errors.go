package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-docstore/internal/domain"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// MessageResponse is the JSON body of operations without a resource result.
type MessageResponse struct {
	Message string `json:"message"`
}

// writeJSON writes v as a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps a service error to an HTTP status code.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, domain.ErrPayloadTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrMalformedID):
		// Kept as 500 for compatibility with existing clients.
		return http.StatusInternalServerError
	case errors.Is(err, domain.ErrBadRequest), errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes the response for err. Client errors carry the
// error text; server errors carry fallback with the error text as details.
func writeServiceError(w http.ResponseWriter, logger zerolog.Logger, err error, fallback string) {
	status := statusFor(err)

	switch status {
	case http.StatusRequestEntityTooLarge:
		writeJSON(w, status, ErrorResponse{Error: "File too large", Details: err.Error()})
	case http.StatusServiceUnavailable:
		writeJSON(w, status, ErrorResponse{Error: "Storage not initialized"})
	case http.StatusBadRequest:
		if errors.Is(err, domain.ErrNoFile) {
			writeJSON(w, status, ErrorResponse{Error: "No file uploaded"})
			return
		}
		writeJSON(w, status, ErrorResponse{Error: err.Error()})
	case http.StatusNotFound:
		writeJSON(w, status, ErrorResponse{Error: notFoundMessage(err)})
	default:
		logger.Error().Err(err).Msg(fallback)
		writeJSON(w, status, ErrorResponse{Error: fallback, Details: err.Error()})
	}
}

func notFoundMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrDocumentNotFound):
		return "PDF not found"
	case errors.Is(err, domain.ErrBlobNotFound):
		return "File not found"
	default:
		return "Not found"
	}
}
