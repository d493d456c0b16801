package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nft-repin/internal/indexer"
	"github.com/nft-repin/internal/pinning"
	"github.com/nft-repin/internal/service"
	"github.com/nft-repin/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// Common error codes
const (
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeAuthFailed         = "PROVIDER_AUTH_FAILED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// mapError maps domain errors to HTTP status codes.
func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, service.ErrRunNotFound):
		return http.StatusNotFound, ErrCodeNotFound, err.Error()
	case errors.Is(err, service.ErrRunActive):
		return http.StatusConflict, ErrCodeConflict, err.Error()
	}

	var fetchErr *indexer.FetchError
	if errors.As(err, &fetchErr) {
		switch fetchErr.Kind {
		case indexer.ErrKindInvalidAddress:
			return http.StatusBadRequest, ErrCodeInvalidInput, fetchErr.Message
		case indexer.ErrKindNetworkFailure:
			return http.StatusBadGateway, ErrCodeServiceUnavailable, fetchErr.Message
		}
	}

	var pinErr *pinning.PinError
	if errors.As(err, &pinErr) {
		switch pinErr.Kind {
		case pinning.ErrKindAuthFailed:
			return http.StatusUnauthorized, ErrCodeAuthFailed, pinErr.Message
		case pinning.ErrKindRejected:
			return http.StatusBadRequest, ErrCodeInvalidInput, pinErr.Message
		default:
			return http.StatusBadGateway, ErrCodeServiceUnavailable, pinErr.Message
		}
	}

	return http.StatusInternalServerError, ErrCodeInternalError, "an internal error occurred"
}

// respondMappedError maps a domain error and writes the response
func respondMappedError(w http.ResponseWriter, err error) {
	status, code, message := mapError(err)
	respondError(w, status, code, message, nil)
}
