package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/grouplog-io/grouplog-engine/pkg/apperrors"
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

// ServiceError maps service-layer sentinel errors to HTTP responses. The
// response body never carries wrapped error text for 5xx classes; connection
// details stay in the server log.
func ServiceError(w http.ResponseWriter, err error) error {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return ErrorResponse(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, apperrors.ErrMalformedConnectionString):
		return ErrorResponse(w, http.StatusBadRequest, "malformed_connection_string", err.Error())
	case errors.Is(err, apperrors.ErrAccessDenied):
		return ErrorResponse(w, http.StatusForbidden, "access_denied", "You do not have access to this group")
	case errors.Is(err, apperrors.ErrNotFound):
		return ErrorResponse(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, apperrors.ErrNoDatabaseConfigured):
		return ErrorResponse(w, http.StatusConflict, "no_database_configured", "No log database is configured for this group")
	case errors.Is(err, apperrors.ErrDatabaseUnavailable):
		return ErrorResponse(w, http.StatusServiceUnavailable, "database_unavailable", "The group log database is unreachable")
	case errors.Is(err, apperrors.ErrSecretUnreadable):
		return ErrorResponse(w, http.StatusInternalServerError, "secret_unreadable", "Stored database credentials cannot be decrypted")
	case errors.Is(err, apperrors.ErrQueryFailed):
		return ErrorResponse(w, http.StatusInternalServerError, "query_failed", "Log query failed")
	default:
		return ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}
