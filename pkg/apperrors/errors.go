// Package apperrors defines the sentinel errors shared across the engine.
// Handlers map these to HTTP status codes; services wrap them with context
// using fmt.Errorf("...: %w", err) so callers can match with errors.Is.
package apperrors

import "errors"

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAccessDenied indicates the caller is not a member of the group.
	// Surfaced generically so callers cannot probe for group existence.
	ErrAccessDenied = errors.New("access denied")

	// ErrNoDatabaseConfigured indicates the group has no enabled external
	// database. Reads treat this as an empty result; writes treat it as an error.
	ErrNoDatabaseConfigured = errors.New("no database configured for group")

	// ErrMalformedConnectionString indicates the connection descriptor could
	// not be parsed into host/port/database/user.
	ErrMalformedConnectionString = errors.New("malformed connection string")

	// ErrSecretUnreadable indicates a stored password was encrypted with a
	// different key or the ciphertext is corrupt.
	ErrSecretUnreadable = errors.New("database password was encrypted with a different key")

	// ErrDatabaseUnavailable indicates the group's external database could not
	// be reached or timed out. Retryable by the caller.
	ErrDatabaseUnavailable = errors.New("database unavailable")

	// ErrValidation indicates a request payload failed validation.
	ErrValidation = errors.New("validation failed")

	// ErrQueryFailed indicates the external database rejected a query, or a
	// query was rejected before execution (e.g. sort key outside the whitelist).
	ErrQueryFailed = errors.New("query failed")
)
