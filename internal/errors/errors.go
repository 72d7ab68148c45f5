package errors

import "errors"

// Sentinel errors shared by the service and API layers. Services wrap them
// with fmt.Errorf("%w: ...") and the API maps them to HTTP statuses with
// errors.Is, so neither layer depends on the other's details.

var (
	// ErrNotFound signifies that a requested resource could not be located.
	// This is typically mapped to a 404 Not Found HTTP status.
	ErrNotFound = errors.New("resource not found")

	// ErrValidation signifies that input data provided by a client failed
	// business rule validation.
	// This is typically mapped to a 400 Bad Request HTTP status.
	ErrValidation = errors.New("validation failed")

	// ErrConflict signifies that an operation could not be completed because
	// it conflicts with the current state of a resource, such as a second
	// turn being started on a conversation that is still answering.
	// This is typically mapped to a 409 Conflict HTTP status.
	ErrConflict = errors.New("resource conflict")

	// ErrPermission signifies that the authenticated user is not authorized
	// to perform the requested action.
	// This is typically mapped to a 403 Forbidden HTTP status.
	ErrPermission = errors.New("permission denied")

	// ErrUnauthenticated signifies a missing or invalid bearer token.
	// This is typically mapped to a 401 Unauthorized HTTP status.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrRateLimited signifies that the caller sent too many turns too quickly.
	// This is typically mapped to a 429 Too Many Requests HTTP status.
	ErrRateLimited = errors.New("too many requests")

	// ErrInternal signifies an unexpected error on the server.
	// This is typically mapped to a 500 Internal Server Error HTTP status.
	ErrInternal = errors.New("internal server error")
)
