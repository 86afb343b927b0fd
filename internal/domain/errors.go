package domain

import "errors"

var (
	// ErrAuth means the caller's identity token is missing or invalid.
	ErrAuth = errors.New("unauthenticated")

	// ErrNotAllowed means a non-member touched a private room. Recoverable:
	// the caller may submit a join request.
	ErrNotAllowed = errors.New("not allowed")

	// ErrValidation marks a write rejected by a model invariant.
	ErrValidation = errors.New("validation failed")

	// ErrExternalService marks a malformed or non-JSON upstream response.
	ErrExternalService = errors.New("external service failure")

	// ErrRegionNotFound means no service partition covers a coordinate.
	ErrRegionNotFound = errors.New("isochrone service region not found")

	// ErrNotFound is returned by repositories for a missing referenced row.
	ErrNotFound = errors.New("not found")
)
