// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across store/service layers.
var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates the admission check denied the operation.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrBanned indicates the client IP carries an enforced ban record.
	ErrBanned = errors.New("client is banned")

	// ErrValidation indicates input rejected by validation or sanitization.
	ErrValidation = errors.New("validation failed")

	// ErrAlreadyExists indicates a document with the same key already exists.
	ErrAlreadyExists = errors.New("already exists")
)

// Federated sign-in failure causes surfaced by the identity provider.
var (
	// ErrPopupBlocked indicates the provider popup was blocked by the browser.
	ErrPopupBlocked = errors.New("popup blocked")

	// ErrPopupClosed indicates the user closed the provider popup before completing sign-in.
	ErrPopupClosed = errors.New("popup closed by user")

	// ErrUnauthorizedDomain indicates the requesting domain is not approved for federated sign-in.
	ErrUnauthorizedDomain = errors.New("unauthorized domain")

	// ErrOperationNotAllowed indicates the federated provider is disabled for this project.
	ErrOperationNotAllowed = errors.New("operation not allowed")
)
