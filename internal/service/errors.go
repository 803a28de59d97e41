package service

import "errors"

// Error taxonomy surfaced to handlers. Handlers map these with errors.Is onto
// the response envelope; anything else becomes SERVICE_ERROR. Failures inside
// the pipeline never pass through here; they land on the job record.
var (
	// ErrNotFound: entity missing or soft-deleted.
	ErrNotFound = errors.New("not found")
	// ErrForbidden: entity exists but belongs to another organization.
	ErrForbidden = errors.New("access denied")
	// ErrUnprocessable: business precondition unmet.
	ErrUnprocessable = errors.New("unprocessable")
	// ErrConflict: duplicate active job for a source.
	ErrConflict = errors.New("conflict")
	// ErrInvalidState: operation not valid in the entity's current state.
	ErrInvalidState = errors.New("invalid state")
	// ErrInvalidCredentials: login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailTaken: register with an existing email.
	ErrEmailTaken = errors.New("email already registered")
)
