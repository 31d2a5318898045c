package model

import "errors"

// Sentinel kinds shared by every layer. Callers classify with errors.Is.
var (
	// Validation.
	ErrValidation       = errors.New("validation failed")
	ErrInvalidTimeframe = wrapKind(ErrValidation, "invalid timeframe")
	ErrInvalidScore     = wrapKind(ErrValidation, "invalid score")
	ErrInvalidLimit     = wrapKind(ErrValidation, "invalid limit")

	// NotFound.
	ErrNotFound      = errors.New("not found")
	ErrGameNotFound  = wrapKind(ErrNotFound, "game not found")
	ErrUserNotFound  = wrapKind(ErrNotFound, "user not found")
	ErrTableNotFound = wrapKind(ErrNotFound, "leaderboard not found")
	ErrEntryNotFound = wrapKind(ErrNotFound, "user not found in leaderboard")

	// Conflict: concurrent writers kept winning until retries ran out.
	ErrConflict = errors.New("leaderboard update conflict")

	// Authorization.
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("forbidden")

	// Collaborator: identity or catalog gateway failure.
	ErrCollaborator = errors.New("collaborator unavailable")
)

// kindError is a sentinel that also matches its parent kind.
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func wrapKind(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}
