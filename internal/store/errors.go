package store

import "fmt"

// Typed domain errors. Services return these; the HTTP layer maps each
// to a status without inspecting message text.

// NotFoundError reports an absent session, message, segment, or event.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// ConflictError reports an oid whose locator is bound to a different
// parent document than the one being mutated.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// ForbiddenError reports missing session access. This core performs no
// permission checks itself; the error exists for collaborators that do.
type ForbiddenError struct{}

func (e *ForbiddenError) Error() string {
	return "access denied"
}

// UnsupportedError reports a rollback attempt on a non-reversible event.
type UnsupportedError struct {
	EventName string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("event %q is not reversible", e.EventName)
}
