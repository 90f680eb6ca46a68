// Package store declares the persistence seams the core depends on and
// the domain error types every layer shares. Implementations live in
// store/mongo (production) and store/memory (tests, local dev).
package store

import (
	"context"

	"github.com/tapewise/backend/internal/model/eventlog"
	"github.com/tapewise/backend/internal/model/transcript"
)

// Messages is findOne/updateOne-style access to the messages collection,
// keyed by 24-hex internal ids. Update sets exactly the given fields and
// leaves every other field untouched; there is no optimistic-concurrency
// token, last writer wins on the fields it touches.
type Messages interface {
	FindByID(ctx context.Context, id string) (*transcript.Message, error)
	Update(ctx context.Context, id string, fields map[string]any) error
}

// Events is the append-only session log collection. Inserted events are
// immutable; there is no update or delete.
type Events interface {
	Insert(ctx context.Context, event *eventlog.Event) (*eventlog.Event, error)
	FindByID(ctx context.Context, id string) (*eventlog.Event, error)
	List(ctx context.Context, filter EventFilter) ([]eventlog.Event, error)
}

// EventFilter narrows a session log read. Events come back in insertion
// order.
type EventFilter struct {
	SessionID  string
	MessageID  string
	EventNames []string
	Limit      int
}

// Locators is the append/upsert-only object locator directory.
// Upsert refreshes an existing entry idempotently but returns
// ConflictError when the oid is already bound to a different parent.
type Locators interface {
	Upsert(ctx context.Context, locator transcript.ObjectLocator) error
	FindByOid(ctx context.Context, oidValue string) (*transcript.ObjectLocator, error)
}

// Store bundles the three collections behind one handle.
type Store interface {
	Messages() Messages
	Events() Events
	Locators() Locators
}
