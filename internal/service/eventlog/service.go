// Package eventlog appends to and reads the session audit ledger.
package eventlog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tapewise/backend/internal/model/eventlog"
	"github.com/tapewise/backend/internal/store"
)

var (
	ErrSessionRequired   = errors.New("event session_id is required")
	ErrEventNameRequired = errors.New("event event_name is required")
)

const (
	defaultReadLimit = 200
	maxReadLimit     = 1000
)

// Service validates, classifies, and persists log events.
type Service struct {
	events store.Events
}

// NewService builds the event log over the session log collection.
func NewService(events store.Events) *Service {
	return &Service{events: events}
}

// Append stores one event and returns it with its assigned id. The
// event group is always derived from the name; server time, event
// version, and a correlation id are stamped when the caller left them
// empty. Stored events are immutable.
func (s *Service) Append(ctx context.Context, event eventlog.Event) (*eventlog.Event, error) {
	if event.SessionID == "" {
		return nil, ErrSessionRequired
	}
	if event.EventName == "" {
		return nil, ErrEventNameRequired
	}

	event.EventGroup = eventlog.ClassifyGroup(event.EventName)
	if event.EventTime.IsZero() {
		event.EventTime = time.Now().UTC()
	}
	if event.EventVersion == 0 {
		event.EventVersion = eventlog.CurrentEventVersion
	}
	if event.CorrelationID == "" {
		event.CorrelationID = uuid.NewString()
	}
	return s.events.Insert(ctx, &event)
}

// ReadOptions narrows a log read.
type ReadOptions struct {
	MessageID  string
	EventNames []string
	Limit      int
}

// Read returns a session's events in insertion order.
func (s *Service) Read(ctx context.Context, sessionID string, opts ReadOptions) ([]eventlog.Event, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	if limit > maxReadLimit {
		limit = maxReadLimit
	}
	return s.events.List(ctx, store.EventFilter{
		SessionID:  sessionID,
		MessageID:  opts.MessageID,
		EventNames: opts.EventNames,
		Limit:      limit,
	})
}

// Get loads a single event by internal id.
func (s *Service) Get(ctx context.Context, eventID string) (*eventlog.Event, error) {
	return s.events.FindByID(ctx, eventID)
}
