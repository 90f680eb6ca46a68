// Package memory is a mutex-guarded, map-backed implementation of the
// store interfaces. It backs tests and local development; semantics
// mirror the mongo implementation, including field-level updates and
// insertion-ordered event reads.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/tapewise/backend/internal/model/eventlog"
	"github.com/tapewise/backend/internal/model/transcript"
	"github.com/tapewise/backend/internal/store"
)

// Store keeps all three collections in process memory.
type Store struct {
	mu       sync.RWMutex
	messages map[string]*transcript.Message
	events   []eventlog.Event
	eventIDs map[string]int
	locators map[string]transcript.ObjectLocator
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		messages: make(map[string]*transcript.Message),
		eventIDs: make(map[string]int),
		locators: make(map[string]transcript.ObjectLocator),
	}
}

func (s *Store) Messages() store.Messages { return (*messages)(s) }
func (s *Store) Events() store.Events     { return (*events)(s) }
func (s *Store) Locators() store.Locators { return (*locators)(s) }

// SeedMessage inserts or replaces a message document. Test setup only.
func (s *Store) SeedMessage(msg transcript.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := copyMessage(&msg)
	s.messages[msg.ID] = copied
}

type messages Store

func (m *messages) FindByID(_ context.Context, id string) (*transcript.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.messages[id]
	if !ok {
		return nil, &store.NotFoundError{Resource: "message", ID: id}
	}
	return copyMessage(msg), nil
}

func (m *messages) Update(_ context.Context, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return &store.NotFoundError{Resource: "message", ID: id}
	}
	for key, value := range fields {
		if err := applyField(msg, key, value); err != nil {
			return err
		}
	}
	return nil
}

// applyField mirrors a mongo $set on the known message fields.
func applyField(msg *transcript.Message, key string, value any) error {
	switch key {
	case "transcription":
		switch v := value.(type) {
		case *transcript.Transcription:
			msg.Transcription = copyTranscription(v)
		case nil:
			msg.Transcription = nil
		default:
			return fmt.Errorf("memory store: transcription field got %T", value)
		}
	case "transcription_text":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("memory store: transcription_text field got %T", value)
		}
		msg.TranscriptionText = s
	case "text":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("memory store: text field got %T", value)
		}
		msg.Text = s
	case "transcription_chunks":
		chunks, ok := value.([]transcript.LegacyChunk)
		if !ok {
			return fmt.Errorf("memory store: transcription_chunks field got %T", value)
		}
		msg.Chunks = slices.Clone(chunks)
	case "categorization":
		msg.Categorization = cloneValue(value)
	case "categorization_data":
		msg.CategorizationData = cloneValue(value)
	case "processors_data":
		switch v := value.(type) {
		case map[string]any:
			msg.ProcessorsData = cloneValue(v).(map[string]any)
		case nil:
			msg.ProcessorsData = nil
		default:
			return fmt.Errorf("memory store: processors_data field got %T", value)
		}
	case "categorization_status":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("memory store: categorization_status field got %T", value)
		}
		msg.CategorizationStatus = s
	case "updated_at":
		ts, ok := value.(time.Time)
		if !ok {
			return fmt.Errorf("memory store: updated_at field got %T", value)
		}
		msg.UpdatedAt = ts
	default:
		return fmt.Errorf("memory store: unknown message field %q", key)
	}
	return nil
}

type events Store

func (e *events) Insert(_ context.Context, event *eventlog.Event) (*eventlog.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	stored := *event
	if stored.ID == "" {
		stored.ID = bson.NewObjectID().Hex()
	}
	if _, exists := e.eventIDs[stored.ID]; exists {
		return nil, &store.ConflictError{Message: fmt.Sprintf("event %q already exists", stored.ID)}
	}
	e.eventIDs[stored.ID] = len(e.events)
	e.events = append(e.events, stored)
	copied := stored
	return &copied, nil
}

func (e *events) FindByID(_ context.Context, id string) (*eventlog.Event, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	idx, ok := e.eventIDs[id]
	if !ok {
		return nil, &store.NotFoundError{Resource: "event", ID: id}
	}
	copied := e.events[idx]
	return &copied, nil
}

func (e *events) List(_ context.Context, filter store.EventFilter) ([]eventlog.Event, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []eventlog.Event
	for _, event := range e.events {
		if event.SessionID != filter.SessionID {
			continue
		}
		if filter.MessageID != "" && event.MessageID != filter.MessageID {
			continue
		}
		if len(filter.EventNames) > 0 && !slices.Contains(filter.EventNames, event.EventName) {
			continue
		}
		out = append(out, event)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

type locators Store

func (l *locators) Upsert(_ context.Context, locator transcript.ObjectLocator) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.locators[locator.Oid]; ok && existing.ParentID != locator.ParentID {
		return &store.ConflictError{
			Message: fmt.Sprintf("oid %s already bound to %s", locator.Oid, existing.ParentID),
		}
	}
	l.locators[locator.Oid] = locator
	return nil
}

func (l *locators) FindByOid(_ context.Context, oidValue string) (*transcript.ObjectLocator, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	locator, ok := l.locators[oidValue]
	if !ok {
		return nil, &store.NotFoundError{Resource: "object locator", ID: oidValue}
	}
	copied := locator
	return &copied, nil
}

func copyMessage(msg *transcript.Message) *transcript.Message {
	copied := *msg
	copied.Transcription = copyTranscription(msg.Transcription)
	copied.Chunks = slices.Clone(msg.Chunks)
	copied.Categorization = cloneValue(msg.Categorization)
	copied.CategorizationData = cloneValue(msg.CategorizationData)
	if msg.ProcessorsData != nil {
		copied.ProcessorsData = cloneValue(msg.ProcessorsData).(map[string]any)
	}
	return &copied
}

func copyTranscription(t *transcript.Transcription) *transcript.Transcription {
	if t == nil {
		return nil
	}
	copied := *t
	copied.Segments = slices.Clone(t.Segments)
	if t.Usage != nil {
		usage := *t.Usage
		copied.Usage = &usage
	}
	return &copied
}

// cloneValue deep-copies the JSON-ish values legacy containers are made of.
func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
