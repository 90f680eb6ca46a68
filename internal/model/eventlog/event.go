// Package eventlog defines the session audit ledger's event shape.
// Events are append-only and self-describing: each one carries enough
// information (target, diff, action) for a generic caller to render it
// and, when reversible, offer an undo without hardcoding event types.
package eventlog

import (
	"strings"
	"time"
)

// Event groups, classified from the event name prefix.
const (
	GroupSession        = "session"
	GroupMessageIngest  = "message_ingest"
	GroupTranscript     = "transcript"
	GroupCategorization = "categorization"
	GroupNotifyWebhook  = "notify_webhook"
	GroupFileFlow       = "file_flow"
	GroupSystem         = "system"
)

// Well-known event names emitted by the transcript mutation operations.
const (
	EventSegmentEdited   = "transcript_segment_edited"
	EventSegmentDeleted  = "transcript_segment_deleted"
	EventSegmentRestored = "transcript_segment_restored"

	// Names written by pre-segment versions of the system. Still accepted
	// for rollback so old ledger entries stay reversible.
	EventLegacyChunkEdited  = "chunk_edited"
	EventLegacyChunkDeleted = "chunk_deleted"

	EventCategorizationRetryEnqueued = "categorization_chunk_retry_enqueued"
)

// ActionRollback marks an event as reversible via the rollback endpoint.
const ActionRollback = "rollback"

// CurrentEventVersion is stamped on newly appended events.
const CurrentEventVersion = 2

// Event is one immutable row in the session log collection.
type Event struct {
	ID            string         `bson:"_id,omitempty" json:"id"`
	SessionID     string         `bson:"session_id" json:"sessionId"`
	MessageID     string         `bson:"message_id,omitempty" json:"messageId,omitempty"`
	ProjectID     string         `bson:"project_id,omitempty" json:"projectId,omitempty"`
	EventName     string         `bson:"event_name" json:"eventName"`
	EventGroup    string         `bson:"event_group" json:"eventGroup"`
	Status        string         `bson:"status,omitempty" json:"status,omitempty"`
	EventTime     time.Time      `bson:"event_time" json:"eventTime"`
	Actor         string         `bson:"actor,omitempty" json:"actor,omitempty"`
	Target        *Target        `bson:"target,omitempty" json:"target,omitempty"`
	Diff          *Diff          `bson:"diff,omitempty" json:"diff,omitempty"`
	Source        string         `bson:"source,omitempty" json:"source,omitempty"`
	Action        *Action        `bson:"action,omitempty" json:"action,omitempty"`
	Reason        string         `bson:"reason,omitempty" json:"reason,omitempty"`
	CorrelationID string         `bson:"correlation_id,omitempty" json:"correlationId,omitempty"`
	SourceEventID string         `bson:"source_event_id,omitempty" json:"sourceEventId,omitempty"`
	IsReplay      bool           `bson:"is_replay,omitempty" json:"isReplay,omitempty"`
	EventVersion  int            `bson:"event_version" json:"eventVersion"`
	Metadata      map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

// Target identifies the entity an event acted on.
type Target struct {
	EntityType string `bson:"entity_type,omitempty" json:"entityType,omitempty"`
	EntityOid  string `bson:"entity_oid,omitempty" json:"entityOid,omitempty"`
	Path       string `bson:"path,omitempty" json:"path,omitempty"`
	Stage      string `bson:"stage,omitempty" json:"stage,omitempty"`
}

// Diff records the before/after of a destructive mutation. A delete
// stores the full segment as old_value and null as new_value so a
// rollback can reconstruct it without consulting anything else.
type Diff struct {
	Op       string `bson:"op,omitempty" json:"op,omitempty"`
	OldValue any    `bson:"old_value" json:"oldValue"`
	NewValue any    `bson:"new_value" json:"newValue"`
}

// Action describes how an event can be reversed, if at all.
type Action struct {
	Type      string         `bson:"type,omitempty" json:"type,omitempty"`
	Available bool           `bson:"available" json:"available"`
	Handler   string         `bson:"handler,omitempty" json:"handler,omitempty"`
	Args      map[string]any `bson:"args,omitempty" json:"args,omitempty"`
}

// ClassifyGroup derives the event group from the event name prefix.
// Unknown names land in the system group.
func ClassifyGroup(eventName string) string {
	switch {
	case strings.HasPrefix(eventName, "session_"):
		return GroupSession
	case strings.HasPrefix(eventName, "message_"):
		return GroupMessageIngest
	case strings.HasPrefix(eventName, "transcript_"), strings.HasPrefix(eventName, "chunk_"):
		return GroupTranscript
	case strings.HasPrefix(eventName, "categorization_"):
		return GroupCategorization
	case strings.HasPrefix(eventName, "notify_"), strings.HasPrefix(eventName, "webhook_"):
		return GroupNotifyWebhook
	case strings.HasPrefix(eventName, "file_"):
		return GroupFileFlow
	default:
		return GroupSystem
	}
}

// Reversible reports whether an event name may be rolled back.
// Replay events are never reversible regardless of name.
func Reversible(eventName string) bool {
	switch eventName {
	case EventSegmentEdited, EventSegmentDeleted, EventLegacyChunkEdited, EventLegacyChunkDeleted:
		return true
	}
	return false
}
