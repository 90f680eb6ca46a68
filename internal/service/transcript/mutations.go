package transcript

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/tapewise/backend/internal/model/eventlog"
	"github.com/tapewise/backend/internal/model/transcript"
	"github.com/tapewise/backend/internal/notify"
	"github.com/tapewise/backend/internal/oid"
	eventlogsvc "github.com/tapewise/backend/internal/service/eventlog"
	"github.com/tapewise/backend/internal/service/locator"
	"github.com/tapewise/backend/internal/store"
)

const eventSource = "transcript_api"

// Operations coordinates segment edits, deletes, and rollbacks across the
// reconciler, the locator directory, the event log, and the notifier.
// Ordering discipline on every mutation: document write first, log write
// second, best-effort notifications last. No cross-write atomicity is
// assumed; a crash between the steps leaves a document write without a
// matching log entry, which is an accepted, documented gap.
type Operations struct {
	messages   store.Messages
	reconciler *Reconciler
	locators   *locator.Service
	ledger     *eventlogsvc.Service
	notifier   notify.Notifier
}

// NewOperations wires the mutation entry points.
func NewOperations(messages store.Messages, reconciler *Reconciler, locators *locator.Service, ledger *eventlogsvc.Service, notifier notify.Notifier) *Operations {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Operations{
		messages:   messages,
		reconciler: reconciler,
		locators:   locators,
		ledger:     ledger,
		notifier:   notifier,
	}
}

// Edit replaces a segment's text. Editing always revives: a tombstoned
// segment comes back with is_deleted=false. The policy is deliberate —
// an operator editing text they can see expects the text to be live.
func (o *Operations) Edit(ctx context.Context, sessionID, actor, messageID, segmentOid, newText string) (*transcript.Message, *eventlog.Event, error) {
	msg, seg, err := o.resolveSegment(ctx, sessionID, messageID, segmentOid)
	if err != nil {
		return nil, nil, err
	}
	oldText := seg.Text

	seg.Text = newText
	seg.IsDeleted = false
	fields := o.recomputeTranscript(msg, *seg)
	fields["categorization_status"] = transcript.CategorizationRetryPending
	if err := o.writeMessage(ctx, msg, fields); err != nil {
		return nil, nil, err
	}

	event := o.newSegmentEvent(eventlog.EventSegmentEdited, sessionID, actor, msg, segmentOid)
	event.Diff = &eventlog.Diff{Op: "replace", OldValue: oldText, NewValue: newText}
	stored, err := o.ledger.Append(ctx, event)
	if err != nil {
		return nil, nil, err
	}

	o.armCategorizationRetry(ctx, sessionID, actor, msg, "auto_after_edit:"+segmentOid)
	o.notifyBestEffort(ctx, sessionID, messageID)
	return msg, stored, nil
}

// Delete tombstones a segment and purges denormalized analysis rows
// overlapping its time range. The segment is never physically removed.
func (o *Operations) Delete(ctx context.Context, sessionID, actor, messageID, segmentOid string) (*transcript.Message, *eventlog.Event, error) {
	msg, seg, err := o.resolveSegment(ctx, sessionID, messageID, segmentOid)
	if err != nil {
		return nil, nil, err
	}
	removed := *seg

	seg.IsDeleted = true
	fields := o.recomputeTranscript(msg, *seg)
	for field, value := range purgeDerivedRows(msg, removed.Start, removed.End) {
		fields[field] = value
	}
	fields["categorization_status"] = transcript.CategorizationRetryPending
	if err := o.writeMessage(ctx, msg, fields); err != nil {
		return nil, nil, err
	}

	event := o.newSegmentEvent(eventlog.EventSegmentDeleted, sessionID, actor, msg, segmentOid)
	event.Diff = &eventlog.Diff{Op: "remove", OldValue: removed, NewValue: nil}
	stored, err := o.ledger.Append(ctx, event)
	if err != nil {
		return nil, nil, err
	}

	o.armCategorizationRetry(ctx, sessionID, actor, msg, "auto_after_delete:"+segmentOid)
	o.notifyBestEffort(ctx, sessionID, messageID)
	return msg, stored, nil
}

// Rollback reverses a prior segment edit or delete from its stored diff.
// The original event stays in the ledger untouched; a new replay event
// records the restoration and references the original. Replay events are
// themselves never rollback-able.
func (o *Operations) Rollback(ctx context.Context, sessionID, actor, eventID string) (*transcript.Message, *eventlog.Event, error) {
	original, err := o.ledger.Get(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	if original.SessionID != sessionID {
		return nil, nil, &store.NotFoundError{Resource: "event", ID: eventID}
	}
	if original.IsReplay || !eventlog.Reversible(original.EventName) {
		return nil, nil, &store.UnsupportedError{EventName: original.EventName}
	}
	if original.Target == nil || original.Target.EntityOid == "" {
		return nil, nil, &store.UnsupportedError{EventName: original.EventName}
	}

	segmentOid := original.Target.EntityOid
	msg, seg, err := o.resolveSegment(ctx, sessionID, original.MessageID, segmentOid)
	if err != nil {
		return nil, nil, err
	}

	var diff eventlog.Diff
	switch original.EventName {
	case eventlog.EventSegmentEdited, eventlog.EventLegacyChunkEdited:
		priorText, ok := diffOldText(original.Diff)
		if !ok {
			return nil, nil, fmt.Errorf("event %s has no recoverable old text", eventID)
		}
		diff = eventlog.Diff{Op: "replace", OldValue: seg.Text, NewValue: priorText}
		seg.Text = priorText
	case eventlog.EventSegmentDeleted, eventlog.EventLegacyChunkDeleted:
		diff = eventlog.Diff{Op: "restore", OldValue: true, NewValue: false}
		seg.IsDeleted = false
	}

	fields := o.recomputeTranscript(msg, *seg)
	fields["categorization_status"] = transcript.CategorizationRetryPending
	if err := o.writeMessage(ctx, msg, fields); err != nil {
		return nil, nil, err
	}

	event := o.newSegmentEvent(eventlog.EventSegmentRestored, sessionID, actor, msg, segmentOid)
	event.Diff = &diff
	event.IsReplay = true
	event.SourceEventID = original.ID
	event.Action = &eventlog.Action{Available: false}
	stored, err := o.ledger.Append(ctx, event)
	if err != nil {
		return nil, nil, err
	}

	o.notifyBestEffort(ctx, sessionID, original.MessageID)
	return msg, stored, nil
}

// resolveSegment loads, verifies, reconciles, and finds the target
// segment. The session and ownership checks run before the reconciler
// may write, so a rejected mutation touches nothing — not even the
// reconciliation backfill. A message addressed through the wrong
// session reads as absent rather than leaking its existence.
func (o *Operations) resolveSegment(ctx context.Context, sessionID, messageID, segmentOid string) (*transcript.Message, *transcript.Segment, error) {
	msg, err := o.messages.FindByID(ctx, messageID)
	if err != nil {
		return nil, nil, err
	}
	if msg.SessionID != sessionID {
		return nil, nil, &store.NotFoundError{Resource: "message", ID: messageID}
	}
	if err := o.locators.VerifyOwner(ctx, segmentOid, messageID); err != nil {
		return nil, nil, err
	}
	msg, _, err = o.reconciler.Reconcile(ctx, msg)
	if err != nil {
		return nil, nil, err
	}
	idx := msg.Transcription.FindSegment(segmentOid)
	if idx < 0 {
		return nil, nil, &store.NotFoundError{Resource: "segment", ID: segmentOid}
	}
	return msg, &msg.Transcription.Segments[idx], nil
}

// recomputeTranscript writes the mutated segment back, re-derives the
// joined text, and mirrors the new text onto the matching legacy chunk.
func (o *Operations) recomputeTranscript(msg *transcript.Message, seg transcript.Segment) map[string]any {
	idx := msg.Transcription.FindSegment(seg.ID)
	if idx >= 0 {
		msg.Transcription.Segments[idx] = seg
	}
	joined := msg.Transcription.JoinedText()
	msg.Transcription.Text = joined
	msg.TranscriptionText = joined
	msg.Text = joined

	fields := map[string]any{
		"transcription":      msg.Transcription,
		"transcription_text": joined,
		"text":               joined,
	}
	if mirrorChunkText(msg, seg) {
		fields["transcription_chunks"] = msg.Chunks
	}
	return fields
}

func mirrorChunkText(msg *transcript.Message, seg transcript.Segment) bool {
	for i := range msg.Chunks {
		chunk := &msg.Chunks[i]
		if chunk.ID != "" && (chunk.ID == seg.SourceSegmentID || chunk.ID == seg.ID) {
			if chunk.Text == seg.Text {
				return false
			}
			chunk.Text = seg.Text
			return true
		}
	}
	return false
}

func (o *Operations) writeMessage(ctx context.Context, msg *transcript.Message, fields map[string]any) error {
	msg.UpdatedAt = time.Now().UTC()
	msg.CategorizationStatus = transcript.CategorizationRetryPending
	fields["updated_at"] = msg.UpdatedAt
	return o.messages.Update(ctx, msg.ID, fields)
}

// newSegmentEvent builds a transcript event with a pre-minted id so the
// rollback action can reference its own event oid.
func (o *Operations) newSegmentEvent(name, sessionID, actor string, msg *transcript.Message, segmentOid string) eventlog.Event {
	eventID := bson.NewObjectID().Hex()
	event := eventlog.Event{
		ID:        eventID,
		SessionID: sessionID,
		MessageID: msg.ID,
		ProjectID: msg.ProjectID,
		EventName: name,
		Status:    "completed",
		Actor:     actor,
		Source:    eventSource,
		Target: &eventlog.Target{
			EntityType: locator.EntityTypeSegment,
			EntityOid:  segmentOid,
			Path:       "transcription.segments",
		},
	}
	if eventlog.Reversible(name) {
		event.Action = &eventlog.Action{
			Type:      eventlog.ActionRollback,
			Available: true,
			Handler:   "transcript.rollback",
			Args:      map[string]any{"event_oid": oid.Oid{Prefix: oid.PrefixEvent, ID: eventID}.String()},
		}
	}
	return event
}

// armCategorizationRetry logs the auto-enqueued analysis retry. The write
// is best-effort: a failure here never fails the primary mutation.
func (o *Operations) armCategorizationRetry(ctx context.Context, sessionID, actor string, msg *transcript.Message, reason string) {
	_, err := o.ledger.Append(ctx, eventlog.Event{
		SessionID: sessionID,
		MessageID: msg.ID,
		ProjectID: msg.ProjectID,
		EventName: eventlog.EventCategorizationRetryEnqueued,
		Status:    "queued",
		Actor:     actor,
		Source:    eventSource,
		Reason:    reason,
	})
	if err != nil {
		log.Warn("failed to log categorization retry", "message", msg.ID, "err", err)
	}
}

func (o *Operations) notifyBestEffort(ctx context.Context, sessionID, messageID string) {
	o.notifier.MessageUpdated(ctx, sessionID, messageID)
	o.notifier.SessionChanged(ctx, sessionID)
}

func diffOldText(diff *eventlog.Diff) (string, bool) {
	if diff == nil {
		return "", false
	}
	text, ok := diff.OldValue.(string)
	return text, ok
}
