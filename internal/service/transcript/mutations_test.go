package transcript_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tapewise/backend/internal/model/eventlog"
	"github.com/tapewise/backend/internal/model/transcript"
	eventlogservice "github.com/tapewise/backend/internal/service/eventlog"
	"github.com/tapewise/backend/internal/service/locator"
	transcriptservice "github.com/tapewise/backend/internal/service/transcript"
	"github.com/tapewise/backend/internal/store"
	"github.com/tapewise/backend/internal/store/memory"
)

const (
	testActor          = "usr_reviewer"
	otherTestMessageID = "64a000000000000000000002"
)

type opsEnv struct {
	docs   *memory.Store
	ledger *eventlogservice.Service
	ops    *transcriptservice.Operations
}

func newOpsEnv(t *testing.T) *opsEnv {
	t.Helper()
	docs := memory.New()
	locators := locator.NewService(docs.Locators())
	ledger := eventlogservice.NewService(docs.Events())
	reconciler := transcriptservice.NewReconciler(docs.Messages(), locators)
	ops := transcriptservice.NewOperations(docs.Messages(), reconciler, locators, ledger, nil)
	return &opsEnv{docs: docs, ledger: ledger, ops: ops}
}

// seedAndReconcile stores a message and runs one reconciliation so tests
// can address segments by their minted oids.
func (e *opsEnv) seedAndReconcile(t *testing.T, msg transcript.Message) *transcript.Message {
	t.Helper()
	e.docs.SeedMessage(msg)
	loaded, err := e.docs.Messages().FindByID(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("FindByID err: %v", err)
	}
	locators := locator.NewService(e.docs.Locators())
	reconciler := transcriptservice.NewReconciler(e.docs.Messages(), locators)
	reconciled, _, err := reconciler.Reconcile(context.Background(), loaded)
	if err != nil {
		t.Fatalf("Reconcile err: %v", err)
	}
	return reconciled
}

func helloWorldMessage() transcript.Message {
	return transcript.Message{
		ID:        testMessageID,
		SessionID: testSessionID,
		Chunks: []transcript.LegacyChunk{
			{SegmentIndex: 0, Text: "hello world", DurationSeconds: 1},
		},
	}
}

func TestEditSegment(t *testing.T) {
	env := newOpsEnv(t)
	msg := env.seedAndReconcile(t, helloWorldMessage())
	segOid := msg.Transcription.Segments[0].ID

	edited, event, err := env.ops.Edit(context.Background(), testSessionID, testActor, testMessageID, segOid, "hello edited")
	if err != nil {
		t.Fatalf("Edit err: %v", err)
	}

	if edited.Transcription.Text != "hello edited" {
		t.Fatalf("transcription text: %q", edited.Transcription.Text)
	}
	if edited.TranscriptionText != "hello edited" || edited.Text != "hello edited" {
		t.Fatal("flat text mirrors not recomputed")
	}
	if edited.CategorizationStatus != transcript.CategorizationRetryPending {
		t.Fatalf("categorization status: %q", edited.CategorizationStatus)
	}

	if event.EventName != eventlog.EventSegmentEdited {
		t.Fatalf("event name: %q", event.EventName)
	}
	if event.EventGroup != eventlog.GroupTranscript {
		t.Fatalf("event group: %q", event.EventGroup)
	}
	if event.Diff.OldValue != "hello world" || event.Diff.NewValue != "hello edited" {
		t.Fatalf("diff: %+v", event.Diff)
	}
	if event.Action == nil || !event.Action.Available || event.Action.Type != eventlog.ActionRollback {
		t.Fatalf("rollback action not advertised: %+v", event.Action)
	}
	if event.Action.Args["event_oid"] != "evt_"+event.ID {
		t.Fatalf("action args should reference own event: %+v", event.Action.Args)
	}

	// Legacy chunk mirror follows the segment text.
	stored, _ := env.docs.Messages().FindByID(context.Background(), testMessageID)
	if stored.Chunks[0].Text != "hello edited" {
		t.Fatalf("chunk mirror not updated: %q", stored.Chunks[0].Text)
	}

	events, err := env.ledger.Read(context.Background(), testSessionID, eventlogservice.ReadOptions{
		EventNames: []string{eventlog.EventCategorizationRetryEnqueued},
	})
	if err != nil {
		t.Fatalf("Read err: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 retry event, got %d", len(events))
	}
	if !strings.HasPrefix(events[0].Reason, "auto_after_edit:") {
		t.Fatalf("retry reason: %q", events[0].Reason)
	}
}

func TestEditRevivesDeletedSegment(t *testing.T) {
	env := newOpsEnv(t)
	msg := env.seedAndReconcile(t, helloWorldMessage())
	segOid := msg.Transcription.Segments[0].ID

	if _, _, err := env.ops.Delete(context.Background(), testSessionID, testActor, testMessageID, segOid); err != nil {
		t.Fatalf("Delete err: %v", err)
	}

	edited, _, err := env.ops.Edit(context.Background(), testSessionID, testActor, testMessageID, segOid, "revived")
	if err != nil {
		t.Fatalf("Edit err: %v", err)
	}
	if edited.Transcription.Segments[0].IsDeleted {
		t.Fatal("edit must revive a tombstoned segment")
	}
	if edited.Transcription.Text != "revived" {
		t.Fatalf("transcription text: %q", edited.Transcription.Text)
	}
}

func TestDeleteSegmentPurgesOverlappingDerivedRows(t *testing.T) {
	env := newOpsEnv(t)
	msg := env.seedAndReconcile(t, transcript.Message{
		ID:        testMessageID,
		SessionID: testSessionID,
		Chunks: []transcript.LegacyChunk{
			{SegmentIndex: 0, Text: "first half", DurationSeconds: 5},
			{SegmentIndex: 1, Text: "second half", DurationSeconds: 5},
		},
		Categorization: map[string]any{
			"data": []any{
				map[string]any{"start": 1.0, "end": 4.0, "label": "overlapping"},
				map[string]any{"start": 5.0, "end": 10.0, "label": "disjoint"},
			},
			"model": "categorizer-v3",
		},
	})
	segOid := msg.Transcription.Segments[0].ID

	deleted, event, err := env.ops.Delete(context.Background(), testSessionID, testActor, testMessageID, segOid)
	if err != nil {
		t.Fatalf("Delete err: %v", err)
	}

	if !deleted.Transcription.Segments[0].IsDeleted {
		t.Fatal("segment not tombstoned")
	}
	if len(deleted.Transcription.Segments) != 2 {
		t.Fatal("tombstoning must not physically remove segments")
	}
	if deleted.Transcription.Text != "second half" {
		t.Fatalf("joined text should skip tombstones: %q", deleted.Transcription.Text)
	}

	container := deleted.Categorization.(map[string]any)
	rows := container["data"].([]any)
	if len(rows) != 1 {
		t.Fatalf("expected 1 surviving row, got %d", len(rows))
	}
	if rows[0].(map[string]any)["label"] != "disjoint" {
		t.Fatalf("wrong row survived: %+v", rows[0])
	}
	if container["model"] != "categorizer-v3" {
		t.Fatal("sibling metadata must be preserved")
	}

	if event.EventName != eventlog.EventSegmentDeleted {
		t.Fatalf("event name: %q", event.EventName)
	}
	old, ok := event.Diff.OldValue.(transcript.Segment)
	if !ok || old.ID != segOid {
		t.Fatalf("delete diff should carry the full segment: %+v", event.Diff.OldValue)
	}
	if event.Diff.NewValue != nil {
		t.Fatalf("delete diff new value should be null: %+v", event.Diff.NewValue)
	}
}

func TestRollbackEditRestoresText(t *testing.T) {
	env := newOpsEnv(t)
	msg := env.seedAndReconcile(t, helloWorldMessage())
	segOid := msg.Transcription.Segments[0].ID

	_, event, err := env.ops.Edit(context.Background(), testSessionID, testActor, testMessageID, segOid, "hello edited")
	if err != nil {
		t.Fatalf("Edit err: %v", err)
	}

	restored, replay, err := env.ops.Rollback(context.Background(), testSessionID, testActor, event.ID)
	if err != nil {
		t.Fatalf("Rollback err: %v", err)
	}
	if restored.Transcription.Text != "hello world" {
		t.Fatalf("text not restored: %q", restored.Transcription.Text)
	}
	if replay.EventName != eventlog.EventSegmentRestored {
		t.Fatalf("replay event name: %q", replay.EventName)
	}
	if !replay.IsReplay || replay.SourceEventID != event.ID {
		t.Fatalf("replay chain broken: %+v", replay)
	}
	if replay.Action != nil && replay.Action.Available {
		t.Fatal("replay events must not be rollback-able")
	}

	// Rolling back the replay itself is refused.
	_, _, err = env.ops.Rollback(context.Background(), testSessionID, testActor, replay.ID)
	var unsupported *store.UnsupportedError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedError, got %v", err)
	}
}

func TestRollbackDeleteRestoresExactlyThatSegment(t *testing.T) {
	env := newOpsEnv(t)
	msg := env.seedAndReconcile(t, transcript.Message{
		ID:        testMessageID,
		SessionID: testSessionID,
		Chunks: []transcript.LegacyChunk{
			{SegmentIndex: 0, Text: "keep me", DurationSeconds: 2},
			{SegmentIndex: 1, Text: "delete me", DurationSeconds: 2},
		},
	})
	target := msg.Transcription.Segments[1].ID

	_, event, err := env.ops.Delete(context.Background(), testSessionID, testActor, testMessageID, target)
	if err != nil {
		t.Fatalf("Delete err: %v", err)
	}

	restored, _, err := env.ops.Rollback(context.Background(), testSessionID, testActor, event.ID)
	if err != nil {
		t.Fatalf("Rollback err: %v", err)
	}
	if restored.Transcription.Segments[1].IsDeleted {
		t.Fatal("target segment still tombstoned after rollback")
	}
	if restored.Transcription.Segments[0].IsDeleted {
		t.Fatal("rollback touched an unrelated segment")
	}
	if restored.Transcription.Text != "keep me delete me" {
		t.Fatalf("joined text after rollback: %q", restored.Transcription.Text)
	}
}

func TestRollbackUnsupportedEventName(t *testing.T) {
	env := newOpsEnv(t)
	env.seedAndReconcile(t, helloWorldMessage())

	event, err := env.ledger.Append(context.Background(), eventlog.Event{
		SessionID: testSessionID,
		MessageID: testMessageID,
		EventName: "session_created",
	})
	if err != nil {
		t.Fatalf("Append err: %v", err)
	}

	_, _, err = env.ops.Rollback(context.Background(), testSessionID, testActor, event.ID)
	var unsupported *store.UnsupportedError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedError, got %v", err)
	}
}

func TestMutationViaForeignLocatorFailsConflict(t *testing.T) {
	env := newOpsEnv(t)
	owner := env.seedAndReconcile(t, helloWorldMessage())
	other := env.seedAndReconcile(t, transcript.Message{
		ID:        otherTestMessageID,
		SessionID: testSessionID,
		Chunks: []transcript.LegacyChunk{
			{SegmentIndex: 0, Text: "untouched", DurationSeconds: 1},
		},
	})
	foreignSegment := owner.Transcription.Segments[0].ID

	_, _, err := env.ops.Edit(context.Background(), testSessionID, testActor, otherTestMessageID, foreignSegment, "hijacked")
	var conflict *store.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}

	// Neither message may change.
	ownerNow, _ := env.docs.Messages().FindByID(context.Background(), testMessageID)
	otherNow, _ := env.docs.Messages().FindByID(context.Background(), otherTestMessageID)
	if ownerNow.Transcription.Text != "hello world" {
		t.Fatalf("owning message mutated: %q", ownerNow.Transcription.Text)
	}
	if otherNow.Transcription.Text != other.Transcription.Text {
		t.Fatalf("target message mutated: %q", otherNow.Transcription.Text)
	}
}

func TestMutationViaForeignSessionFailsNotFound(t *testing.T) {
	env := newOpsEnv(t)
	msg := env.seedAndReconcile(t, helloWorldMessage())
	segOid := msg.Transcription.Segments[0].ID
	foreignSession := "5e9000000000000000000099"

	_, _, err := env.ops.Edit(context.Background(), foreignSession, testActor, testMessageID, segOid, "hijacked")
	var notFound *store.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}

	stored, _ := env.docs.Messages().FindByID(context.Background(), testMessageID)
	if stored.Transcription.Text != "hello world" {
		t.Fatalf("message mutated: %q", stored.Transcription.Text)
	}

	// Neither the owning session's ledger nor the foreign one may record
	// a mutation that never happened.
	for _, sessionID := range []string{testSessionID, foreignSession} {
		events, err := env.ledger.Read(context.Background(), sessionID, eventlogservice.ReadOptions{})
		if err != nil {
			t.Fatalf("Read(%s) err: %v", sessionID, err)
		}
		if len(events) != 0 {
			t.Fatalf("session %s ledger has %d events: %+v", sessionID, len(events), events)
		}
	}
}

func TestForeignSegmentConflictSkipsReconciliationWrite(t *testing.T) {
	env := newOpsEnv(t)
	owner := env.seedAndReconcile(t, helloWorldMessage())
	foreignSegment := owner.Transcription.Segments[0].ID

	// The addressed message has never been reconciled.
	env.docs.SeedMessage(transcript.Message{
		ID:        otherTestMessageID,
		SessionID: testSessionID,
		Chunks: []transcript.LegacyChunk{
			{SegmentIndex: 0, Text: "raw chunk", DurationSeconds: 1},
		},
	})

	_, _, err := env.ops.Edit(context.Background(), testSessionID, testActor, otherTestMessageID, foreignSegment, "hijacked")
	var conflict *store.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}

	// The rejection must come before the reconciler gets to write.
	stored, _ := env.docs.Messages().FindByID(context.Background(), otherTestMessageID)
	if stored.Transcription != nil {
		t.Fatalf("rejected mutation reconciled the message: %+v", stored.Transcription)
	}
	if !stored.UpdatedAt.IsZero() {
		t.Fatalf("rejected mutation stamped updated_at: %v", stored.UpdatedAt)
	}
}

func TestEditMissingSegmentFailsNotFound(t *testing.T) {
	env := newOpsEnv(t)
	env.seedAndReconcile(t, helloWorldMessage())

	_, _, err := env.ops.Edit(context.Background(), testSessionID, testActor, testMessageID, "ch_ffffffffffffffffffffffff", "nope")
	var notFound *store.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}
