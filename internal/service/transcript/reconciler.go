// Package transcript implements the canonical transcription reconciler,
// the derived-data cleanup, and the segment mutation operations.
package transcript

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"github.com/tapewise/backend/internal/model/transcript"
	"github.com/tapewise/backend/internal/oid"
	"github.com/tapewise/backend/internal/service/locator"
	"github.com/tapewise/backend/internal/store"
)

// Epsilon for duration and overlap comparisons on second-resolution floats.
const timeEpsilon = 1e-6

// canonicalSchemaVersion marks transcriptions produced by this reconciler.
const canonicalSchemaVersion = 2

// Reconciler produces one canonical segment-based transcript from the
// three legacy shapes a message may carry: canonical segments, legacy
// chunks, or a flat transcript string. The pass is idempotent; a message
// that is already canonical is returned without a write.
type Reconciler struct {
	messages store.Messages
	locators *locator.Service
}

// NewReconciler wires the reconciler to its collaborators.
func NewReconciler(messages store.Messages, locators *locator.Service) *Reconciler {
	return &Reconciler{messages: messages, locators: locators}
}

// Reconcile guarantees msg carries canonical segments with stable ch_ ids
// and meaningful timing, persisting only the fields that actually changed.
// Callers must supply an already-loaded message; a nil message fails fast
// as NotFound rather than being re-fetched.
func (r *Reconciler) Reconcile(ctx context.Context, msg *transcript.Message) (*transcript.Message, bool, error) {
	if msg == nil {
		return nil, false, &store.NotFoundError{Resource: "message", ID: ""}
	}
	if !needsReconciliation(msg) {
		return msg, false, nil
	}

	updated := *msg
	switch {
	case msg.Transcription != nil && len(msg.Transcription.Segments) > 0:
		updated.Transcription = r.repairSegments(ctx, msg)
	case len(msg.Chunks) > 0:
		updated.Transcription = r.segmentsFromChunks(ctx, msg)
		updated.Chunks = backfillChunkIDs(msg.Chunks, updated.Transcription.Segments)
	default:
		updated.Transcription = r.segmentFromFlatText(ctx, msg)
	}

	joined := updated.Transcription.JoinedText()
	updated.Transcription.Text = joined
	updated.TranscriptionText = joined
	updated.Text = joined

	fields := changedFields(msg, &updated)
	if len(fields) == 0 {
		return msg, false, nil
	}
	updated.UpdatedAt = time.Now().UTC()
	fields["updated_at"] = updated.UpdatedAt
	if err := r.messages.Update(ctx, msg.ID, fields); err != nil {
		return nil, false, err
	}
	return &updated, true, nil
}

// needsReconciliation is the no-op predicate: canonical ids everywhere,
// at least one segment with positive duration, and a transcription
// duration unless there are no chunks left to derive one from.
func needsReconciliation(msg *transcript.Message) bool {
	t := msg.Transcription
	if t == nil || len(t.Segments) == 0 {
		return true
	}
	hasPositive := false
	for _, seg := range t.Segments {
		if !oid.IsCanonical(seg.ID, oid.PrefixSegment) {
			return true
		}
		if seg.End-seg.Start > timeEpsilon {
			hasPositive = true
		}
	}
	if !hasPositive {
		return true
	}
	if t.DurationSeconds <= timeEpsilon && len(msg.Chunks) > 0 {
		return true
	}
	return false
}

// repairSegments keeps existing canonical segments, replaces non-canonical
// ids, and re-derives timing from the chunk timeline when no segment shows
// a positive duration or the transcription lost its total duration.
func (r *Reconciler) repairSegments(ctx context.Context, msg *transcript.Message) *transcript.Transcription {
	t := *msg.Transcription
	t.Segments = slices.Clone(msg.Transcription.Segments)
	if t.SchemaVersion < canonicalSchemaVersion {
		t.SchemaVersion = canonicalSchemaVersion
	}

	for i := range t.Segments {
		seg := &t.Segments[i]
		if oid.IsCanonical(seg.ID, oid.PrefixSegment) {
			continue
		}
		if seg.SourceSegmentID == "" && seg.ID != "" {
			seg.SourceSegmentID = seg.ID
		}
		seg.ID = oid.New(oid.PrefixSegment).String()
	}

	hasPositive := false
	for _, seg := range t.Segments {
		if seg.End-seg.Start > timeEpsilon {
			hasPositive = true
			break
		}
	}
	if !hasPositive || (t.DurationSeconds <= timeEpsilon && len(msg.Chunks) > 0) {
		spans := chunkTimeline(msg.Chunks, msg.DurationSeconds)
		for i := range t.Segments {
			seg := &t.Segments[i]
			span, ok := matchSpan(spans, seg, i)
			if !ok {
				continue
			}
			seg.Start = span.start
			seg.End = span.end
		}
		t.DurationSeconds = maxEnd(t.Segments)
	}
	if t.DurationSeconds <= timeEpsilon {
		t.DurationSeconds = maxEnd(t.Segments)
	}

	r.registerSegments(ctx, msg.ID, t.Segments)
	return &t
}

// segmentsFromChunks allocates one canonical segment per legacy chunk,
// deriving [start,end) from cumulative chunk durations.
func (r *Reconciler) segmentsFromChunks(ctx context.Context, msg *transcript.Message) *transcript.Transcription {
	chunks := slices.Clone(msg.Chunks)
	slices.SortStableFunc(chunks, func(a, b transcript.LegacyChunk) int {
		return a.SegmentIndex - b.SegmentIndex
	})

	spans := chunkTimeline(chunks, msg.DurationSeconds)
	segments := make([]transcript.Segment, len(chunks))
	for i, chunk := range chunks {
		segments[i] = transcript.Segment{
			ID:              oid.New(oid.PrefixSegment).String(),
			SourceSegmentID: chunk.ID,
			Start:           spans[i].start,
			End:             spans[i].end,
			Text:            chunk.Text,
		}
	}

	t := &transcript.Transcription{
		SchemaVersion:   canonicalSchemaVersion,
		DurationSeconds: maxEnd(segments),
		Segments:        segments,
	}
	r.registerSegments(ctx, msg.ID, segments)
	return t
}

// segmentFromFlatText synthesizes one full-span segment from the flat
// transcript string when neither segments nor chunks exist.
func (r *Reconciler) segmentFromFlatText(ctx context.Context, msg *transcript.Message) *transcript.Transcription {
	text := msg.TranscriptionText
	if text == "" {
		text = msg.Text
	}

	t := &transcript.Transcription{
		SchemaVersion:   canonicalSchemaVersion,
		DurationSeconds: msg.DurationSeconds,
	}
	if text != "" {
		t.Segments = []transcript.Segment{{
			ID:   oid.New(oid.PrefixSegment).String(),
			End:  msg.DurationSeconds,
			Text: text,
		}}
		r.registerSegments(ctx, msg.ID, t.Segments)
	}
	return t
}

// registerSegments binds every segment id to the owning message in the
// locator directory. An id already bound elsewhere was copied across
// messages; it gets a fresh id here so the original binding stands.
func (r *Reconciler) registerSegments(ctx context.Context, messageID string, segments []transcript.Segment) {
	for i := range segments {
		seg := &segments[i]
		err := r.locators.RegisterSegment(ctx, seg.ID, messageID)
		if err == nil {
			continue
		}
		if _, ok := asConflict(err); ok {
			replacement := oid.New(oid.PrefixSegment).String()
			log.Warn("segment id bound to another message, reassigning",
				"segment", seg.ID, "message", messageID, "replacement", replacement)
			seg.ID = replacement
			if err := r.locators.RegisterSegment(ctx, seg.ID, messageID); err == nil {
				continue
			}
		}
		log.Warn("failed to register segment locator", "segment", seg.ID, "message", messageID, "err", err)
	}
}

type span struct {
	start, end float64
	chunkID    string
}

// chunkTimeline lays chunks end to end using their durations. When no
// chunk carries a duration the total message duration is spread evenly.
func chunkTimeline(chunks []transcript.LegacyChunk, totalDuration float64) []span {
	spans := make([]span, len(chunks))
	sum := 0.0
	for _, chunk := range chunks {
		if chunk.DurationSeconds > 0 {
			sum += chunk.DurationSeconds
		}
	}

	fallback := 0.0
	if sum <= timeEpsilon && totalDuration > timeEpsilon && len(chunks) > 0 {
		fallback = totalDuration / float64(len(chunks))
	}

	cursor := 0.0
	for i, chunk := range chunks {
		dur := chunk.DurationSeconds
		if dur <= 0 {
			dur = fallback
		}
		spans[i] = span{start: cursor, end: cursor + dur, chunkID: chunk.ID}
		cursor += dur
	}
	return spans
}

// matchSpan pairs an existing segment with its timeline span, preferring
// the chunk-id link and falling back to list position.
func matchSpan(spans []span, seg *transcript.Segment, index int) (span, bool) {
	for _, sp := range spans {
		if sp.chunkID != "" && (sp.chunkID == seg.SourceSegmentID || sp.chunkID == seg.ID) {
			return sp, true
		}
	}
	if index < len(spans) {
		return spans[index], true
	}
	return span{}, false
}

// backfillChunkIDs gives id-less chunks the oid of the segment allocated
// for them so future timeline matching works by id.
func backfillChunkIDs(chunks []transcript.LegacyChunk, segments []transcript.Segment) []transcript.LegacyChunk {
	out := slices.Clone(chunks)
	slices.SortStableFunc(out, func(a, b transcript.LegacyChunk) int {
		return a.SegmentIndex - b.SegmentIndex
	})
	for i := range out {
		if out[i].ID == "" && i < len(segments) {
			out[i].ID = segments[i].ID
		}
	}
	return out
}

func maxEnd(segments []transcript.Segment) float64 {
	end := 0.0
	for _, seg := range segments {
		if seg.End > end {
			end = seg.End
		}
	}
	return end
}

// changedFields diffs the persisted transcript fields between the loaded
// and reconciled message. Only these four fields are ever written by the
// reconciler.
func changedFields(before, after *transcript.Message) map[string]any {
	fields := make(map[string]any)
	if !reflect.DeepEqual(before.Transcription, after.Transcription) {
		fields["transcription"] = after.Transcription
	}
	if before.TranscriptionText != after.TranscriptionText {
		fields["transcription_text"] = after.TranscriptionText
	}
	if before.Text != after.Text {
		fields["text"] = after.Text
	}
	if !reflect.DeepEqual(before.Chunks, after.Chunks) {
		fields["transcription_chunks"] = after.Chunks
	}
	return fields
}

func asConflict(err error) (*store.ConflictError, bool) {
	var conflict *store.ConflictError
	if errors.As(err, &conflict) {
		return conflict, true
	}
	return nil, false
}
