// Package transcript defines the message document and its transcript shapes.
// A message's transcript evolved through three incompatible storage shapes:
// canonical timed segments, legacy per-utterance chunks, and a flat text
// string. The reconciler collapses them into the canonical segment form.
package transcript

import (
	"strings"
	"time"
)

// Message is one message document in the "messages" collection.
// The categorization fields are deliberately loose: the denormalized
// analysis payload drifted across several legacy field names and wrapper
// shapes, so they are carried as raw documents and interpreted by the
// derived-data cleanup rules.
type Message struct {
	ID                   string         `bson:"_id" json:"id"`
	SessionID            string         `bson:"session_id" json:"sessionId"`
	ProjectID            string         `bson:"project_id,omitempty" json:"projectId,omitempty"`
	Text                 string         `bson:"text,omitempty" json:"text,omitempty"`
	TranscriptionText    string         `bson:"transcription_text,omitempty" json:"transcriptionText,omitempty"`
	DurationSeconds      float64        `bson:"duration_seconds,omitempty" json:"durationSeconds,omitempty"`
	Transcription        *Transcription `bson:"transcription,omitempty" json:"transcription,omitempty"`
	Chunks               []LegacyChunk  `bson:"transcription_chunks,omitempty" json:"transcriptionChunks,omitempty"`
	Categorization       any            `bson:"categorization,omitempty" json:"categorization,omitempty"`
	CategorizationData   any            `bson:"categorization_data,omitempty" json:"categorizationData,omitempty"`
	ProcessorsData       map[string]any `bson:"processors_data,omitempty" json:"processorsData,omitempty"`
	CategorizationStatus string         `bson:"categorization_status,omitempty" json:"categorizationStatus,omitempty"`
	UpdatedAt            time.Time      `bson:"updated_at,omitempty" json:"updatedAt,omitempty"`
}

// Transcription is the canonical segment-based transcript representation.
type Transcription struct {
	SchemaVersion   int       `bson:"schema_version" json:"schemaVersion"`
	Provider        string    `bson:"provider,omitempty" json:"provider,omitempty"`
	Model           string    `bson:"model,omitempty" json:"model,omitempty"`
	DurationSeconds float64   `bson:"duration_seconds,omitempty" json:"durationSeconds,omitempty"`
	Text            string    `bson:"text" json:"text"`
	Segments        []Segment `bson:"segments" json:"segments"`
	Usage           *Usage    `bson:"usage,omitempty" json:"usage,omitempty"`
}

// Segment is a canonical timed span of transcript text.
// Deleted segments are tombstoned, never physically removed.
type Segment struct {
	ID              string  `bson:"id" json:"id"`
	SourceSegmentID string  `bson:"source_segment_id,omitempty" json:"sourceSegmentId,omitempty"`
	Start           float64 `bson:"start" json:"start"`
	End             float64 `bson:"end" json:"end"`
	Speaker         string  `bson:"speaker,omitempty" json:"speaker,omitempty"`
	Text            string  `bson:"text" json:"text"`
	IsDeleted       bool    `bson:"is_deleted,omitempty" json:"isDeleted,omitempty"`
}

// LegacyChunk is the older per-utterance record. Chunks only carry a
// duration, not absolute timing; absolute timelines are derived by the
// reconciler from cumulative durations.
type LegacyChunk struct {
	SegmentIndex    int       `bson:"segment_index" json:"segmentIndex"`
	ID              string    `bson:"id,omitempty" json:"id,omitempty"`
	Text            string    `bson:"text" json:"text"`
	Timestamp       time.Time `bson:"timestamp,omitempty" json:"timestamp,omitempty"`
	DurationSeconds float64   `bson:"duration_seconds,omitempty" json:"durationSeconds,omitempty"`
}

// Usage records provider-reported transcription cost.
type Usage struct {
	InputTokens  int     `bson:"input_tokens,omitempty" json:"inputTokens,omitempty"`
	OutputTokens int     `bson:"output_tokens,omitempty" json:"outputTokens,omitempty"`
	AudioSeconds float64 `bson:"audio_seconds,omitempty" json:"audioSeconds,omitempty"`
}

// CategorizationRetryPending marks a message for the external analysis
// worker. The worker polls for it; this core only ever sets it.
const CategorizationRetryPending = "retry_pending"

// JoinedText is the space-joined text of non-deleted segments in list
// order. Transcription.Text must always equal this value; it is
// recomputed on every mutation, never maintained independently.
func (t *Transcription) JoinedText() string {
	if t == nil {
		return ""
	}
	parts := make([]string, 0, len(t.Segments))
	for _, seg := range t.Segments {
		if seg.IsDeleted {
			continue
		}
		parts = append(parts, seg.Text)
	}
	return strings.Join(parts, " ")
}

// FindSegment returns the index of the segment with the given id, or -1.
func (t *Transcription) FindSegment(id string) int {
	if t == nil {
		return -1
	}
	for i := range t.Segments {
		if t.Segments[i].ID == id {
			return i
		}
	}
	return -1
}
