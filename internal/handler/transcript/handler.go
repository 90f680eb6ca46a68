// Package transcript exposes the segment mutation entry points.
package transcript

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tapewise/backend/internal/handler/respond"
	"github.com/tapewise/backend/internal/middleware"
	"github.com/tapewise/backend/internal/model/eventlog"
	modeltranscript "github.com/tapewise/backend/internal/model/transcript"
	"github.com/tapewise/backend/internal/oid"
	transcriptservice "github.com/tapewise/backend/internal/service/transcript"
	"github.com/tapewise/backend/pkg/utils"
)

// Handler serves segment edit, delete, and rollback.
type Handler struct {
	ops *transcriptservice.Operations
}

// New creates the transcript mutation handler.
func New(ops *transcriptservice.Operations) *Handler {
	return &Handler{ops: ops}
}

// RegisterRoutes mounts the mutation endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions/{sessionOID}/messages/{messageOID}/segments/{segmentOID}/edit", h.handleEdit)
	r.Delete("/sessions/{sessionOID}/messages/{messageOID}/segments/{segmentOID}", h.handleDelete)
	r.Post("/sessions/{sessionOID}/events/{eventOID}/rollback", h.handleRollback)
}

type mutationResponse struct {
	Message *modeltranscript.Message `json:"message"`
	Event   *eventlog.Event          `json:"event"`
}

func (h *Handler) handleEdit(w http.ResponseWriter, r *http.Request) {
	session, message, segment, err := parseSegmentPath(r)
	if err != nil {
		respond.DomainError(w, err)
		return
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	actor := middleware.ActorFrom(r.Context())
	msg, event, err := h.ops.Edit(r.Context(), session.ID, actor, message.ID, segment.String(), payload.Text)
	if err != nil {
		respond.DomainError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, mutationResponse{Message: msg, Event: event})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	session, message, segment, err := parseSegmentPath(r)
	if err != nil {
		respond.DomainError(w, err)
		return
	}

	actor := middleware.ActorFrom(r.Context())
	msg, event, err := h.ops.Delete(r.Context(), session.ID, actor, message.ID, segment.String())
	if err != nil {
		respond.DomainError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, mutationResponse{Message: msg, Event: event})
}

func (h *Handler) handleRollback(w http.ResponseWriter, r *http.Request) {
	session, err := oid.ParseTopLevel(chi.URLParam(r, "sessionOID"), oid.PrefixSession)
	if err != nil {
		respond.DomainError(w, err)
		return
	}
	event, err := oid.ParseTopLevel(chi.URLParam(r, "eventOID"), oid.PrefixEvent)
	if err != nil {
		respond.DomainError(w, err)
		return
	}

	actor := middleware.ActorFrom(r.Context())
	msg, replay, err := h.ops.Rollback(r.Context(), session.ID, actor, event.ID)
	if err != nil {
		respond.DomainError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, mutationResponse{Message: msg, Event: replay})
}

// parseSegmentPath resolves the three oids a segment mutation addresses.
// Session and message ids tolerate bare hex for old clients; the segment
// id is embedded and must be fully prefixed.
func parseSegmentPath(r *http.Request) (session, message, segment oid.Oid, err error) {
	session, err = oid.ParseTopLevel(chi.URLParam(r, "sessionOID"), oid.PrefixSession)
	if err != nil {
		return
	}
	message, err = oid.ParseTopLevel(chi.URLParam(r, "messageOID"), oid.PrefixMessage)
	if err != nil {
		return
	}
	segment, err = oid.ParseEmbedded(chi.URLParam(r, "segmentOID"), oid.PrefixSegment)
	return
}
