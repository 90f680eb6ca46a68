// Package eventlog exposes the session audit ledger read surface.
package eventlog

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tapewise/backend/internal/handler/respond"
	"github.com/tapewise/backend/internal/oid"
	eventlogservice "github.com/tapewise/backend/internal/service/eventlog"
	"github.com/tapewise/backend/pkg/utils"
)

// Handler serves session log reads.
type Handler struct {
	ledger *eventlogservice.Service
}

// New creates the event log handler.
func New(ledger *eventlogservice.Service) *Handler {
	return &Handler{ledger: ledger}
}

// RegisterRoutes mounts the read endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{sessionOID}/events", h.handleRead)
}

func (h *Handler) handleRead(w http.ResponseWriter, r *http.Request) {
	session, err := oid.ParseTopLevel(chi.URLParam(r, "sessionOID"), oid.PrefixSession)
	if err != nil {
		respond.DomainError(w, err)
		return
	}

	opts := eventlogservice.ReadOptions{}
	if messageParam := r.URL.Query().Get("message"); messageParam != "" {
		message, err := oid.ParseTopLevel(messageParam, oid.PrefixMessage)
		if err != nil {
			respond.DomainError(w, err)
			return
		}
		opts.MessageID = message.ID
	}
	if names := r.URL.Query().Get("event_names"); names != "" {
		for _, name := range strings.Split(names, ",") {
			if trimmed := strings.TrimSpace(name); trimmed != "" {
				opts.EventNames = append(opts.EventNames, trimmed)
			}
		}
	}
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		limit, err := strconv.Atoi(limitParam)
		if err != nil || limit < 0 {
			utils.RespondError(w, http.StatusBadRequest, "bad_request", "invalid limit")
			return
		}
		opts.Limit = limit
	}

	events, err := h.ledger.Read(r.Context(), session.ID, opts)
	if err != nil {
		respond.DomainError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"data": events})
}
