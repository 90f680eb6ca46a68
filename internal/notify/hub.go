package notify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

// Hub is the in-process Notifier: clients subscribe to a session over a
// websocket and receive update frames when its messages change.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*subscriber]struct{}
	upgrader websocket.Upgrader
}

// subscriber wraps a connection with a write lock. gorilla/websocket
// supports at most one concurrent writer per connection; broadcasts may
// arrive from any request goroutine, so every write goes through send.
type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *subscriber) send(frame updateFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(frame)
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes exposes the subscription endpoint.
func (h *Hub) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleSubscribe)
}

func (h *Hub) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "session", sessionID, "err", err)
		return
	}
	sub := &subscriber{conn: conn}

	h.mu.Lock()
	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[*subscriber]struct{})
	}
	h.sessions[sessionID][sub] = struct{}{}
	h.mu.Unlock()

	// Drain the connection until the client goes away; subscribers only
	// listen, they never send payloads this hub interprets.
	go func() {
		defer h.drop(sessionID, sub)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) drop(sessionID string, sub *subscriber) {
	h.mu.Lock()
	if subs, ok := h.sessions[sessionID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.sessions, sessionID)
		}
	}
	h.mu.Unlock()
	_ = sub.conn.Close()
}

type updateFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	MessageID string `json:"messageId,omitempty"`
}

// MessageUpdated broadcasts a message-level change to session subscribers.
func (h *Hub) MessageUpdated(_ context.Context, sessionID, messageID string) {
	h.broadcast(sessionID, updateFrame{Type: "message_updated", SessionID: sessionID, MessageID: messageID})
}

// SessionChanged broadcasts a session-level change.
func (h *Hub) SessionChanged(_ context.Context, sessionID string) {
	h.broadcast(sessionID, updateFrame{Type: "session_changed", SessionID: sessionID})
}

// broadcast fans the frame out to the session's subscribers. Push is
// best-effort: failures drop the subscriber, and a panic must never
// reach the mutation handler that triggered the notify.
func (h *Hub) broadcast(sessionID string, frame updateFrame) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("websocket broadcast panicked", "session", sessionID, "panic", r)
		}
	}()

	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.sessions[sessionID]))
	for sub := range h.sessions[sessionID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.send(frame); err != nil {
			log.Warn("websocket push failed, dropping subscriber", "session", sessionID, "err", err)
			h.drop(sessionID, sub)
		}
	}
}
