package notify

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	hubTestSession = "5e9000000000000000000001"
	hubTestMessage = "64a000000000000000000001"
)

func dialHub(t *testing.T, hub *Hub, sessionID string) *websocket.Conn {
	t.Helper()
	r := chi.NewRouter()
	hub.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	// The handshake completes before the handler registers the subscriber;
	// wait for the registration to land.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hub.mu.RLock()
		registered := len(hub.sessions[sessionID]) > 0
		hub.mu.RUnlock()
		if registered {
			return conn
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("subscriber never registered")
	return nil
}

func TestConcurrentBroadcastsDeliverEveryFrame(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, hubTestSession)

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.MessageUpdated(context.Background(), hubTestSession, hubTestMessage)
		}()
	}
	wg.Wait()

	for i := 0; i < writers; i++ {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var frame updateFrame
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("read frame %d: %v", i, err)
		}
		if frame.Type != "message_updated" || frame.SessionID != hubTestSession || frame.MessageID != hubTestMessage {
			t.Fatalf("frame %d: %+v", i, frame)
		}
	}
}

func TestBroadcastIsScopedToSession(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, hubTestSession)

	hub.SessionChanged(context.Background(), "5e9000000000000000000002")
	hub.SessionChanged(context.Background(), hubTestSession)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame updateFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	if frame.Type != "session_changed" || frame.SessionID != hubTestSession {
		t.Fatalf("subscriber received another session's frame: %+v", frame)
	}
}

func TestBroadcastWithoutSubscribers(t *testing.T) {
	hub := NewHub()
	// Must be a silent no-op.
	hub.MessageUpdated(context.Background(), hubTestSession, hubTestMessage)
	hub.SessionChanged(context.Background(), hubTestSession)
}
