package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func dialTestHub(t *testing.T) (*Hub, *websocket.Conn, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/ws", hub.ServeWS)
	srv := httptest.NewServer(r)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		cancel()
		srv.Close()
		t.Fatalf("dial: %v", err)
	}

	return hub, conn, func() {
		_ = conn.Close()
		cancel()
		srv.Close()
	}
}

func TestHubDeliversPublishes(t *testing.T) {
	hub, conn, done := dialTestHub(t)
	defer done()

	// The register channel is unbuffered, so give the hub loop a beat to pick
	// the new client up before publishing.
	time.Sleep(50 * time.Millisecond)

	hub.Publish(EventCallUpdate, map[string]string{"id": "call-1", "status": "RINGING"})
	hub.Publish(EventNumbersUpdate, map[string]any{"numbers": []string{"+15551234567"}})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for _, want := range []string{EventCallUpdate, EventNumbersUpdate} {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var msg struct {
			Event   string          `json:"event"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("decode %q: %v", raw, err)
		}
		if msg.Event != want {
			t.Fatalf("expected event %q, got %q", want, msg.Event)
		}
		if len(msg.Payload) == 0 {
			t.Fatalf("empty payload for %q", msg.Event)
		}
	}
}

func TestHubShutdownReleasesClients(t *testing.T) {
	gin.SetMode(gin.TestMode)

	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(runDone)
	}()

	r := gin.New()
	r.GET("/ws", hub.ServeWS)
	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatalf("hub loop did not stop")
	}

	// The connected client is told to go away rather than left hanging.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected close after hub shutdown, got a message")
	}

	// A straggler connecting after shutdown is shed immediately instead of
	// wedging the handler on the register channel.
	late, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("late dial: %v", err)
	}
	defer late.Close()
	_ = late.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := late.ReadMessage(); err == nil {
		t.Fatalf("expected late client to be closed")
	}
}

func TestPublishNeverBlocksWithoutSubscribers(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	donech := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Publish(EventCallUpdate, map[string]int{"n": i})
		}
		close(donech)
	}()

	select {
	case <-donech:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked with no subscribers")
	}
}

func TestPublishDropsUnmarshalablePayload(t *testing.T) {
	hub := NewHub(nil)
	// Channels are not JSON-marshalable; the publish must be swallowed.
	hub.Publish(EventCallUpdate, make(chan int))
	select {
	case <-hub.broadcast:
		t.Fatalf("unmarshalable payload was queued")
	default:
	}
}
