package stream

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
)

func serve(t *testing.T, hub *Hub) string {
	t.Helper()
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), hub)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	go func() {
		_ = app.Listener(ln)
	}()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "ws://" + ln.Addr().String() + "/stream/ws/"
}

func waitForClients(t *testing.T, hub *Hub, viewID string, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for hub.Clients(viewID) != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients on %s, got %d", n, viewID, hub.Clients(viewID))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStreamHandlersUpgradeRequired(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), NewHub(nil))

	req := httptest.NewRequest(http.MethodGet, "/stream/ws/view-1", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Fatalf("expected 426 for non-websocket request, got %d", resp.StatusCode)
	}
}

func TestStreamHandlersWebsocketRoundTrip(t *testing.T) {
	hub := NewHub(nil)
	listener := &recordingListener{}
	hub.SetListener(listener)
	base := serve(t, hub)

	conn, _, err := websocket.DefaultDialer.Dial(base+"view-1", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil || string(msg) != "welcome" {
		t.Fatalf("expected welcome, got %q %v", msg, err)
	}

	hub.Broadcast("view-1", []byte("hello"))
	_, msg, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if string(msg) != "hello" {
		t.Fatalf("unexpected message %q", msg)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"click","anchor":"a-1"}`)); err != nil {
		t.Fatalf("write error: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for len(listener.received()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("click event never dispatched")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if ev := listener.received()[0]; ev.Anchor != "a-1" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestStreamHandlersUnregisterOnClose(t *testing.T) {
	hub := NewHub(nil)
	base := serve(t, hub)

	conn, _, err := websocket.DefaultDialer.Dial(base+"view-2", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	waitForClients(t, hub, "view-2", 1)

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	conn.Close()

	waitForClients(t, hub, "view-2", 0)
	hub.Broadcast("view-2", []byte("ping"))
}
