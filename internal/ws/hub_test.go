package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// dialHub stands up a server that accepts every request into the hub and
// dials it, returning the client side and the assigned connection id.
func dialHub(t *testing.T, hub *Hub, onClose func(string)) (*websocket.Conn, string) {
	t.Helper()

	idCh := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		connectionID, err := hub.Accept(w, r, onClose)
		if err != nil {
			t.Errorf("Accept failed: %v", err)
			return
		}
		idCh <- connectionID
	}))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	select {
	case connectionID := <-idCh:
		return client, connectionID
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connection id")
		return nil, ""
	}
}

func TestPushRoundTrip(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true })
	client, connectionID := dialHub(t, hub, nil)

	if hub.Len() != 1 {
		t.Fatalf("expected 1 live connection, got %d", hub.Len())
	}

	payload := []byte(`{"type":"match","movie_id":"550"}`)
	if err := hub.Push(context.Background(), connectionID, payload); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	messageType, received, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("client read failed: %v", err)
	}
	if messageType != websocket.TextMessage || string(received) != string(payload) {
		t.Errorf("got type %d payload %q", messageType, received)
	}
}

func TestPushUnknownConnection(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true })

	err := hub.Push(context.Background(), "never-accepted", []byte("x"))
	if !errors.Is(err, ErrUnknownConnection) {
		t.Fatalf("expected ErrUnknownConnection, got %v", err)
	}
}

func TestClientDisconnectRunsOnClose(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true })

	closed := make(chan string, 1)
	client, connectionID := dialHub(t, hub, func(id string) { closed <- id })

	_ = client.Close()

	select {
	case id := <-closed:
		if id != connectionID {
			t.Errorf("onClose got %s, want %s", id, connectionID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for onClose")
	}

	if err := hub.Push(context.Background(), connectionID, []byte("x")); !errors.Is(err, ErrUnknownConnection) {
		t.Errorf("expected push after disconnect to fail with ErrUnknownConnection, got %v", err)
	}
	if hub.Len() != 0 {
		t.Errorf("expected hub empty, got %d", hub.Len())
	}
}

func TestCloseConnection(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true })
	client, connectionID := dialHub(t, hub, nil)

	hub.CloseConnection(connectionID)

	if hub.Len() != 0 {
		t.Errorf("expected hub empty, got %d", hub.Len())
	}
	if err := hub.Push(context.Background(), connectionID, []byte("x")); !errors.Is(err, ErrUnknownConnection) {
		t.Errorf("expected ErrUnknownConnection, got %v", err)
	}

	// The peer sees the close.
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := client.ReadMessage(); err == nil {
		t.Error("expected client read to fail after CloseConnection")
	}

	// Closing twice is harmless.
	hub.CloseConnection(connectionID)
}
