// Package ws is the WebSocket push transport. The hub owns the live
// connections and exposes a push-by-connection-id primitive; which
// connections belong to which session is the registry's concern.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nawal-0/moviepicker/internal/util"
)

// ErrUnknownConnection is returned when pushing to a connection this hub
// does not hold (already closed, or attached to another instance).
var ErrUnknownConnection = errors.New("ws: unknown connection")

const writeTimeout = 10 * time.Second

type conn struct {
	mu sync.Mutex // serializes writes; gorilla allows one concurrent writer
	ws *websocket.Conn
}

// Hub upgrades incoming requests and tracks live connections by id.
type Hub struct {
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]*conn
}

func NewHub(checkOrigin func(*http.Request) bool) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		conns: make(map[string]*conn),
	}
}

// Accept upgrades the request, assigns a connection id and starts a read
// loop whose only job is to notice the peer going away. onClose runs once,
// after the connection is removed from the hub.
func (h *Hub) Accept(w http.ResponseWriter, r *http.Request, onClose func(connectionID string)) (string, error) {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return "", fmt.Errorf("upgrade: %w", err)
	}

	connectionID := util.NewSessionID()
	c := &conn{ws: socket}

	h.mu.Lock()
	h.conns[connectionID] = c
	h.mu.Unlock()

	go func() {
		for {
			if _, _, err := socket.ReadMessage(); err != nil {
				break
			}
		}
		h.remove(connectionID)
		if onClose != nil {
			onClose(connectionID)
		}
	}()

	return connectionID, nil
}

// Push writes one message to a single connection. Failures only concern
// that connection; the caller decides whether to log or drop it.
func (h *Hub) Push(ctx context.Context, connectionID string, payload []byte) error {
	h.mu.RLock()
	c, ok := h.conns[connectionID]
	h.mu.RUnlock()
	if !ok {
		return ErrUnknownConnection
	}

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// CloseConnection force-closes and removes a connection, if present.
func (h *Hub) CloseConnection(connectionID string) {
	h.remove(connectionID)
}

// Len reports the number of live connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) remove(connectionID string) {
	h.mu.Lock()
	c, ok := h.conns[connectionID]
	delete(h.conns, connectionID)
	h.mu.Unlock()
	if ok {
		_ = c.ws.Close()
	}
}
