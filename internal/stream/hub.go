// Package stream fans progress events out to WebSocket subscribers. The hub
// is the progress collaborator: engines publish into it, clients subscribe
// over /ws, and a slow or dead client is dropped rather than ever blocking a
// run.
package stream

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/quantframe/quantframe/internal/logger"
	"github.com/quantframe/quantframe/internal/types"
	"go.uber.org/zap"
)

type Hub struct {
	log      *logger.Logger
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	conns  map[*websocket.Conn]bool
	closed bool
}

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]bool),
	}
}

// HandleWS upgrades the request and keeps the connection registered until the
// client goes away. Inbound messages are read and discarded.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Failed to upgrade websocket connection", zap.Error(err))

		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()

		return
	}

	h.conns[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.conns, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Publish serializes the event once and sends it to every subscriber.
// Connections that fail to write are removed.
func (h *Hub) Publish(event types.Event) {
	payload, err := event.Marshal()
	if err != nil {
		h.log.Error("Failed to marshal event", zap.Error(err))

		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.log.Debug("Dropping dead websocket connection", zap.Error(err))
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

// ClientCount returns the number of live subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.conns)
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true

	for conn := range h.conns {
		conn.Close()
		delete(h.conns, conn)
	}

	return nil
}
