package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/veftodii/air-quality-monitor/internal/monitor"
)

const (
	writeWait    = 5 * time.Second
	clientBuffer = 4
)

// ReadingsHandler streams every sampling cycle to websocket clients as
// JSON. Slow clients drop cycles instead of stalling the loop.
type ReadingsHandler struct {
	upgrader websocket.Upgrader
	log      logrus.FieldLogger

	mu      sync.Mutex
	clients map[chan []byte]struct{}
	closed  bool
}

// NewReadingsHandler creates the broadcaster.
func NewReadingsHandler(log logrus.FieldLogger) *ReadingsHandler {
	return &ReadingsHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log:     log,
		clients: make(map[chan []byte]struct{}),
	}
}

// Broadcast sends c to every connected client. It never blocks.
func (h *ReadingsHandler) Broadcast(c monitor.Cycle) {
	if c.ReadErr() != nil {
		return
	}
	data, err := json.Marshal(c)
	if err != nil {
		h.log.WithError(err).Warn("Failed to encode cycle")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- data:
		default:
		}
	}
}

// Clients returns the number of connected clients.
func (h *ReadingsHandler) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *ReadingsHandler) add() (chan []byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	ch := make(chan []byte, clientBuffer)
	h.clients[ch] = struct{}{}
	return ch, true
}

func (h *ReadingsHandler) remove(ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
}

// Close disconnects every client.
func (h *ReadingsHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for ch := range h.clients {
		delete(h.clients, ch)
		close(ch)
	}
}

// Connect handles GET /api/readings/ws
func (h *ReadingsHandler) Connect(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer ws.Close()

	ch, ok := h.add()
	if !ok {
		return
	}
	defer h.remove(ch)
	h.log.Infof("Readings client connected from %s", peerAddr(r))

	// Read side only detects the close
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case data, ok := <-ch:
			if !ok {
				ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
				return
			}
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}
