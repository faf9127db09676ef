// Package progressws streams run progress to websocket subscribers.
package progressws

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// sendBuffer is the per-subscriber frame backlog. A subscriber that
	// stops reading has frames dropped once this fills; Broadcast never
	// blocks on a stalled connection.
	sendBuffer = 64

	writeTimeout = 5 * time.Second
)

// ProgressEvent is the JSON frame pushed to every subscriber after each
// completed backtest.
type ProgressEvent struct {
	RunID     string  `json:"run_id"`
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Fraction  float64 `json:"fraction"`
}

// Hub fans progress events out to connected websocket clients. Each
// connection gets its own buffered send channel drained by a writer
// goroutine, so a slow or dead client costs dropped frames, never a stalled
// broadcaster.
type Hub struct {
	upgrader websocket.Upgrader
	verbose  bool

	mu    sync.Mutex
	conns map[*websocket.Conn]chan ProgressEvent
}

// NewHub creates an empty hub.
func NewHub(verbose bool) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Progress frames carry no secrets and the endpoint is
			// read-only, so any origin may subscribe.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		verbose: verbose,
		conns:   make(map[*websocket.Conn]chan ProgressEvent),
	}
}

// ServeHTTP upgrades the request and keeps the connection registered until
// the client goes away. Inbound frames are discarded; the read loop exists
// only to detect disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log("upgrade failed: %v", err)
		return
	}

	h.add(conn)
	defer h.remove(conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast queues the event for every connected client. Subscribers whose
// send buffer is full miss this frame; progress is monotonic, so a later
// frame supersedes it anyway.
func (h *Hub) Broadcast(ev ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.conns {
		select {
		case ch <- ev:
		default:
			h.log("subscriber lagging, frame dropped")
		}
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn, ch := range h.conns {
		delete(h.conns, conn)
		close(ch)
		conn.Close()
	}
}

func (h *Hub) add(conn *websocket.Conn) {
	ch := make(chan ProgressEvent, sendBuffer)

	h.mu.Lock()
	h.conns[conn] = ch
	h.mu.Unlock()

	go h.writePump(conn, ch)
}

// remove is idempotent: the read loop, the write pump, and Close may all
// race to drop the same connection.
func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.conns[conn]; ok {
		delete(h.conns, conn)
		close(ch)
		conn.Close()
	}
}

// writePump drains one subscriber's queue. Writes carry a deadline so a
// wedged connection errors out and gets dropped instead of parking forever.
func (h *Hub) writePump(conn *websocket.Conn, ch chan ProgressEvent) {
	for ev := range ch {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(ev); err != nil {
			h.log("dropping subscriber: %v", err)
			h.remove(conn)
			return
		}
	}
}

func (h *Hub) log(format string, args ...interface{}) {
	if h.verbose {
		log.Printf("[progressws] "+format, args...)
	}
}
