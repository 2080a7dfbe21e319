// internal/server/hub.go
package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"k8s.io/klog/v2"

	"github.com/tamzrod/modbus-bridge/internal/metrics"
	"github.com/tamzrod/modbus-bridge/internal/snapshot"
)

const wsWriteTimeout = 5 * time.Second

// wsFrame is what subscribers receive on every successful poll.
type wsFrame struct {
	TS     float64          `json:"ts"`
	Seq    uint64           `json:"seq"`
	Groups []snapshot.Group `json:"groups"`
}

// Hub fans published snapshots out to websocket subscribers. It
// satisfies the poller's sink contract: Publish never blocks on a slow
// client, it drops the client instead.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
	metrics *metrics.Metrics

	upgrader websocket.Upgrader
}

// NewHub returns an empty hub.
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Dashboards connect from anywhere on the LAN; the read
			// API carries no credentials to protect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func frameOf(snap *snapshot.Snapshot) wsFrame {
	return wsFrame{
		TS:     float64(snap.Taken.UnixNano()) / 1e9,
		Seq:    snap.Seq,
		Groups: snap.Groups,
	}
}

// Publish sends the snapshot to every connected client. Clients whose
// write fails or times out are dropped.
func (h *Hub) Publish(snap *snapshot.Snapshot) {
	frame := frameOf(snap)

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(frame); err != nil {
			klog.V(2).Infof("ws: dropping %s: %v", conn.RemoteAddr(), err)
			h.dropLocked(conn)
		}
	}
}

// ServeWS upgrades the request and registers the client until it goes
// away. Inbound messages are discarded; the socket is push-only. cur,
// when non-nil, is delivered immediately so late joiners do not wait
// out a poll interval for their first frame.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, cur *snapshot.Snapshot) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		klog.Warningf("ws: upgrade failed: %v", err)
		return
	}

	// The initial write happens under h.mu: Publish writes under the
	// same lock, and a connection tolerates only one writer at a time.
	h.mu.Lock()
	h.clients[conn] = true
	n := len(h.clients)
	if cur != nil {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(frameOf(cur)); err != nil {
			h.dropLocked(conn)
			h.mu.Unlock()
			return
		}
	}
	h.mu.Unlock()
	h.metrics.WSClients.Set(float64(n))
	klog.V(2).Infof("ws: client %s connected (%d total)", conn.RemoteAddr(), n)

	// Reader loop exists only to notice the peer closing.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.mu.Lock()
				h.dropLocked(conn)
				h.mu.Unlock()
				return
			}
		}
	}()
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		h.dropLocked(conn)
	}
}

// Clients is the current subscriber count.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// dropLocked removes and closes a client. Callers hold h.mu.
func (h *Hub) dropLocked(conn *websocket.Conn) {
	if _, ok := h.clients[conn]; !ok {
		return
	}
	delete(h.clients, conn)
	conn.Close()
	h.metrics.WSClients.Set(float64(len(h.clients)))
}
