package sessionhook

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"ixion/address"
	"ixion/model"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHook fans out trace events to every connected websocket client,
// grounded on the teacher's spreadsheet.Server (spreadsheet/server.go:
// clients map[*websocket.Conn]bool guarded by mu, broadcastAll iterating
// the map and dropping a client on write failure) — the same "live
// dashboard" shape, driven by session events instead of cell-update
// responses.
type WSHook struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// NewWSHook returns an empty hook ready to accept connections via
// HandleWebSocket.
func NewWSHook() *WSHook {
	return &WSHook{clients: make(map[*websocket.Conn]bool)}
}

// HandleWebSocket upgrades r into a websocket connection and registers it
// as a broadcast target until it disconnects.
func (h *WSHook) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("sessionhook: upgrade error: %v", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	// The connection carries no inbound protocol; it exists only to
	// receive broadcasts, so block on reads purely to detect disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (h *WSHook) broadcast(ev traceEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if err := client.WriteJSON(ev); err != nil {
			log.Printf("sessionhook: broadcast failed: %v", err)
			_ = client.Close()
			delete(h.clients, client)
		}
	}
}

// CellEntered satisfies model.SessionHandler.
func (h *WSHook) CellEntered(addr address.AbsAddress) {
	h.broadcast(traceEvent{Type: "entered", Cell: addr.Name()})
}

// CellBlocked satisfies model.SessionHandler.
func (h *WSHook) CellBlocked(addr, waitingOn address.AbsAddress) {
	h.broadcast(traceEvent{Type: "blocked", Cell: addr.Name(), Target: waitingOn.Name()})
}

// CellComputed satisfies model.SessionHandler.
func (h *WSHook) CellComputed(addr address.AbsAddress, result model.FormulaResult) {
	h.broadcast(traceEvent{Type: "computed", Cell: addr.Name(), Result: result.Str(nil)})
}

var _ model.SessionHandler = (*WSHook)(nil)
