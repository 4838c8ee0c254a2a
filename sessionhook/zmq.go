// Package sessionhook provides two optional model.SessionHandler
// implementations that broadcast recalculation trace events to external
// observers, without the core engine knowing or caring whether anyone is
// listening. ModelAccess.GetSessionHandler (spec §6) is the seam both hook
// here; a model with no handler configured simply returns nil and pays no
// cost.
package sessionhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/go-zeromq/zmq4"

	"ixion/address"
	"ixion/model"
)

// traceEvent is the JSON envelope published for every session event, one
// object per message rather than the multi-frame Jupyter envelope the
// teacher's kernel package builds (kernel/kernel.go Message) — a trace
// consumer here only needs one flat record per event, not a signed
// header/parent-header/metadata/content split meant for a multi-channel
// wire protocol.
type traceEvent struct {
	Type   string `json:"type"`
	Cell   string `json:"cell"`
	Target string `json:"target,omitempty"`
	Result string `json:"result,omitempty"`
}

// ZMQHook publishes trace events on a ZeroMQ PUB socket, grounded on the
// teacher's kernel.Kernel IOPub channel (kernel/kernel.go: k.iopub =
// zmq4.NewPub(ctx); k.sendMessage(k.iopub, msg)) — the same "one publisher,
// any number of subscribers, no reply expected" shape, stripped of the
// Jupyter wire-protocol framing this core has no use for.
type ZMQHook struct {
	mu   sync.Mutex
	sock zmq4.Socket
}

// NewZMQHook binds a PUB socket at addr (e.g. "tcp://127.0.0.1:5560").
func NewZMQHook(ctx context.Context, addr string) (*ZMQHook, error) {
	sock := zmq4.NewPub(ctx)
	if err := sock.Listen(addr); err != nil {
		return nil, fmt.Errorf("sessionhook: bind pub socket: %w", err)
	}
	return &ZMQHook{sock: sock}, nil
}

// Close releases the underlying socket.
func (h *ZMQHook) Close() error {
	return h.sock.Close()
}

func (h *ZMQHook) publish(ev traceEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("sessionhook: marshal event: %v", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.sock.Send(zmq4.NewMsg(data)); err != nil {
		log.Printf("sessionhook: publish event: %v", err)
	}
}

// CellEntered satisfies model.SessionHandler.
func (h *ZMQHook) CellEntered(addr address.AbsAddress) {
	h.publish(traceEvent{Type: "entered", Cell: addr.Name()})
}

// CellBlocked satisfies model.SessionHandler.
func (h *ZMQHook) CellBlocked(addr, waitingOn address.AbsAddress) {
	h.publish(traceEvent{Type: "blocked", Cell: addr.Name(), Target: waitingOn.Name()})
}

// CellComputed satisfies model.SessionHandler.
func (h *ZMQHook) CellComputed(addr address.AbsAddress, result model.FormulaResult) {
	h.publish(traceEvent{Type: "computed", Cell: addr.Name(), Result: result.Str(nil)})
}

var _ model.SessionHandler = (*ZMQHook)(nil)
