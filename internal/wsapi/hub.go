package wsapi

import (
	"context"
	"sync"

	"github.com/gofiber/contrib/websocket"

	"github.com/kjlabs/polyglot-broadcast/internal/broadcast"
	"github.com/kjlabs/polyglot-broadcast/internal/wire"
)

// outboundConn is the per-connection actor state: a WS connection owns its
// own outbound queue and a single writer goroutine, so concurrent senders
// (the broadcast fan-out, the control router, the heartbeat monitor) never
// write to the same *websocket.Conn from more than one goroutine.
type outboundConn struct {
	conn  *websocket.Conn
	audio chan []byte
	json  chan wire.Outbound
	done  chan struct{}
}

// Hub tracks every live connection's actor and implements
// broadcast.Transport by handing audio frames to the matching actor's
// outbound queue.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*outboundConn
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]*outboundConn)}
}

// Register creates the actor for connID and starts its writer goroutine,
// returning a stop func to call once the connection's read loop exits.
func (h *Hub) Register(connID string, conn *websocket.Conn) (stop func()) {
	oc := &outboundConn{
		conn:  conn,
		audio: make(chan []byte, 32),
		json:  make(chan wire.Outbound, 32),
		done:  make(chan struct{}),
	}

	h.mu.Lock()
	h.conns[connID] = oc
	h.mu.Unlock()

	go oc.writeLoop()

	return func() {
		h.mu.Lock()
		delete(h.conns, connID)
		h.mu.Unlock()
		close(oc.done)
	}
}

func (oc *outboundConn) writeLoop() {
	for {
		select {
		case <-oc.done:
			return
		case b, ok := <-oc.audio:
			if !ok {
				return
			}
			if err := oc.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
				return
			}
		case msg, ok := <-oc.json:
			if !ok {
				return
			}
			if err := oc.conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}

// SendAudio implements broadcast.Transport: a full queue means the
// listener's writer is falling behind, which is reported as transient
// rather than blocking the fan-out goroutine (section 4.M never blocks on
// a single slow connection).
func (h *Hub) SendAudio(ctx context.Context, connID string, audio []byte) broadcast.SendOutcome {
	h.mu.RLock()
	oc, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return broadcast.SendGone
	}
	select {
	case oc.audio <- audio:
		return broadcast.SendSuccess
	default:
		return broadcast.SendTransient
	}
}

// SendJSON delivers a control/status/error message to one connection,
// used by the control router and heartbeat monitor.
func (h *Hub) SendJSON(connID string, msg wire.Outbound) bool {
	h.mu.RLock()
	oc, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	select {
	case oc.json <- msg:
		return true
	default:
		return false
	}
}
