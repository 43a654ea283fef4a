package hub

import (
	"encoding/json"

	"github.com/park285/Cheese-session-server/internal/obslog"
	"go.uber.org/zap"
)

// Dispatcher receives the lifecycle of admitted connections. Calls for one connection
// arrive in order from that connection's reader goroutine; implementations serialize
// them with everything else.
type Dispatcher interface {
	Connect(c *Conn)
	Message(c *Conn, raw []byte)
	Disconnect(c *Conn)
}

// Hub is the connection table plus fan-out. It is owned by the session loop and not
// safe for concurrent use; delivery goes through each connection's queue, so a
// slow peer never blocks the caller.
type Hub struct {
	conns  map[string]*Conn
	logger *zap.Logger
}

func New(logger *zap.Logger) *Hub {
	return &Hub{conns: make(map[string]*Conn), logger: obslog.Or(logger)}
}

func (h *Hub) Add(c *Conn) { h.conns[c.id] = c }

func (h *Hub) Remove(id string) (*Conn, bool) {
	c, ok := h.conns[id]
	if ok {
		delete(h.conns, id)
	}
	return c, ok
}

func (h *Hub) Get(id string) (*Conn, bool) {
	c, ok := h.conns[id]
	return c, ok
}

func (h *Hub) Len() int { return len(h.conns) }

// Send queues msg for one connection.
func (h *Hub) Send(id string, msg any) {
	c, ok := h.conns[id]
	if !ok {
		return
	}
	b, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("hub_marshal_error", zap.Error(err))
		return
	}
	h.deliver(c, b)
}

// Broadcast queues msg for every connection except the listed ids.
// A failed delivery drops that connection only.
func (h *Hub) Broadcast(msg any, except ...string) {
	b, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("hub_marshal_error", zap.Error(err))
		return
	}
	for id, c := range h.conns {
		if contains(except, id) {
			continue
		}
		h.deliver(c, b)
	}
}

func (h *Hub) deliver(c *Conn, b []byte) {
	if c.enqueue(b) {
		return
	}
	if !c.Closed() {
		h.logger.Warn("hub_send_drop",
			zap.String("conn_id", c.id),
			zap.String("username", c.identity.DisplayName),
			zap.Int("queued", len(c.send)),
		)
		c.Close()
	}
}

// CloseAll closes every connection, used on shutdown.
func (h *Hub) CloseAll() {
	for _, c := range h.conns {
		c.Close()
	}
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
