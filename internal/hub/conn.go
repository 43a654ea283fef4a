package hub

import (
	"sync"

	"github.com/google/uuid"
	"github.com/park285/Cheese-session-server/internal/identity"
)

// Conn is one admitted connection. Session-relevant state (role, seat) lives in the
// session registry, never here.
type Conn struct {
	id       string
	identity identity.Identity
	adminReq bool

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewConn builds a connection for an already verified identity. Frames queued for it
// are drained by the server's write pump, or by Frames for in-process peers.
func NewConn(id identity.Identity, adminReq bool, buffer int) *Conn {
	if buffer <= 0 {
		buffer = 64
	}
	return &Conn{
		id:       uuid.NewString(),
		identity: id,
		adminReq: adminReq,
		send:     make(chan []byte, buffer),
		done:     make(chan struct{}),
	}
}

func (c *Conn) ID() string                  { return c.id }
func (c *Conn) Identity() identity.Identity { return c.identity }

// Frames exposes the outbound queue.
func (c *Conn) Frames() <-chan []byte { return c.send }

// AdminRequested reports the isAdmin hint from the handshake.
func (c *Conn) AdminRequested() bool { return c.adminReq }

// Close stops the write pump, which closes the transport; the read pump then
// reports the disconnect. Safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// enqueue never blocks: false means the connection is closed or its queue is full.
func (c *Conn) enqueue(b []byte) bool {
	if c.Closed() {
		return false
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}
