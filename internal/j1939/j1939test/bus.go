// Package j1939test provides an in-memory J1939 bus for tests. Endpoints
// follow the addressing rules of kernel J1939 sockets closely enough to run
// ISOBUS-FS peers against each other without CAN hardware.
package j1939test

import (
	"errors"
	"sync"

	"github.com/linux-can/can-utils-sub000/internal/j1939"
)

// Frame is a message delivered on the bus.
type Frame struct {
	Src  j1939.Addr
	Dst  j1939.Addr
	Data []byte
}

// Bus connects endpoints. The zero value is ready for use.
type Bus struct {
	mut       sync.Mutex
	endpoints []*Conn

	// Drop, if set, is consulted for every message. Returning true
	// discards the message before delivery.
	Drop func(f Frame) bool

	sent []Frame
}

// Open attaches a new endpoint bound to local.
func (b *Bus) Open(local j1939.Addr) *Conn {
	c := &Conn{
		bus:    b,
		local:  local,
		recv:   make(chan Frame, 64),
		errq:   make(chan j1939.ErrQueueEvent, 64),
		closed: make(chan struct{}),
	}
	b.mut.Lock()
	b.endpoints = append(b.endpoints, c)
	b.mut.Unlock()
	return c
}

// Sent returns every message sent on the bus so far.
func (b *Bus) Sent() []Frame {
	b.mut.Lock()
	defer b.mut.Unlock()
	return append([]Frame(nil), b.sent...)
}

func (b *Bus) deliver(from *Conn, dst j1939.Addr, data []byte) {
	f := Frame{
		Src:  j1939.Addr{Name: from.local.Name, Addr: from.local.Addr, PGN: dst.PGN},
		Dst:  dst,
		Data: append([]byte(nil), data...),
	}

	b.mut.Lock()
	b.sent = append(b.sent, f)
	drop := b.Drop
	targets := make([]*Conn, 0, len(b.endpoints))
	for _, c := range b.endpoints {
		if c != from && c.accepts(f) {
			targets = append(targets, c)
		}
	}
	b.mut.Unlock()

	if drop != nil && drop(f) {
		return
	}
	for _, c := range targets {
		select {
		case c.recv <- f:
		case <-c.closed:
		default:
			// Receive queue full; the kernel would drop as well.
		}
	}
}

// Conn is a bus endpoint. It implements j1939.ErrQueueConn.
type Conn struct {
	bus   *Bus
	local j1939.Addr

	mut       sync.Mutex
	peer      *j1939.Addr
	broadcast bool
	filters   []j1939.Filter

	recv      chan Frame
	errq      chan j1939.ErrQueueEvent
	closeOnce sync.Once
	closed    chan struct{}
}

var _ j1939.ErrQueueConn = (*Conn)(nil)

// Connect sets the default destination of Send.
func (c *Conn) Connect(peer j1939.Addr) {
	c.mut.Lock()
	defer c.mut.Unlock()
	c.peer = &peer
}

// SetBroadcast allows the endpoint to receive broadcast messages.
func (c *Conn) SetBroadcast(on bool) {
	c.mut.Lock()
	defer c.mut.Unlock()
	c.broadcast = on
}

// SetFilters replaces the inbound filters.
func (c *Conn) SetFilters(filters ...j1939.Filter) {
	c.mut.Lock()
	defer c.mut.Unlock()
	c.filters = filters
}

// InjectErr queues an error queue notification.
func (c *Conn) InjectErr(ev j1939.ErrQueueEvent) { c.errq <- ev }

func (c *Conn) accepts(f Frame) bool {
	select {
	case <-c.closed:
		return false
	default:
	}

	c.mut.Lock()
	defer c.mut.Unlock()

	if c.local.PGN != j1939.NoPGN && c.local.PGN != f.Dst.PGN {
		return false
	}
	if f.Dst.Addr == j1939.NoAddr {
		if !c.broadcast {
			return false
		}
	} else if f.Dst.Addr != c.local.Addr {
		return false
	}
	if len(c.filters) > 0 {
		for _, flt := range c.filters {
			if flt.Match(f.Src) {
				return true
			}
		}
		return false
	}
	return true
}

// Send implements j1939.PacketConn.
func (c *Conn) Send(b []byte) error {
	c.mut.Lock()
	peer := c.peer
	c.mut.Unlock()
	if peer == nil {
		return errNotConnected
	}
	return c.SendTo(b, *peer)
}

// SendTo implements j1939.PacketConn.
func (c *Conn) SendTo(b []byte, to j1939.Addr) error {
	select {
	case <-c.closed:
		return j1939.ErrClosed
	default:
	}
	c.bus.deliver(c, to, b)
	return nil
}

// Recv implements j1939.PacketConn.
func (c *Conn) Recv(b []byte) (int, j1939.Addr, error) {
	select {
	case f := <-c.recv:
		return copy(b, f.Data), f.Src, nil
	case <-c.closed:
		return 0, j1939.Addr{}, j1939.ErrClosed
	}
}

// RecvErr implements j1939.ErrQueueConn.
func (c *Conn) RecvErr() (j1939.ErrQueueEvent, error) {
	select {
	case ev := <-c.errq:
		return ev, nil
	case <-c.closed:
		return j1939.ErrQueueEvent{}, j1939.ErrClosed
	}
}

// Close implements j1939.PacketConn.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

var errNotConnected = errors.New("j1939test: endpoint not connected")
