// Package j1939 is a small facade over Linux CAN_J1939 datagram sockets.
// The kernel does the transport protocol (TP/ETP) work; this package binds,
// connects, configures and moves whole messages.
package j1939

import (
	"errors"
	"fmt"
	"time"
)

// Well-known address values.
const (
	// NoName means no 64-bit NAME is used for addressing.
	NoName uint64 = 0
	// NoPGN leaves the PGN unset when binding.
	NoPGN uint32 = 0x40000
	// NoAddr is the global (broadcast) address.
	NoAddr uint8 = 0xFF
	// IdleAddr is the null address of a node without a claimed address.
	IdleAddr uint8 = 0xFE

	// PGNPDU1Max masks a PDU1 PGN, clearing its destination byte.
	PGNPDU1Max uint32 = 0x3FF00
)

// ErrClosed is returned by operations on a closed connection.
var ErrClosed = errors.New("j1939: use of closed connection")

// Addr addresses a J1939 endpoint. Either Name or Addr identifies the node.
type Addr struct {
	Name uint64
	PGN  uint32
	Addr uint8
}

// Network implements net.Addr.
func (a Addr) Network() string { return "j1939" }

func (a Addr) String() string {
	if a.Name != NoName {
		return fmt.Sprintf("name=%016x,pgn=0x%05x", a.Name, a.PGN)
	}
	return fmt.Sprintf("addr=0x%02x,pgn=0x%05x", a.Addr, a.PGN)
}

// Filter is an inbound J1939 filter. A message passes when every masked
// field matches.
type Filter struct {
	Name     uint64
	NameMask uint64
	PGN      uint32
	PGNMask  uint32
	Addr     uint8
	AddrMask uint8
}

// DropAll is a filter that matches no unicast or broadcast source. It turns
// a socket into a transmit-only socket so the kernel does not acknowledge
// transport sessions on its behalf.
var DropAll = Filter{Addr: NoAddr, AddrMask: 0xFF}

// Match reports whether a message from src passes f.
func (f Filter) Match(src Addr) bool {
	return src.Name&f.NameMask == f.Name&f.NameMask &&
		src.PGN&f.PGNMask == f.PGN&f.PGNMask &&
		src.Addr&f.AddrMask == f.Addr&f.AddrMask
}

// PacketConn is the message-level view of a J1939 socket used by protocol
// code. *Conn implements it.
type PacketConn interface {
	// Send sends b to the connected peer without blocking.
	Send(b []byte) error
	// SendTo sends b to the given peer without blocking.
	SendTo(b []byte, to Addr) error
	// Recv blocks until a message is received, returning its length and
	// source.
	Recv(b []byte) (int, Addr, error)
	Close() error
}

// ErrQueueConn is a PacketConn with the error queue enabled.
type ErrQueueConn interface {
	PacketConn
	// RecvErr blocks until an error queue notification is available.
	RecvErr() (ErrQueueEvent, error)
}

// ErrQueueKind classifies error queue notifications.
type ErrQueueKind int

const (
	ErrQueueUnknown ErrQueueKind = iota
	ErrQueueSched                // Message queued for transmission.
	ErrQueueAck                  // Message fully acknowledged by the bus.
	ErrQueueAbort                // Transmission aborted.
)

func (k ErrQueueKind) String() string {
	switch k {
	case ErrQueueSched:
		return "ENQ"
	case ErrQueueAck:
		return "ACK"
	case ErrQueueAbort:
		return "ABT"
	}
	return "unk"
}

// ErrQueueEvent is a parsed error queue notification.
type ErrQueueEvent struct {
	Kind ErrQueueKind
	// Key is the per-socket message counter assigned at send time.
	Key uint32
	// Err holds the abort reason for ErrQueueAbort events.
	Err error
	// BytesAcked is set when the notification carried transfer statistics.
	BytesAcked uint32
	HasStats   bool
	Timestamp  time.Time
}
