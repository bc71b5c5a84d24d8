//go:build !linux

package j1939

import "fmt"

// Conn is unavailable outside of Linux.
type Conn struct{}

// Open always fails on platforms without CAN_J1939 sockets.
func Open(ifname string) (*Conn, error) {
	return nil, fmt.Errorf("j1939 sockets are not supported on this platform")
}

func (c *Conn) Bind(Addr) error                 { return ErrClosed }
func (c *Conn) Connect(Addr) error              { return ErrClosed }
func (c *Conn) SetPriority(int) error           { return ErrClosed }
func (c *Conn) SetBroadcast(bool) error         { return ErrClosed }
func (c *Conn) SetLinger() error                { return ErrClosed }
func (c *Conn) SetFilters(...Filter) error      { return ErrClosed }
func (c *Conn) EnableErrQueue() error           { return ErrClosed }
func (c *Conn) Send([]byte) error               { return ErrClosed }
func (c *Conn) SendTo([]byte, Addr) error       { return ErrClosed }
func (c *Conn) Recv([]byte) (int, Addr, error)  { return 0, Addr{}, ErrClosed }
func (c *Conn) RecvErr() (ErrQueueEvent, error) { return ErrQueueEvent{}, ErrClosed }
func (c *Conn) Close() error                    { return nil }
