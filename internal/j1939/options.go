package j1939

import "fmt"

// Option configures a socket opened by Dial.
type Option func(c *Conn) error

// Dial opens a socket on ifname and applies opts in order. The socket is
// closed if any option fails.
func Dial(ifname string, opts ...Option) (*Conn, error) {
	c, err := Open(ifname)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

// WithBind binds the socket to the local address a.
func WithBind(a Addr) Option {
	return func(c *Conn) error {
		if err := c.Bind(a); err != nil {
			return fmt.Errorf("bind %s: %w", a, err)
		}
		return nil
	}
}

// WithConnect sets the default destination to peer.
func WithConnect(peer Addr) Option {
	return func(c *Conn) error {
		if err := c.Connect(peer); err != nil {
			return fmt.Errorf("connect %s: %w", peer, err)
		}
		return nil
	}
}

// WithPriority sets the J1939 send priority (0..7).
func WithPriority(prio int) Option {
	return func(c *Conn) error { return c.SetPriority(prio) }
}

// WithBroadcast allows sending to and receiving from the global address.
func WithBroadcast() Option {
	return func(c *Conn) error { return c.SetBroadcast(true) }
}

// WithLinger makes Close wait for queued transfers.
func WithLinger() Option {
	return func(c *Conn) error { return c.SetLinger() }
}

// WithFilters installs inbound filters.
func WithFilters(filters ...Filter) Option {
	return func(c *Conn) error { return c.SetFilters(filters...) }
}

// WithErrQueue enables transmit notifications on the error queue.
func WithErrQueue() Option {
	return func(c *Conn) error { return c.EnableErrQueue() }
}
