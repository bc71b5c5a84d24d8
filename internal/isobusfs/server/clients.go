package server

import (
	"fmt"
	"sort"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-multierror"
	"github.com/linux-can/can-utils-sub000/internal/isobusfs"
	"github.com/linux-can/can-utils-sub000/internal/j1939"
	uuid "github.com/satori/go.uuid"
)

// client is a peer known to the server. Clients are created on their first
// request and evicted after isobusfs.ClientTimeout of silence.
type client struct {
	addr    uint8
	session uuid.UUID
	log     log.Logger

	// conn is a send-only socket connected to the client.
	conn j1939.PacketConn

	cwd      string
	version  uint8
	joined   time.Time
	lastSeen time.Time
}

// client returns the client with the given address, creating it when it is
// not known yet. The client's last seen time is updated.
func (s *Server) client(addr uint8, now time.Time) (*client, error) {
	if c, ok := s.clients[addr]; ok {
		c.lastSeen = now
		return c, nil
	}
	if len(s.clients) >= isobusfs.MaxClients {
		return nil, fmt.Errorf("too many clients (%d)", len(s.clients))
	}

	conn, err := s.o.Network.OpenClient(addr)
	if err != nil {
		return nil, fmt.Errorf("opening socket for client 0x%02x: %w", addr, err)
	}

	session := uuid.NewV4()
	c := &client{
		addr:     addr,
		session:  session,
		log:      log.With(s.log, "client", fmt.Sprintf("0x%02x", addr), "session", session),
		conn:     j1939.LoggedConn{PacketConn: conn, Log: &s.txlog},
		cwd:      s.defaultDir(),
		joined:   now,
		lastSeen: now,
	}
	s.clients[addr] = c
	s.metrics.clients.Set(float64(len(s.clients)))

	level.Debug(c.log).Log("msg", "client added")
	return c, nil
}

// defaultDir returns the initial current directory of a client.
func (s *Server) defaultDir() string {
	return `\\` + s.o.DefaultVolume + `\`
}

// evictClients removes every client that has not been heard of for longer
// than isobusfs.ClientTimeout.
func (s *Server) evictClients(now time.Time) {
	for addr, c := range s.clients {
		if now.Sub(c.lastSeen) <= isobusfs.ClientTimeout {
			continue
		}
		level.Info(c.log).Log("msg", "client timed out", "last_seen", c.lastSeen)
		if err := s.removeClient(addr); err != nil {
			level.Warn(c.log).Log("msg", "error when removing client", "err", err)
		}
	}
}

// removeClient forgets a client, releasing its handles and volume usage.
func (s *Server) removeClient(addr uint8) error {
	c, ok := s.clients[addr]
	if !ok {
		return nil
	}
	delete(s.clients, addr)
	s.metrics.clients.Set(float64(len(s.clients)))

	var errs error
	if err := s.handles.releaseClient(addr); err != nil {
		errs = multierror.Append(errs, err)
	}
	s.volumes.release(addr)
	if err := c.conn.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	level.Debug(c.log).Log("msg", "client removed")
	return errs
}

// ClientState describes a connected client.
type ClientState struct {
	Address    uint8     `msgpack:"address"`
	Session    string    `msgpack:"session"`
	CurrentDir string    `msgpack:"current_dir"`
	Version    uint8     `msgpack:"version"`
	Joined     time.Time `msgpack:"joined"`
	LastSeen   time.Time `msgpack:"last_seen"`
}

func (s *Server) clientState() []ClientState {
	out := make([]ClientState, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, ClientState{
			Address:    c.addr,
			Session:    c.session.String(),
			CurrentDir: c.cwd,
			Version:    c.version,
			Joined:     c.joined,
			LastSeen:   c.lastSeen,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}
