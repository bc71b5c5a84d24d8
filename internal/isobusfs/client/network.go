package client

import (
	"github.com/linux-can/can-utils-sub000/internal/isobusfs"
	"github.com/linux-can/can-utils-sub000/internal/j1939"
)

// Network opens the sockets used by a Client.
type Network interface {
	// OpenMaintenance opens the socket the connection maintenance message is
	// sent on. Its error queue reports transmit progress.
	OpenMaintenance() (j1939.ErrQueueConn, error)
	// OpenBroadcast opens the socket File Server Status broadcasts arrive on.
	OpenBroadcast() (j1939.PacketConn, error)
	// OpenMain opens the socket requests are sent and responses received on.
	OpenMain() (j1939.PacketConn, error)
	// OpenAck opens the socket acknowledgements are exchanged on.
	OpenAck() (j1939.PacketConn, error)
}

// NewNetwork returns a Network of kernel J1939 sockets on the CAN interface
// ifname. local is the client's own NAME or address, server the file
// server's.
func NewNetwork(ifname string, local, server j1939.Addr) Network {
	local.PGN = j1939.NoPGN
	server.PGN = isobusfs.PGNClientToServer
	return &j1939Network{ifname: ifname, local: local, server: server}
}

type j1939Network struct {
	ifname string
	local  j1939.Addr
	server j1939.Addr
}

func (n *j1939Network) bind(pgn uint32) j1939.Option {
	a := n.local
	a.PGN = pgn
	return j1939.WithBind(a)
}

func (n *j1939Network) OpenMaintenance() (j1939.ErrQueueConn, error) {
	return dialed(j1939.Dial(n.ifname,
		j1939.WithErrQueue(),
		n.bind(j1939.NoPGN),
		j1939.WithLinger(),
		j1939.WithPriority(isobusfs.PriorityDefault),
		j1939.WithConnect(n.server),
	))
}

func (n *j1939Network) OpenBroadcast() (j1939.PacketConn, error) {
	return dialed(j1939.Dial(n.ifname,
		j1939.WithBind(j1939.Addr{Name: j1939.NoName, Addr: j1939.NoAddr, PGN: isobusfs.PGNServerToClient}),
		j1939.WithBroadcast(),
		j1939.WithConnect(n.server),
	))
}

func (n *j1939Network) OpenMain() (j1939.PacketConn, error) {
	return dialed(j1939.Dial(n.ifname,
		n.bind(isobusfs.PGNServerToClient),
		j1939.WithLinger(),
		j1939.WithPriority(isobusfs.PriorityDefault),
		j1939.WithConnect(n.server),
	))
}

func (n *j1939Network) OpenAck() (j1939.PacketConn, error) {
	return dialed(j1939.Dial(n.ifname,
		n.bind(isobusfs.PGNAck),
		j1939.WithPriority(isobusfs.PriorityAck),
	))
}

func dialed(c *j1939.Conn, err error) (j1939.ErrQueueConn, error) {
	if err != nil {
		return nil, err
	}
	return c, nil
}
