package server

import (
	"github.com/linux-can/can-utils-sub000/internal/isobusfs"
	"github.com/linux-can/can-utils-sub000/internal/j1939"
)

// Network opens the sockets used by a Server.
type Network interface {
	// OpenStatus opens the socket File Server Status messages are
	// broadcast on. Its error queue reports transmit progress.
	OpenStatus() (j1939.ErrQueueConn, error)
	// OpenRequests opens the socket client requests arrive on.
	OpenRequests() (j1939.PacketConn, error)
	// OpenAck opens the socket acknowledgements are exchanged on.
	OpenAck() (j1939.PacketConn, error)
	// OpenClient opens a send-only socket connected to a client.
	OpenClient(addr uint8) (j1939.PacketConn, error)
}

// NewNetwork returns a Network of kernel J1939 sockets on the CAN
// interface ifname. The server claims either name or addr.
func NewNetwork(ifname string, name uint64, addr uint8) Network {
	return &j1939Network{ifname: ifname, local: j1939.Addr{Name: name, Addr: addr}}
}

type j1939Network struct {
	ifname string
	local  j1939.Addr
}

func (n *j1939Network) bind(pgn uint32) j1939.Option {
	a := n.local
	a.PGN = pgn
	return j1939.WithBind(a)
}

func (n *j1939Network) OpenStatus() (j1939.ErrQueueConn, error) {
	return dialed(j1939.Dial(n.ifname,
		j1939.WithErrQueue(),
		n.bind(isobusfs.PGNClientToServer),
		j1939.WithBroadcast(),
		j1939.WithLinger(),
		j1939.WithPriority(isobusfs.PriorityStatus),
		j1939.WithConnect(j1939.Addr{Name: j1939.NoName, Addr: j1939.NoAddr, PGN: isobusfs.PGNServerToClient}),
	))
}

func (n *j1939Network) OpenRequests() (j1939.PacketConn, error) {
	return dialed(j1939.Dial(n.ifname, n.bind(isobusfs.PGNClientToServer)))
}

func (n *j1939Network) OpenAck() (j1939.PacketConn, error) {
	return dialed(j1939.Dial(n.ifname,
		n.bind(isobusfs.PGNAck),
		j1939.WithPriority(isobusfs.PriorityAck),
	))
}

func (n *j1939Network) OpenClient(addr uint8) (j1939.PacketConn, error) {
	return dialed(j1939.Dial(n.ifname,
		n.bind(isobusfs.PGNClientToServer),
		j1939.WithLinger(),
		j1939.WithFilters(j1939.DropAll),
		j1939.WithPriority(isobusfs.PriorityDefault),
		j1939.WithConnect(j1939.Addr{Name: j1939.NoName, Addr: addr, PGN: isobusfs.PGNServerToClient}),
	))
}

// dialed converts the result of j1939.Dial. A failed dial yields a nil
// interface.
func dialed(c *j1939.Conn, err error) (j1939.ErrQueueConn, error) {
	if err != nil {
		return nil, err
	}
	return c, nil
}
