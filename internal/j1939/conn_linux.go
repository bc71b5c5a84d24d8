//go:build linux

package j1939

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// timestampingFlags subscribes a socket to scheduling and acknowledgement
// notifications with per-message keys and transfer statistics.
const timestampingFlags = unix.SOF_TIMESTAMPING_SOFTWARE |
	unix.SOF_TIMESTAMPING_OPT_CMSG |
	unix.SOF_TIMESTAMPING_TX_ACK |
	unix.SOF_TIMESTAMPING_TX_SCHED |
	unix.SOF_TIMESTAMPING_OPT_STATS |
	unix.SOF_TIMESTAMPING_OPT_TSONLY |
	unix.SOF_TIMESTAMPING_OPT_ID

// Conn is a CAN_J1939 datagram socket. Reads park on the Go runtime poller,
// so Recv and RecvErr may be called from dedicated goroutines and are
// unblocked by Close.
type Conn struct {
	f       *os.File
	rc      syscall.RawConn
	ifindex int
}

var (
	_ PacketConn   = (*Conn)(nil)
	_ ErrQueueConn = (*Conn)(nil)
)

// Open creates an unbound J1939 socket on the named CAN interface.
func Open(ifname string) (*Conn, error) {
	iface, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, fmt.Errorf("looking up interface %q: %w", ifname, err)
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.CAN_J1939)
	if err != nil {
		return nil, fmt.Errorf("socket(j1939): %w", err)
	}

	f := os.NewFile(uintptr(fd), "j1939:"+ifname)
	rc, err := f.SyscallConn()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Conn{f: f, rc: rc, ifindex: iface.Index}, nil
}

func (c *Conn) sockaddr(a Addr) *unix.SockaddrCANJ1939 {
	return &unix.SockaddrCANJ1939{
		Ifindex: c.ifindex,
		Name:    a.Name,
		PGN:     a.PGN,
		Addr:    a.Addr,
	}
}

func (c *Conn) control(fn func(fd int) error) error {
	var opErr error
	err := c.rc.Control(func(fd uintptr) {
		opErr = fn(int(fd))
	})
	if errors.Is(err, os.ErrClosed) {
		return ErrClosed
	} else if err != nil {
		return err
	}
	return opErr
}

// Bind binds the socket to a local NAME or address and PGN.
func (c *Conn) Bind(local Addr) error {
	return c.control(func(fd int) error {
		if err := unix.Bind(fd, c.sockaddr(local)); err != nil {
			return fmt.Errorf("bind %s: %w", local, err)
		}
		return nil
	})
}

// Connect sets the default destination used by Send.
func (c *Conn) Connect(peer Addr) error {
	return c.control(func(fd int) error {
		if err := unix.Connect(fd, c.sockaddr(peer)); err != nil {
			return fmt.Errorf("connect %s: %w", peer, err)
		}
		return nil
	})
}

// SetPriority sets the J1939 send priority (0 highest, 7 lowest).
func (c *Conn) SetPriority(prio int) error {
	return c.control(func(fd int) error {
		return unix.SetsockoptInt(fd, solCANJ1939, soJ1939SendPrio, prio)
	})
}

// SetBroadcast allows sending to and receiving from the global address.
func (c *Conn) SetBroadcast(on bool) error {
	v := 0
	if on {
		v = 1
	}
	return c.control(func(fd int) error {
		return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_BROADCAST, v)
	})
}

// SetLinger enables SO_LINGER with a zero timeout, dropping unsent data on
// close.
func (c *Conn) SetLinger() error {
	return c.control(func(fd int) error {
		return unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, &unix.Linger{Onoff: 1, Linger: 0})
	})
}

// SetFilters replaces the inbound filters of the socket.
func (c *Conn) SetFilters(filters ...Filter) error {
	// struct j1939_filter: name, name_mask u64; pgn, pgn_mask u32;
	// addr, addr_mask u8; padded to 32 bytes.
	const filterSize = 32
	raw := make([]byte, 0, filterSize*len(filters))
	for _, f := range filters {
		var b [filterSize]byte
		binary.NativeEndian.PutUint64(b[0:], f.Name)
		binary.NativeEndian.PutUint64(b[8:], f.NameMask)
		binary.NativeEndian.PutUint32(b[16:], f.PGN)
		binary.NativeEndian.PutUint32(b[20:], f.PGNMask)
		b[24] = f.Addr
		b[25] = f.AddrMask
		raw = append(raw, b[:]...)
	}
	return c.control(func(fd int) error {
		return unix.SetsockoptString(fd, solCANJ1939, soJ1939Filter, string(raw))
	})
}

// EnableErrQueue turns on the J1939 error queue together with the
// timestamping options that feed it.
func (c *Conn) EnableErrQueue() error {
	return c.control(func(fd int) error {
		if err := unix.SetsockoptInt(fd, solCANJ1939, soJ1939ErrQueue, 1); err != nil {
			return fmt.Errorf("set errqueue: %w", err)
		}
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_TIMESTAMPING, timestampingFlags); err != nil {
			return fmt.Errorf("set timestamping: %w", err)
		}
		return nil
	})
}

// Send implements PacketConn.
func (c *Conn) Send(b []byte) error {
	return c.control(func(fd int) error {
		_, err := unix.SendmsgN(fd, b, nil, nil, unix.MSG_DONTWAIT)
		return err
	})
}

// SendTo implements PacketConn.
func (c *Conn) SendTo(b []byte, to Addr) error {
	return c.control(func(fd int) error {
		return unix.Sendto(fd, b, unix.MSG_DONTWAIT, c.sockaddr(to))
	})
}

// Recv implements PacketConn.
func (c *Conn) Recv(b []byte) (int, Addr, error) {
	var (
		n    int
		from unix.Sockaddr
		rerr error
	)
	err := c.rc.Read(func(fd uintptr) bool {
		n, from, rerr = unix.Recvfrom(int(fd), b, unix.MSG_DONTWAIT)
		return rerr != unix.EAGAIN
	})
	if errors.Is(err, os.ErrClosed) {
		return 0, Addr{}, ErrClosed
	} else if err != nil {
		return 0, Addr{}, err
	} else if rerr != nil {
		return 0, Addr{}, rerr
	}

	var src Addr
	if sa, ok := from.(*unix.SockaddrCANJ1939); ok {
		src = Addr{Name: sa.Name, PGN: sa.PGN, Addr: sa.Addr}
	}
	return n, src, nil
}

// RecvErr implements ErrQueueConn.
func (c *Conn) RecvErr() (ErrQueueEvent, error) {
	var (
		buf   [64]byte
		oob   [256]byte
		oobn  int
		flags int
		rerr  error
	)
	err := c.rc.Read(func(fd uintptr) bool {
		_, oobn, flags, _, rerr = unix.Recvmsg(int(fd), buf[:], oob[:], unix.MSG_ERRQUEUE|unix.MSG_DONTWAIT)
		return rerr != unix.EAGAIN
	})
	if errors.Is(err, os.ErrClosed) {
		return ErrQueueEvent{}, ErrClosed
	} else if err != nil {
		return ErrQueueEvent{}, err
	} else if rerr != nil {
		return ErrQueueEvent{}, rerr
	}
	if flags&unix.MSG_CTRUNC != 0 {
		return ErrQueueEvent{}, fmt.Errorf("error notification truncated")
	}

	msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return ErrQueueEvent{}, fmt.Errorf("parsing error notification: %w", err)
	}
	return parseErrQueue(msgs)
}

// Close closes the socket, unblocking pending reads.
func (c *Conn) Close() error {
	return c.f.Close()
}
