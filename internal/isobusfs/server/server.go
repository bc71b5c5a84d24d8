// Package server implements an ISOBUS-FS file server. A single goroutine
// owns all protocol state; socket readers only forward datagrams to it.
package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-multierror"
	"github.com/linux-can/can-utils-sub000/internal/isobusfs"
	"github.com/linux-can/can-utils-sub000/internal/j1939"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

type Options struct {
	// Network opens the sockets of the server. Required.
	Network Network

	// Volumes exported to clients. At least one volume is required.
	Volumes []Volume

	// DefaultVolume is the initial current directory of new clients. It may
	// be left empty when only one volume is configured.
	DefaultVolume string

	// Name is the J1939 NAME of the server. The manufacturer code in it
	// selects the host directory `~` maps to.
	Name uint64

	// Version is the protocol version reported to clients. If Version is 0,
	// it will obtain its default from DefaultOptions.
	Version uint8

	// Registerer registers the server's metrics. Metrics are still collected
	// when nil, but not exposed.
	Registerer prometheus.Registerer

	// Optional middleware to preprocess requests with.
	Middleware []Middleware
}

// DefaultOptions provides defaults for Server.
var DefaultOptions = Options{
	Version: isobusfs.DefaultServerVersion,
}

// Server is an ISOBUS-FS file server.
type Server struct {
	log     log.Logger
	o       Options
	mw      Middleware
	metrics *metrics

	volumes *volumeSet
	handles *handlePool
	clients map[uint8]*client
	mfsDir  string

	fss   statusScheduler
	busy  uint8 // status bits collected since the last status message
	stats j1939.Stats
	txlog j1939.TxLog

	statusConn j1939.ErrQueueConn
	status     j1939.PacketConn
	requests   j1939.PacketConn
	ack        j1939.PacketConn

	state atomic.Value
}

// New creates a new Server. Call Serve to start it.
func New(l log.Logger, o Options) (*Server, error) {
	if l == nil {
		l = log.NewNopLogger()
	}
	if o.Network == nil {
		return nil, fmt.Errorf("Network must be set")
	}
	if o.Version == 0 {
		o.Version = DefaultOptions.Version
	}

	volumes, err := newVolumeSet(o.Volumes)
	if err != nil {
		return nil, err
	}
	switch {
	case o.DefaultVolume == "" && len(o.Volumes) == 1:
		o.DefaultVolume = o.Volumes[0].Name
	case o.DefaultVolume == "":
		return nil, fmt.Errorf("DefaultVolume must be set when more than one volume is configured")
	}
	if _, ok := volumes.lookup(o.DefaultVolume); !ok {
		return nil, fmt.Errorf("default volume %q is not configured", o.DefaultVolume)
	}

	for _, name := range volumes.names() {
		v, _ := volumes.lookup(name)
		err := checkDir(v.Path, v.Writable)
		switch {
		case err != nil && v.Removable:
			level.Warn(l).Log("msg", "removable volume not accessible", "volume", v.Name, "path", v.Path, "err", err)
		case err != nil:
			return nil, fmt.Errorf("volume %q: %w", v.Name, err)
		}
	}

	if o.Name == j1939.NoName {
		level.Warn(l).Log("msg", "no NAME configured, using manufacturer code 0 for the manufacturer directory")
	}

	m := newMetrics(o.Registerer)
	chain := append([]Middleware{m.middleware()}, o.Middleware...)

	s := &Server{
		log:     l,
		o:       o,
		mw:      chainMiddleware(chain),
		metrics: m,
		volumes: volumes,
		handles: newHandlePool(l),
		clients: make(map[uint8]*client),
		mfsDir:  ManufacturerDirName(o.Name),
	}
	s.state.Store(&State{})
	return s, nil
}

// recvRetryDelay is the pause after a failed receive.
const recvRetryDelay = 10 * time.Millisecond

// frame is a datagram received from the bus.
type frame struct {
	src  j1939.Addr
	data []byte
}

// Serve runs the server until ctx is canceled. It fails only when a socket
// cannot be opened. Serve should not be called again after it has exited.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.open(); err != nil {
		if cerr := s.close(); cerr != nil {
			level.Warn(s.log).Log("msg", "error when closing sockets", "err", cerr)
		}
		return err
	}

	var (
		readers sync.WaitGroup
		frames  = make(chan frame, 16)
	)
	defer func() {
		if err := s.close(); err != nil {
			level.Error(s.log).Log("msg", "error when closing server", "err", err)
		}
		readers.Wait()
		level.Debug(s.log).Log("msg", "file server exited")
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	readers.Add(3)
	go func() {
		defer readers.Done()
		s.readLoop(ctx, s.requests, frames)
	}()
	go func() {
		defer readers.Done()
		s.readLoop(ctx, s.ack, frames)
	}()
	go func() {
		defer readers.Done()
		s.errQueueLoop()
	}()

	level.Info(s.log).Log(
		"msg", "file server started",
		"volumes", strings.Join(s.volumes.names(), ","),
		"default_volume", s.o.DefaultVolume,
		"version", s.o.Version,
		"manufacturer_dir", s.mfsDir,
	)

	s.fss.start(time.Now())
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			level.Info(s.log).Log("msg", "file server exiting")
			return nil
		case f := <-frames:
			s.handleFrame(ctx, f)
		case <-timer.C:
		}

		now := time.Now()
		s.evictClients(now)
		s.sendStatus(now)
		s.publishState(now)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(time.Until(s.fss.Next()))
	}
}

func (s *Server) open() error {
	var err error
	if s.statusConn, err = s.o.Network.OpenStatus(); err != nil {
		return fmt.Errorf("opening status socket: %w", err)
	}
	s.status = j1939.LoggedConn{PacketConn: s.statusConn, Log: &s.txlog}
	if s.requests, err = s.o.Network.OpenRequests(); err != nil {
		return fmt.Errorf("opening request socket: %w", err)
	}
	if s.ack, err = s.o.Network.OpenAck(); err != nil {
		return fmt.Errorf("opening ack socket: %w", err)
	}
	return nil
}

// close releases every client, handle and socket.
func (s *Server) close() error {
	var errs error
	for addr := range s.clients {
		if err := s.removeClient(addr); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if err := s.handles.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	for _, c := range []j1939.PacketConn{s.statusConn, s.requests, s.ack} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs
}

// readLoop forwards datagrams from conn until conn is closed. Receive
// errors are logged and skipped.
func (s *Server) readLoop(ctx context.Context, conn j1939.PacketConn, out chan<- frame) {
	buf := make([]byte, isobusfs.MaxTransferLength)
	for {
		n, src, err := conn.Recv(buf)
		if errors.Is(err, j1939.ErrClosed) {
			return
		} else if err != nil {
			level.Warn(s.log).Log("msg", "failed to receive", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(recvRetryDelay):
			}
			continue
		}

		f := frame{src: src, data: append([]byte(nil), buf[:n]...)}
		select {
		case out <- f:
		case <-ctx.Done():
			return
		}
	}
}

// errQueueLoop tracks transmit notifications of the status socket.
func (s *Server) errQueueLoop() {
	for {
		ev, err := s.statusConn.RecvErr()
		if errors.Is(err, j1939.ErrClosed) {
			return
		} else if err != nil {
			level.Warn(s.log).Log("msg", "failed to read error queue", "err", err)
			continue
		}
		s.stats.Record(ev)
		if ev.Kind == j1939.ErrQueueAbort {
			level.Warn(s.log).Log("msg", "status transfer aborted", "key", ev.Key, "err", ev.Err)
		}
	}
}

func (s *Server) handleFrame(ctx context.Context, f frame) {
	switch f.src.PGN {
	case isobusfs.PGNClientToServer:
		s.handleRequest(ctx, f)
	case isobusfs.PGNAck:
		s.handleAck(f)
	default:
		level.Warn(s.log).Log("msg", "ignoring message with unsupported PGN", "src", f.src)
	}
}

func (s *Server) handleRequest(ctx context.Context, f frame) {
	req, err := isobusfs.DecodeRequest(f.data)
	if errors.Is(err, isobusfs.ErrShortFrame) || errors.Is(err, isobusfs.ErrUnknownGroup) {
		level.Warn(s.log).Log("msg", "rejecting frame", "src", f.src, "len", len(f.data), "err", err)
		s.sendNack(f)
		return
	}

	now := time.Now()
	c, cerr := s.client(f.src.Addr, now)
	if cerr != nil {
		level.Warn(s.log).Log("msg", "can't add client", "src", f.src, "err", cerr)
		return
	}

	hdr := &RequestHeader{
		Client:   c.addr,
		Session:  c.session.String(),
		Command:  isobusfs.Command(f.data[0]),
		Received: now,
	}

	var resp isobusfs.Response
	if err != nil {
		level.Warn(c.log).Log("msg", "malformed request", "cmd", hdr.Command, "err", err)
		resp = errorReply(hdr.Command, f.data[1], isobusfs.ErrorMalformedRequest)
	} else {
		resp, err = s.mw.HandleRequest(ctx, hdr, req, s.invoke)
		if err != nil {
			level.Debug(c.log).Log("msg", "request failed", "cmd", hdr.Command, "err", err)
			resp = errorReply(hdr.Command, f.data[1], err)
		}
	}
	if resp == nil {
		return
	}
	s.reply(c, resp)
}

// errorReply builds a bare error response. tan is the second byte of the
// request, which holds the TAN for every command that carries one.
func errorReply(cmd isobusfs.Command, tan uint8, err error) isobusfs.Response {
	return &isobusfs.ErrorResponse{
		Cmd:   cmd,
		Reply: isobusfs.Reply{TAN: tan, Error: isobusfs.ErrorFor(err)},
	}
}

func (s *Server) reply(c *client, resp isobusfs.Response) {
	data, err := isobusfs.Encode(resp)
	if err != nil {
		level.Error(c.log).Log("msg", "failed to encode response", "cmd", resp.Command(), "err", err)

		var tan uint8
		if r, ok := resp.(isobusfs.Replier); ok {
			tan = r.Status().TAN
		}
		if data, err = isobusfs.Encode(errorReply(resp.Command(), tan, isobusfs.ErrorOutOfMemory)); err != nil {
			return
		}
	}
	if err := c.conn.Send(data); err != nil {
		level.Warn(c.log).Log("msg", "failed to send response", "cmd", resp.Command(), "err", err)
	}
}

// sendNack rejects the frame f with a negative acknowledgement addressed to
// its sender.
func (s *Server) sendNack(f frame) {
	var cmd isobusfs.Command
	if len(f.data) > 0 {
		cmd = isobusfs.Command(f.data[0])
	}
	nack := isobusfs.Ack{
		Control: isobusfs.AckNegative,
		Command: cmd,
		Address: f.src.Addr,
		PGN:     f.src.PGN,
	}
	to := f.src
	to.PGN = isobusfs.PGNAck

	s.metrics.nacks.Inc()
	if err := s.ack.SendTo(nack.Encode(), to); err != nil {
		level.Warn(s.log).Log("msg", "failed to send NACK", "dst", to, "err", err)
	}
}

func (s *Server) handleAck(f frame) {
	ack, err := isobusfs.DecodeAck(f.data)
	if err != nil {
		level.Warn(s.log).Log("msg", "malformed acknowledgement", "src", f.src, "err", err)
		return
	}
	switch ack.Control {
	case isobusfs.AckPositive:
		level.Debug(s.log).Log("msg", "received ACK", "src", f.src, "cmd", ack.Command)
	case isobusfs.AckNegative:
		level.Warn(s.log).Log("msg", "received NACK", "src", f.src, "cmd", ack.Command)
		for _, e := range s.txlog.Entries() {
			level.Warn(s.log).Log("msg", "transmit log", "entry", e)
		}
	default:
		level.Warn(s.log).Log("msg", "unsupported acknowledgement control", "src", f.src, "control", ack.Control)
	}
}

// sendStatus broadcasts the File Server Status message when it is due.
func (s *Server) sendStatus(now time.Time) {
	due, late := s.fss.due(now)
	if !due {
		return
	}
	if late > 0 {
		s.metrics.statusLate.Inc()
		level.Warn(s.log).Log("msg", "too late to send next file server status message", "late", late)
	}
	if s.stats.Pending() {
		s.metrics.statusUnacked.Inc()
		level.Warn(s.log).Log("msg", "previous file server status message was not acknowledged")
	}

	msg := &isobusfs.StatusMessage{Status: s.busy, NumOpenFiles: uint8(s.handles.Len())}
	data, err := isobusfs.Encode(msg)
	if err == nil {
		err = s.status.Send(data)
	}
	if err != nil {
		level.Warn(s.log).Log("msg", "failed to send file server status", "err", err)
	} else {
		s.metrics.statusSent.Inc()
		level.Debug(s.log).Log("msg", "sent file server status", "status", msg.Status, "open_files", msg.NumOpenFiles)
	}

	s.fss.sent(now, s.busy)
	s.busy = 0
}

// markBusy records that a read or write was served.
func (s *Server) markBusy(bits uint8) {
	s.busy |= bits
	s.fss.poke(s.busy)
}
