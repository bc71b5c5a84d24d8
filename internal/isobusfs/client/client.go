// Package client implements an interactive ISOBUS-FS client. A single
// goroutine owns all protocol state; socket readers and the command input
// only forward to it.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
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

// Prompt is printed when the client waits for a command.
const Prompt = "isobusfs> "

// ErrNacked is passed to pending callbacks when the server rejects a
// message with a negative acknowledgement.
var ErrNacked = errors.New("rejected by file server")

// History provides recent log lines for the dmesg command.
type History interface {
	Lines() []string
}

type Options struct {
	// Network opens the sockets of the client. Required.
	Network Network

	// Version is the protocol version announced in the connection
	// maintenance message. If Version is 0, it will obtain its default from
	// DefaultOptions.
	Version uint8

	// Out receives command output. Defaults to io.Discard.
	Out io.Writer

	// History is shown by the dmesg command. Optional.
	History History

	// Registerer registers the client's metrics. Metrics are still collected
	// when nil, but not exposed.
	Registerer prometheus.Registerer
}

// DefaultOptions provides defaults for Client.
var DefaultOptions = Options{
	Version: isobusfs.DefaultClientVersion,
}

// Client is an ISOBUS-FS client.
type Client struct {
	log     log.Logger
	o       Options
	out     io.Writer
	metrics *metrics

	events      *eventTable
	tan         uint8
	op          string // running command, empty when idle
	state       atomic.Uint32
	selftest    *selftest
	interactive bool

	active       atomic.Bool
	lastStatus   time.Time
	serverStatus isobusfs.StatusMessage

	nextMaintenance time.Time
	stats           j1939.Stats
	txlog           j1939.TxLog

	maintConn j1939.ErrQueueConn
	maint     j1939.PacketConn
	bcast     j1939.PacketConn
	mainConn  j1939.PacketConn
	main      j1939.PacketConn
	ack       j1939.PacketConn
}

// New creates a new Client. Call Run to start it.
func New(l log.Logger, o Options) (*Client, error) {
	if l == nil {
		l = log.NewNopLogger()
	}
	if o.Network == nil {
		return nil, fmt.Errorf("Network must be set")
	}
	if o.Version == 0 {
		o.Version = DefaultOptions.Version
	}
	out := o.Out
	if out == nil {
		out = io.Discard
	}

	return &Client{
		log:     l,
		o:       o,
		out:     out,
		metrics: newMetrics(o.Registerer),
		events:  newEventTable(isobusfs.EventTimeout),
	}, nil
}

// Active reports whether the file server is currently sending status
// messages.
func (c *Client) Active() bool { return c.active.Load() }

// frame is a datagram received from the bus.
type frame struct {
	sock socket
	src  j1939.Addr
	data []byte
}

// Run runs the client until ctx is canceled, a socket fails, the exit
// command is entered or commands is closed. commands delivers lines of user
// input; a nil channel runs the client without a command line.
func (c *Client) Run(ctx context.Context, commands <-chan string) error {
	if err := c.open(); err != nil {
		if cerr := c.close(); cerr != nil {
			level.Warn(c.log).Log("msg", "error when closing sockets", "err", cerr)
		}
		return err
	}

	var (
		readers sync.WaitGroup
		frames  = make(chan frame, 16)
		readErr = make(chan error, 3)
	)
	defer func() {
		if err := c.close(); err != nil {
			level.Error(c.log).Log("msg", "error when closing client", "err", err)
		}
		readers.Wait()
		level.Debug(c.log).Log("msg", "client exited")
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	readers.Add(4)
	go func() {
		defer readers.Done()
		c.readLoop(ctx, sockMain, c.mainConn, frames, readErr)
	}()
	go func() {
		defer readers.Done()
		c.readLoop(ctx, sockBroadcast, c.bcast, frames, readErr)
	}()
	go func() {
		defer readers.Done()
		c.readLoop(ctx, sockAck, c.ack, frames, readErr)
	}()
	go func() {
		defer readers.Done()
		c.errQueueLoop()
	}()

	level.Info(c.log).Log("msg", "client started", "version", c.o.Version)

	c.interactive = commands != nil
	c.nextMaintenance = time.Now()
	c.prompt()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			level.Info(c.log).Log("msg", "client exiting")
			return nil
		case err := <-readErr:
			return err
		case f := <-frames:
			c.handleFrame(f, time.Now())
		case line, ok := <-commands:
			if !ok || c.exec(line) {
				level.Info(c.log).Log("msg", "client exiting")
				return nil
			}
		case <-timer.C:
		}

		now := time.Now()
		c.expireEvents(now)
		c.checkServer(now)
		c.sendMaintenance(now)
		if c.selftest != nil {
			c.selftest.tick(now)
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(time.Until(c.nextDeadline()))
	}
}

func (c *Client) open() error {
	var err error
	if c.maintConn, err = c.o.Network.OpenMaintenance(); err != nil {
		return fmt.Errorf("opening maintenance socket: %w", err)
	}
	c.maint = j1939.LoggedConn{PacketConn: c.maintConn, Log: &c.txlog}
	if c.bcast, err = c.o.Network.OpenBroadcast(); err != nil {
		return fmt.Errorf("opening broadcast socket: %w", err)
	}
	if c.mainConn, err = c.o.Network.OpenMain(); err != nil {
		return fmt.Errorf("opening main socket: %w", err)
	}
	c.main = j1939.LoggedConn{PacketConn: c.mainConn, Log: &c.txlog}
	if c.ack, err = c.o.Network.OpenAck(); err != nil {
		return fmt.Errorf("opening ack socket: %w", err)
	}
	return nil
}

func (c *Client) close() error {
	var errs error
	for _, conn := range []j1939.PacketConn{c.maintConn, c.bcast, c.mainConn, c.ack} {
		if conn == nil {
			continue
		}
		if err := conn.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs
}

func (c *Client) readLoop(ctx context.Context, sock socket, conn j1939.PacketConn, out chan<- frame, errc chan<- error) {
	buf := make([]byte, isobusfs.MaxTransferLength)
	for {
		n, src, err := conn.Recv(buf)
		if errors.Is(err, j1939.ErrClosed) {
			return
		} else if err != nil {
			errc <- fmt.Errorf("receiving on %s socket: %w", sock, err)
			return
		}

		f := frame{sock: sock, src: src, data: append([]byte(nil), buf[:n]...)}
		select {
		case out <- f:
		case <-ctx.Done():
			return
		}
	}
}

// errQueueLoop tracks transmit notifications of the maintenance socket.
func (c *Client) errQueueLoop() {
	for {
		ev, err := c.maintConn.RecvErr()
		if errors.Is(err, j1939.ErrClosed) {
			return
		} else if err != nil {
			level.Warn(c.log).Log("msg", "failed to read error queue", "err", err)
			continue
		}
		c.stats.Record(ev)
		if ev.Kind == j1939.ErrQueueAbort {
			level.Warn(c.log).Log("msg", "maintenance transfer aborted", "key", ev.Key, "err", ev.Err)
		}
	}
}

// nextDeadline returns when the loop has to run again without input.
func (c *Client) nextDeadline() time.Time {
	next := c.nextMaintenance
	if t, ok := c.events.next(); ok && t.Before(next) {
		next = t
	}
	if c.active.Load() {
		if t := c.lastStatus.Add(isobusfs.ServerTimeout); t.Before(next) {
			next = t
		}
	}
	if c.selftest != nil {
		if t := c.selftest.deadline; t.Before(next) {
			next = t
		}
	}
	return next
}

func (c *Client) handleFrame(f frame, now time.Time) {
	if f.sock == sockAck {
		c.handleAck(f)
		return
	}

	resp, err := decodeResponse(f.data)
	if errors.Is(err, isobusfs.ErrShortFrame) || errors.Is(err, isobusfs.ErrUnknownGroup) {
		level.Warn(c.log).Log("msg", "rejecting frame", "src", f.src, "len", len(f.data), "err", err)
		c.sendNack(f)
		return
	} else if err != nil {
		level.Warn(c.log).Log("msg", "malformed response", "src", f.src, "err", err)
		return
	}

	if ev, ok := c.events.match(f.sock, resp.Command()); ok {
		ev.fn(resp, nil)
		return
	}

	switch resp.Command().Group() {
	case isobusfs.GroupConnectionManagement:
		c.handleConnectionManagement(resp, now)
	default:
		level.Warn(c.log).Log("msg", "unexpected response", "src", f.src, "cmd", resp.Command())
	}
}

// decodeResponse decodes a response. Bare error replies to commands whose
// response has a longer layout are returned as *isobusfs.ErrorResponse.
func decodeResponse(b []byte) (isobusfs.Response, error) {
	resp, err := isobusfs.DecodeResponse(b)
	if errors.Is(err, isobusfs.ErrIncomplete) && len(b) >= 3 {
		return &isobusfs.ErrorResponse{
			Cmd:   isobusfs.Command(b[0]),
			Reply: isobusfs.Reply{TAN: b[1], Error: isobusfs.Error(b[2])},
		}, nil
	}
	return resp, err
}

func (c *Client) handleConnectionManagement(resp isobusfs.Response, now time.Time) {
	switch m := resp.(type) {
	case *isobusfs.StatusMessage:
		c.serverStatus = *m
		c.lastStatus = now
		if !c.active.Load() {
			level.Info(c.log).Log("msg", "file server is active")
			c.active.Store(true)
			c.metrics.serverActive.Set(1)
		}
		level.Debug(c.log).Log("msg", "received file server status", "status", m.Status, "open_files", m.NumOpenFiles)
	default:
		level.Debug(c.log).Log("msg", "ignoring unsolicited response", "cmd", resp.Command())
	}
}

// checkServer marks the file server inactive when its status messages
// stopped.
func (c *Client) checkServer(now time.Time) {
	if !c.active.Load() || now.Sub(c.lastStatus) <= isobusfs.ServerTimeout {
		return
	}
	level.Warn(c.log).Log("msg", "file server is inactive", "last_status", c.lastStatus)
	c.active.Store(false)
	c.metrics.serverActive.Set(0)
}

func (c *Client) expireEvents(now time.Time) {
	for _, ev := range c.events.expire(now) {
		c.metrics.timeouts.WithLabelValues(ev.cmd.String()).Inc()
		level.Warn(c.log).Log("msg", "response timed out", "cmd", ev.cmd, "socket", ev.sock)
		ev.fn(nil, ErrTimeout)
	}
}

// sendMaintenance sends the connection maintenance message when it is due.
func (c *Client) sendMaintenance(now time.Time) {
	if c.nextMaintenance.Sub(now) > isobusfs.Jitter {
		return
	}
	if late := now.Sub(c.nextMaintenance); late > isobusfs.Jitter {
		c.metrics.maintLate.Inc()
		level.Warn(c.log).Log("msg", "too late to send next maintenance message", "late", late)
	}
	if c.stats.Pending() {
		c.metrics.maintUnacked.Inc()
		level.Warn(c.log).Log("msg", "previous maintenance message was not acknowledged")
	}

	data, err := isobusfs.Encode(&isobusfs.MaintenanceRequest{Version: c.o.Version})
	if err == nil {
		err = c.maint.Send(data)
	}
	if err != nil {
		level.Warn(c.log).Log("msg", "failed to send maintenance message", "err", err)
	} else {
		c.metrics.maintenance.Inc()
		level.Debug(c.log).Log("msg", "sent maintenance message", "version", c.o.Version)
	}
	c.nextMaintenance = now.Add(isobusfs.MaintenanceRate)
}

// sendNack rejects the frame f with a negative acknowledgement.
func (c *Client) sendNack(f frame) {
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
	if err := c.ack.SendTo(nack.Encode(), to); err != nil {
		level.Warn(c.log).Log("msg", "failed to send NACK", "dst", to, "err", err)
	}
}

// handleAck logs acknowledgements. A NACK aborts every pending request and
// the command waiting for them.
func (c *Client) handleAck(f frame) {
	ack, err := isobusfs.DecodeAck(f.data)
	if err != nil {
		level.Warn(c.log).Log("msg", "malformed acknowledgement", "src", f.src, "err", err)
		return
	}
	switch ack.Control {
	case isobusfs.AckPositive:
		level.Debug(c.log).Log("msg", "received ACK", "src", f.src, "cmd", ack.Command)
	case isobusfs.AckNegative:
		c.metrics.nacks.Inc()
		level.Warn(c.log).Log("msg", "received NACK", "src", f.src, "cmd", ack.Command)
		for _, e := range c.txlog.Entries() {
			level.Warn(c.log).Log("msg", "transmit log", "entry", e)
		}
		for _, ev := range c.events.drain() {
			ev.fn(nil, ErrNacked)
		}
		if c.op == "" {
			c.setState(StateNacked)
		}
	default:
		level.Warn(c.log).Log("msg", "unsupported acknowledgement control", "src", f.src, "control", ack.Control)
	}
}

// prompt asks for the next command when nothing is running.
func (c *Client) prompt() {
	if c.interactive && c.op == "" {
		fmt.Fprint(c.out, Prompt)
	}
}
