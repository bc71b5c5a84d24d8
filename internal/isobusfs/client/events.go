package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/linux-can/can-utils-sub000/internal/isobusfs"
)

var (
	// ErrTimeout is passed to a callback whose response did not arrive in
	// time.
	ErrTimeout = errors.New("timeout")
	// ErrTooManyEvents is returned when isobusfs.MaxEvents responses are
	// already awaited.
	ErrTooManyEvents = errors.New("too many pending events")
	// ErrDuplicateEvent is returned when a response to the same command is
	// already awaited on the same socket.
	ErrDuplicateEvent = errors.New("event already pending")
)

// socket identifies which of the client's sockets a datagram arrived on.
type socket int

const (
	sockMain socket = iota
	sockBroadcast
	sockAck
)

func (s socket) String() string {
	switch s {
	case sockMain:
		return "main"
	case sockBroadcast:
		return "broadcast"
	case sockAck:
		return "ack"
	}
	return fmt.Sprintf("socket(%d)", int(s))
}

// callback receives the response an event waited for, or an error.
type callback func(resp isobusfs.Response, err error)

type event struct {
	sock     socket
	cmd      isobusfs.Command
	deadline time.Time
	fn       callback
}

// eventTable holds the responses the client is waiting for. Events are
// one-shot: they are removed when matched or expired.
type eventTable struct {
	events  []*event
	timeout time.Duration
}

func newEventTable(timeout time.Duration) *eventTable {
	return &eventTable{timeout: timeout}
}

func (t *eventTable) Len() int { return len(t.events) }

// full reports whether no more events can be registered.
func (t *eventTable) full() bool { return len(t.events) >= isobusfs.MaxEvents }

// check reports whether an event for cmd on sock could be added.
func (t *eventTable) check(sock socket, cmd isobusfs.Command) error {
	if t.full() {
		return ErrTooManyEvents
	}
	for _, ev := range t.events {
		if ev.sock == sock && ev.cmd == cmd {
			return fmt.Errorf("%w: %s on %s", ErrDuplicateEvent, cmd, sock)
		}
	}
	return nil
}

// add waits for a message with command cmd on sock. fn is called once,
// with the message or with ErrTimeout after the table's timeout. Only one
// event may wait for a command on a socket.
func (t *eventTable) add(sock socket, cmd isobusfs.Command, now time.Time, fn callback) error {
	if err := t.check(sock, cmd); err != nil {
		return err
	}
	t.events = append(t.events, &event{
		sock:     sock,
		cmd:      cmd,
		deadline: now.Add(t.timeout),
		fn:       fn,
	})
	return nil
}

// match removes and returns the event waiting for cmd on sock.
func (t *eventTable) match(sock socket, cmd isobusfs.Command) (*event, bool) {
	for i, ev := range t.events {
		if ev.sock == sock && ev.cmd == cmd {
			t.events = append(t.events[:i], t.events[i+1:]...)
			return ev, true
		}
	}
	return nil, false
}

// expire removes and returns every event whose deadline is before now.
func (t *eventTable) expire(now time.Time) []*event {
	var expired []*event
	kept := t.events[:0]
	for _, ev := range t.events {
		if now.After(ev.deadline) {
			expired = append(expired, ev)
		} else {
			kept = append(kept, ev)
		}
	}
	for i := len(kept); i < len(t.events); i++ {
		t.events[i] = nil
	}
	t.events = kept
	return expired
}

// drain removes and returns every event.
func (t *eventTable) drain() []*event {
	events := t.events
	t.events = nil
	return events
}

// next returns the earliest deadline of all events.
func (t *eventTable) next() (time.Time, bool) {
	var (
		min time.Time
		ok  bool
	)
	for _, ev := range t.events {
		if !ok || ev.deadline.Before(min) {
			min, ok = ev.deadline, true
		}
	}
	return min, ok
}
