package client

import (
	"fmt"

	"github.com/go-kit/log/level"
)

// State is the coarse state of a Client.
type State uint32

const (
	// StateIdle waits for the next command.
	StateIdle State = iota
	// StateWaiting waits for responses to a running command.
	StateWaiting
	// StateSelfTest runs the self-test.
	StateSelfTest
	// StateNacked is entered when the file server rejected a request. The
	// client accepts commands again in this state.
	StateNacked
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateSelfTest:
		return "selftest"
	case StateNacked:
		return "nacked"
	}
	return fmt.Sprintf("state(%d)", uint32(s))
}

// State returns the current state of c. It is safe to call from any
// goroutine.
func (c *Client) State() State { return State(c.state.Load()) }

func (c *Client) setState(s State) {
	prev := State(c.state.Swap(uint32(s)))
	if prev != s {
		level.Debug(c.log).Log("msg", "client state changed", "from", prev, "to", s)
	}
}
