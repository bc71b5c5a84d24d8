package server

import (
	"time"

	"github.com/linux-can/can-utils-sub000/internal/isobusfs"
)

// fssState selects the File Server Status broadcast rate.
type fssState int

const (
	fssIdle fssState = iota // 2000 ms
	fssChange1
	fssChange2
	fssChange3
	fssChange4
	fssChange5
	fssBusy // 200 ms while status bits stay set
)

// statusScheduler decides when the File Server Status message is due. It
// is driven entirely by the times passed to it.
type statusScheduler struct {
	state    fssState
	next     time.Time
	lastSent time.Time
	last     uint8
	started  bool
}

// start schedules the first message at now.
func (f *statusScheduler) start(now time.Time) {
	f.state = fssIdle
	f.next = now
	f.started = true
}

// Next returns the time the next message is due.
func (f *statusScheduler) Next() time.Time { return f.next }

// due reports whether a message should be sent at now. late is how far past
// the jitter window the send is.
func (f *statusScheduler) due(now time.Time) (due bool, late time.Duration) {
	if !f.started {
		return false, 0
	}
	diff := f.next.Sub(now)
	if diff > isobusfs.Jitter {
		return false, 0
	}
	if diff < -isobusfs.Jitter {
		return true, -diff
	}
	return true, 0
}

// poke is called when the pending status byte changes between messages.
// A change pulls the next message forward to the busy rate.
func (f *statusScheduler) poke(status uint8) {
	if status == f.last || f.lastSent.IsZero() {
		return
	}
	if soon := f.lastSent.Add(isobusfs.StatusBusyRate); soon.Before(f.next) {
		f.next = soon
	}
}

// sent records a message carrying status sent at now and schedules the
// next one.
func (f *statusScheduler) sent(now time.Time, status uint8) {
	switch {
	case status != f.last:
		f.state = fssChange5
	case status != 0:
		f.state = fssBusy
	}
	f.last = status
	f.lastSent = now
	f.next = now.Add(f.rate())
}

// rate returns the interval to the next message. Each message sent in one
// of the change states moves one step closer to idle.
func (f *statusScheduler) rate() time.Duration {
	switch f.state {
	case fssIdle:
		return isobusfs.StatusIdleRate
	case fssChange1, fssChange2, fssChange3, fssChange4, fssChange5:
		f.state--
		return isobusfs.StatusBusyRate
	case fssBusy:
		return isobusfs.StatusBusyRate
	}
	return isobusfs.StatusIdleRate
}
