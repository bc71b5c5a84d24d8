package j1939

import (
	"go.uber.org/atomic"
)

// Stats tracks transmit progress reported through the error queue. It is
// written by the goroutine draining the error queue and read by the
// protocol loop.
type Stats struct {
	tskeySched atomic.Uint32
	tskeyAck   atomic.Uint32
	bytesAcked atomic.Uint32
	aborts     atomic.Uint32
}

// Record applies ev to the statistics.
func (s *Stats) Record(ev ErrQueueEvent) {
	switch ev.Kind {
	case ErrQueueSched:
		s.tskeySched.Store(ev.Key)
	case ErrQueueAck:
		s.tskeyAck.Store(ev.Key)
	case ErrQueueAbort:
		s.aborts.Inc()
	}
	if ev.HasStats {
		s.bytesAcked.Store(ev.BytesAcked)
	}
}

// Pending reports whether the last scheduled message has not been
// acknowledged yet.
func (s *Stats) Pending() bool {
	return s.tskeySched.Load() != s.tskeyAck.Load()
}

// Keys returns the last scheduled and acknowledged message keys.
func (s *Stats) Keys() (sched, ack uint32) {
	return s.tskeySched.Load(), s.tskeyAck.Load()
}

// BytesAcked returns the byte count of the last acknowledged transfer.
func (s *Stats) BytesAcked() uint32 { return s.bytesAcked.Load() }

// Aborts returns the number of aborted transmissions.
func (s *Stats) Aborts() uint32 { return s.aborts.Load() }
