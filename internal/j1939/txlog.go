package j1939

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// TxLogSize is the number of frames remembered by a TxLog.
const TxLogSize = 10

// TxLogEntry is the head of one transmitted message.
type TxLogEntry struct {
	Data [8]byte
	Time time.Time
}

func (e TxLogEntry) String() string {
	var sb strings.Builder
	for _, b := range e.Data {
		fmt.Fprintf(&sb, "%02X ", b)
	}
	return fmt.Sprintf("%sTimestamp: %d.%09d", sb.String(), e.Time.Unix(), e.Time.Nanosecond())
}

// TxLog is a ring of the first eight bytes of the last TxLogSize messages
// sent. It is dumped when a peer rejects a message so the offending frame
// can be identified.
type TxLog struct {
	mut     sync.Mutex
	entries [TxLogSize]TxLogEntry
	index   int
	now     func() time.Time
}

// Store remembers the head of data.
func (l *TxLog) Store(data []byte) {
	l.mut.Lock()
	defer l.mut.Unlock()

	e := &l.entries[l.index]
	for i := range e.Data {
		e.Data[i] = 0xFF
	}
	copy(e.Data[:], data)
	if l.now != nil {
		e.Time = l.now()
	} else {
		e.Time = time.Now()
	}
	l.index = (l.index + 1) % TxLogSize
}

// Entries returns the stored entries, oldest first. Unused slots are
// omitted.
func (l *TxLog) Entries() []TxLogEntry {
	l.mut.Lock()
	defer l.mut.Unlock()

	out := make([]TxLogEntry, 0, TxLogSize)
	for i := 0; i < TxLogSize; i++ {
		e := l.entries[(l.index+i)%TxLogSize]
		if e.Time.IsZero() {
			continue
		}
		out = append(out, e)
	}
	return out
}

// LoggedConn wraps a PacketConn and records every sent message in a TxLog.
type LoggedConn struct {
	PacketConn
	Log *TxLog
}

// Send implements PacketConn.
func (c LoggedConn) Send(b []byte) error {
	c.Log.Store(b)
	return c.PacketConn.Send(b)
}

// SendTo implements PacketConn.
func (c LoggedConn) SendTo(b []byte, to Addr) error {
	c.Log.Store(b)
	return c.PacketConn.SendTo(b, to)
}
