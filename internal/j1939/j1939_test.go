package j1939

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFilter_Match(t *testing.T) {
	require.False(t, DropAll.Match(Addr{Addr: 0x80, PGN: 0xAA00}))
	require.False(t, DropAll.Match(Addr{Addr: 0x00}))

	pgnOnly := Filter{PGN: 0xAA00, PGNMask: PGNPDU1Max}
	require.True(t, pgnOnly.Match(Addr{Addr: 0x80, PGN: 0xAA00}))
	require.True(t, pgnOnly.Match(Addr{Addr: 0x80, PGN: 0xAA90}))
	require.False(t, pgnOnly.Match(Addr{Addr: 0x80, PGN: 0xAB00}))

	// The zero filter accepts everything.
	require.True(t, Filter{}.Match(Addr{Addr: 0x12, PGN: 0xE800}))
}

func TestTxLog(t *testing.T) {
	var (
		l   TxLog
		now = time.Unix(100, 0)
	)
	l.now = func() time.Time {
		now = now.Add(time.Millisecond)
		return now
	}

	require.Empty(t, l.Entries())

	l.Store([]byte{0x20, 1, 2})
	entries := l.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, [8]byte{0x20, 1, 2, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, entries[0].Data)

	for i := 0; i < TxLogSize+3; i++ {
		l.Store([]byte{byte(i), 0, 0, 0, 0, 0, 0, 0, 0xAA})
	}
	entries = l.Entries()
	require.Len(t, entries, TxLogSize)
	require.Equal(t, byte(3), entries[0].Data[0], "oldest entry first")
	require.Equal(t, byte(TxLogSize+2), entries[TxLogSize-1].Data[0])
	require.True(t, entries[0].Time.Before(entries[1].Time))
}

type recordingConn struct {
	PacketConn
	sent [][]byte
}

func (c *recordingConn) Send(b []byte) error {
	c.sent = append(c.sent, b)
	return nil
}

func (c *recordingConn) SendTo(b []byte, _ Addr) error {
	c.sent = append(c.sent, b)
	return errors.New("unreachable")
}

func TestLoggedConn(t *testing.T) {
	var (
		inner recordingConn
		l     TxLog
	)
	c := LoggedConn{PacketConn: &inner, Log: &l}

	require.NoError(t, c.Send([]byte{1, 2, 3, 4, 5, 6, 7, 8}))
	require.Error(t, c.SendTo([]byte{9, 9, 9, 9, 9, 9, 9, 9}, Addr{}))

	// Failed sends are still logged.
	require.Len(t, l.Entries(), 2)
	require.Len(t, inner.sent, 2)
}

func TestStats(t *testing.T) {
	var s Stats
	require.False(t, s.Pending())

	s.Record(ErrQueueEvent{Kind: ErrQueueSched, Key: 4})
	require.True(t, s.Pending())

	s.Record(ErrQueueEvent{Kind: ErrQueueAck, Key: 4, HasStats: true, BytesAcked: 8})
	require.False(t, s.Pending())
	require.Equal(t, uint32(8), s.BytesAcked())

	s.Record(ErrQueueEvent{Kind: ErrQueueAbort, Key: 5})
	require.Equal(t, uint32(1), s.Aborts())

	sched, ack := s.Keys()
	require.Equal(t, uint32(4), sched)
	require.Equal(t, uint32(4), ack)
}
