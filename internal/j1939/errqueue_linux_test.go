//go:build linux

package j1939

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func sockErr(errno unix.Errno, origin uint8, info, data uint32) []byte {
	b := make([]byte, 16)
	binary.NativeEndian.PutUint32(b[0:], uint32(errno))
	b[4] = origin
	binary.NativeEndian.PutUint32(b[8:], info)
	binary.NativeEndian.PutUint32(b[12:], data)
	return b
}

func cmsg(level, typ int32, data []byte) unix.SocketControlMessage {
	var m unix.SocketControlMessage
	m.Header.Level = level
	m.Header.Type = typ
	m.Data = data
	return m
}

func timestamping(sec, nsec uint64) []byte {
	b := make([]byte, 48)
	binary.NativeEndian.PutUint64(b[0:], sec)
	binary.NativeEndian.PutUint64(b[8:], nsec)
	return b
}

func TestParseErrQueue_Sched(t *testing.T) {
	ev, err := parseErrQueue([]unix.SocketControlMessage{
		cmsg(unix.SOL_SOCKET, unix.SCM_TIMESTAMPING, timestamping(10, 500)),
		cmsg(solCANJ1939, scmJ1939ErrQueue, sockErr(unix.ENOMSG, unix.SO_EE_ORIGIN_TIMESTAMPING, unix.SCM_TSTAMP_SCHED, 7)),
	})
	require.NoError(t, err)
	require.Equal(t, ErrQueueSched, ev.Kind)
	require.Equal(t, uint32(7), ev.Key)
	require.Equal(t, int64(10), ev.Timestamp.Unix())
}

func TestParseErrQueue_AckWithStats(t *testing.T) {
	stats := make([]byte, 8)
	binary.NativeEndian.PutUint16(stats[0:], 8)
	binary.NativeEndian.PutUint16(stats[2:], j1939NLABytesAcked)
	binary.NativeEndian.PutUint32(stats[4:], 1024)

	ev, err := parseErrQueue([]unix.SocketControlMessage{
		cmsg(unix.SOL_SOCKET, unix.SCM_TIMESTAMPING_OPT_STATS, stats),
		cmsg(unix.SOL_SOCKET, unix.SCM_TIMESTAMPING, timestamping(1, 0)),
		cmsg(solCANJ1939, scmJ1939ErrQueue, sockErr(unix.ENOMSG, unix.SO_EE_ORIGIN_TIMESTAMPING, unix.SCM_TSTAMP_ACK, 7)),
	})
	require.NoError(t, err)
	require.Equal(t, ErrQueueAck, ev.Kind)
	require.True(t, ev.HasStats)
	require.Equal(t, uint32(1024), ev.BytesAcked)
}

func TestParseErrQueue_Abort(t *testing.T) {
	ev, err := parseErrQueue([]unix.SocketControlMessage{
		cmsg(unix.SOL_SOCKET, unix.SCM_TIMESTAMPING, timestamping(1, 0)),
		cmsg(solCANJ1939, scmJ1939ErrQueue, sockErr(unix.ETIME, unix.SO_EE_ORIGIN_LOCAL, j1939EEInfoTxAbort, 3)),
	})
	require.NoError(t, err)
	require.Equal(t, ErrQueueAbort, ev.Kind)
	require.ErrorIs(t, ev.Err, unix.ETIME)
}

func TestParseErrQueue_UnexpectedErrno(t *testing.T) {
	_, err := parseErrQueue([]unix.SocketControlMessage{
		cmsg(unix.SOL_SOCKET, unix.SCM_TIMESTAMPING, timestamping(1, 0)),
		cmsg(solCANJ1939, scmJ1939ErrQueue, sockErr(unix.EIO, unix.SO_EE_ORIGIN_TIMESTAMPING, unix.SCM_TSTAMP_ACK, 1)),
	})
	require.ErrorIs(t, err, unix.EIO)
}
