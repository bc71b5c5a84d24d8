//go:build linux

package j1939

import (
	"encoding/binary"
	"fmt"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// nlaHdrLen is the size of a netlink attribute header.
const nlaHdrLen = 4

// parseErrQueue decodes the control messages of one error queue
// notification.
func parseErrQueue(msgs []unix.SocketControlMessage) (ErrQueueEvent, error) {
	var (
		ev      ErrQueueEvent
		serr    []byte
		haveTSS bool
	)

	for _, m := range msgs {
		switch {
		case m.Header.Level == unix.SOL_SOCKET && m.Header.Type == unix.SCM_TIMESTAMPING:
			// struct scm_timestamping: ts[3] of struct timespec. Only the
			// software timestamp in ts[0] is filled.
			if len(m.Data) >= 16 {
				sec := int64(binary.NativeEndian.Uint64(m.Data[0:]))
				nsec := int64(binary.NativeEndian.Uint64(m.Data[8:]))
				ev.Timestamp = time.Unix(sec, nsec)
			}
			haveTSS = true

		case m.Header.Level == unix.SOL_SOCKET && m.Header.Type == unix.SCM_TIMESTAMPING_OPT_STATS:
			parseOptStats(&ev, m.Data)

		case m.Header.Level == solCANJ1939 && m.Header.Type == scmJ1939ErrQueue:
			serr = m.Data

		default:
			return ev, fmt.Errorf("unsupported control message %d.%d", m.Header.Level, m.Header.Type)
		}
	}

	if serr == nil || !haveTSS {
		return ev, nil
	}
	return ev, extractSockErr(&ev, serr)
}

// extractSockErr fills ev from a struct sock_extended_err.
func extractSockErr(ev *ErrQueueEvent, b []byte) error {
	if len(b) < 16 {
		return fmt.Errorf("short sock_extended_err: %d bytes", len(b))
	}
	var (
		errno  = syscall.Errno(binary.NativeEndian.Uint32(b[0:]))
		origin = b[4]
		info   = binary.NativeEndian.Uint32(b[8:])
		data   = binary.NativeEndian.Uint32(b[12:])
	)

	switch origin {
	case unix.SO_EE_ORIGIN_TIMESTAMPING:
		if errno != unix.ENOMSG {
			return fmt.Errorf("timestamping notification: expected ENOMSG, got %w", errno)
		}
		ev.Key = data
		if info == unix.SCM_TSTAMP_SCHED {
			ev.Kind = ErrQueueSched
		} else {
			ev.Kind = ErrQueueAck
		}
	case unix.SO_EE_ORIGIN_LOCAL:
		ev.Kind = ErrQueueAbort
		ev.Key = data
		ev.Err = errno
		if info != j1939EEInfoTxAbort {
			return fmt.Errorf("unknown local notification %d: %w", info, errno)
		}
	default:
		return fmt.Errorf("wrong notification origin %d", origin)
	}
	return nil
}

// parseOptStats reads the netlink attributes of SCM_TIMESTAMPING_OPT_STATS.
func parseOptStats(ev *ErrQueueEvent, b []byte) {
	for off := 0; off+nlaHdrLen <= len(b); {
		nlaLen := int(binary.NativeEndian.Uint16(b[off:]))
		nlaType := binary.NativeEndian.Uint16(b[off+2:])
		if nlaLen < nlaHdrLen || off+nlaLen > len(b) {
			return
		}
		if nlaType == j1939NLABytesAcked && nlaLen >= nlaHdrLen+4 {
			ev.BytesAcked = binary.NativeEndian.Uint32(b[off+nlaHdrLen:])
			ev.HasStats = true
		}
		off += (nlaLen + 3) &^ 3
	}
}
