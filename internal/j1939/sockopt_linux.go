//go:build linux

package j1939

import "golang.org/x/sys/unix"

// Socket options and control messages of linux/can/j1939.h, which
// golang.org/x/sys/unix does not define.
const (
	solCANBase  = 100
	solCANJ1939 = solCANBase + unix.CAN_J1939

	soJ1939Filter   = 1
	soJ1939Promisc  = 2
	soJ1939SendPrio = 3
	soJ1939ErrQueue = 4

	scmJ1939DestAddr = 1
	scmJ1939DestName = 2
	scmJ1939Prio     = 3
	scmJ1939ErrQueue = 4
)

// Netlink attributes of SCM_TIMESTAMPING_OPT_STATS on J1939 sockets.
const (
	j1939NLAPad = iota
	j1939NLABytesAcked
	j1939NLATotalSize
	j1939NLAPGN
	j1939NLASrcName
	j1939NLADestName
	j1939NLASrcAddr
	j1939NLADestAddr
)

// ee_info values of J1939 error queue notifications.
const (
	j1939EEInfoNone = iota
	j1939EEInfoTxAbort
	j1939EEInfoRxRTS
	j1939EEInfoRxDPO
	j1939EEInfoRxAbort
)
