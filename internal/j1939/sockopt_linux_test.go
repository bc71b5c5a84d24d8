//go:build linux

package j1939

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSockoptValues(t *testing.T) {
	require.Equal(t, 107, solCANJ1939)

	require.Equal(t, 1, soJ1939Filter)
	require.Equal(t, 2, soJ1939Promisc)
	require.Equal(t, 3, soJ1939SendPrio)
	require.Equal(t, 4, soJ1939ErrQueue)

	require.Equal(t, 1, scmJ1939DestAddr)
	require.Equal(t, 2, scmJ1939DestName)
	require.Equal(t, 3, scmJ1939Prio)
	require.Equal(t, 4, scmJ1939ErrQueue)

	require.Equal(t, 1, j1939NLABytesAcked)
	require.Equal(t, 2, j1939NLATotalSize)
	require.Equal(t, 7, j1939NLADestAddr)

	require.Equal(t, 0, j1939EEInfoNone)
	require.Equal(t, 1, j1939EEInfoTxAbort)
	require.Equal(t, 4, j1939EEInfoRxAbort)
}
