package client

import (
	"testing"
	"time"

	"github.com/linux-can/can-utils-sub000/internal/isobusfs"
	"github.com/linux-can/can-utils-sub000/internal/j1939"
	"github.com/stretchr/testify/require"
)

func TestState_String(t *testing.T) {
	require.Equal(t, "idle", StateIdle.String())
	require.Equal(t, "waiting", StateWaiting.String())
	require.Equal(t, "selftest", StateSelfTest.String())
	require.Equal(t, "nacked", StateNacked.String())
	require.Equal(t, "state(9)", State(9).String())
}

func TestState_Transitions(t *testing.T) {
	c, _ := newIdleClient(t, Options{})
	require.Equal(t, StateIdle, c.State())

	require.Error(t, c.start("pwd", ErrTimeout))
	require.Equal(t, StateIdle, c.State(), "a command that failed to start leaves the client idle")

	require.NoError(t, c.start("pwd", nil))
	require.Equal(t, StateWaiting, c.State())

	var aborted error
	require.NoError(t, c.events.add(sockMain, isobusfs.CmdGetCurrentDir, time.Now(), func(_ isobusfs.Response, err error) {
		aborted = err
		c.finish(err)
	}))
	nack := isobusfs.Ack{Control: isobusfs.AckNegative, Command: isobusfs.CmdGetCurrentDir, Address: clientAddr, PGN: isobusfs.PGNClientToServer}
	c.handleAck(frame{sock: sockAck, src: j1939.Addr{Addr: serverAddr, PGN: isobusfs.PGNAck}, data: nack.Encode()})
	require.ErrorIs(t, aborted, ErrNacked)
	require.Equal(t, StateNacked, c.State())
	require.Empty(t, c.op)

	require.NoError(t, c.start("cd", nil))
	require.Equal(t, StateWaiting, c.State())
	c.finish(nil)
	require.Equal(t, StateIdle, c.State())
}

func TestState_NackDuringSelftest(t *testing.T) {
	c, _ := newIdleClient(t, Options{})
	c.op = "selftest"
	c.setState(StateSelfTest)

	nack := isobusfs.Ack{Control: isobusfs.AckNegative, Command: isobusfs.CmdOpenFile, Address: clientAddr, PGN: isobusfs.PGNClientToServer}
	c.handleAck(frame{sock: sockAck, src: j1939.Addr{Addr: serverAddr, PGN: isobusfs.PGNAck}, data: nack.Encode()})
	require.Equal(t, StateSelfTest, c.State(), "the self-test keeps running")
}
