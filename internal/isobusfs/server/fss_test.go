package server

import (
	"testing"
	"time"

	"github.com/linux-can/can-utils-sub000/internal/isobusfs"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestStatusScheduler_NotStarted(t *testing.T) {
	var f statusScheduler
	due, _ := f.due(epoch)
	require.False(t, due)
}

func TestStatusScheduler_Idle(t *testing.T) {
	var f statusScheduler
	f.start(epoch)

	due, late := f.due(epoch)
	require.True(t, due)
	require.Zero(t, late)

	f.sent(epoch, 0)
	require.Equal(t, epoch.Add(isobusfs.StatusIdleRate), f.Next())

	due, _ = f.due(epoch.Add(time.Second))
	require.False(t, due)

	// Within the jitter window before the deadline.
	due, late = f.due(f.Next().Add(-4 * time.Millisecond))
	require.True(t, due)
	require.Zero(t, late)
}

func TestStatusScheduler_Late(t *testing.T) {
	var f statusScheduler
	f.start(epoch)
	f.sent(epoch, 0)

	due, late := f.due(f.Next().Add(30 * time.Millisecond))
	require.True(t, due)
	require.Equal(t, 30*time.Millisecond, late)
}

func TestStatusScheduler_Change(t *testing.T) {
	var f statusScheduler
	f.start(epoch)
	f.sent(epoch, 0)

	// A read pulls the next message forward to the busy rate.
	f.poke(isobusfs.StatusBusyReading)
	require.Equal(t, epoch.Add(isobusfs.StatusBusyRate), f.Next())

	now := f.Next()
	f.sent(now, isobusfs.StatusBusyReading)
	require.Equal(t, isobusfs.StatusBusyRate, f.Next().Sub(now))

	// Going back to idle is a change as well: five more messages at the busy
	// rate before falling back to the idle rate.
	for i := 0; i < 5; i++ {
		now = f.Next()
		f.sent(now, 0)
		require.Equal(t, isobusfs.StatusBusyRate, f.Next().Sub(now), "message %d", i)
	}
	now = f.Next()
	f.sent(now, 0)
	require.Equal(t, isobusfs.StatusIdleRate, f.Next().Sub(now))
}

func TestStatusScheduler_Busy(t *testing.T) {
	var f statusScheduler
	f.start(epoch)

	now := epoch
	for i := 0; i < 20; i++ {
		f.sent(now, isobusfs.StatusBusyWriting)
		require.Equal(t, isobusfs.StatusBusyRate, f.Next().Sub(now), "message %d", i)
		now = f.Next()
	}
	require.Equal(t, fssBusy, f.state)
}

func TestStatusScheduler_PokeUnchanged(t *testing.T) {
	var f statusScheduler
	f.start(epoch)
	f.sent(epoch, 0)

	f.poke(0)
	require.Equal(t, epoch.Add(isobusfs.StatusIdleRate), f.Next())
}
