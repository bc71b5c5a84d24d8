package client

import (
	"testing"
	"time"

	"github.com/linux-can/can-utils-sub000/internal/isobusfs"
	"github.com/stretchr/testify/require"
)

func TestEventTable_Match(t *testing.T) {
	var (
		now   = time.Unix(1000, 0)
		table = newEventTable(isobusfs.EventTimeout)
		calls []string
	)
	record := func(name string) callback {
		return func(isobusfs.Response, error) { calls = append(calls, name) }
	}

	require.NoError(t, table.add(sockMain, isobusfs.CmdOpenFile, now, record("open")))
	require.NoError(t, table.add(sockMain, isobusfs.CmdReadFile, now, record("read")))
	require.NoError(t, table.add(sockBroadcast, isobusfs.CmdOpenFile, now, record("open-broadcast")))

	ev, ok := table.match(sockMain, isobusfs.CmdOpenFile)
	require.True(t, ok)
	ev.fn(nil, nil)
	_, ok = table.match(sockMain, isobusfs.CmdOpenFile)
	require.False(t, ok, "events fire once")

	ev, ok = table.match(sockBroadcast, isobusfs.CmdOpenFile)
	require.True(t, ok, "events are bound to a socket")
	ev.fn(nil, nil)

	require.Equal(t, []string{"open", "open-broadcast"}, calls)
	require.Equal(t, 1, table.Len())
}

func TestEventTable_RejectsDuplicate(t *testing.T) {
	now := time.Unix(1000, 0)
	table := newEventTable(isobusfs.EventTimeout)

	require.NoError(t, table.add(sockMain, isobusfs.CmdOpenFile, now, nil))
	err := table.add(sockMain, isobusfs.CmdOpenFile, now, nil)
	require.ErrorIs(t, err, ErrDuplicateEvent)
	require.Equal(t, 1, table.Len())

	require.NoError(t, table.add(sockAck, isobusfs.CmdOpenFile, now, nil), "other sockets are independent")

	table.match(sockMain, isobusfs.CmdOpenFile)
	require.NoError(t, table.add(sockMain, isobusfs.CmdOpenFile, now, nil), "matched events free their slot")
}

func TestEventTable_Full(t *testing.T) {
	now := time.Unix(1000, 0)
	table := newEventTable(isobusfs.EventTimeout)
	cmds := []isobusfs.Command{
		isobusfs.CmdProperties, isobusfs.CmdVolumeStatus, isobusfs.CmdGetCurrentDir,
		isobusfs.CmdChangeCurrentDir, isobusfs.CmdOpenFile, isobusfs.CmdSeekFile,
		isobusfs.CmdReadFile, isobusfs.CmdWriteFile, isobusfs.CmdCloseFile,
		isobusfs.CmdMoveFile, isobusfs.CmdDeleteFile,
	}
	for _, cmd := range cmds[:isobusfs.MaxEvents] {
		require.NoError(t, table.add(sockMain, cmd, now, func(isobusfs.Response, error) {}))
	}
	require.True(t, table.full())
	require.ErrorIs(t, table.add(sockAck, isobusfs.CmdSeekFile, now, nil), ErrTooManyEvents)

	table.match(sockMain, isobusfs.CmdSeekFile)
	require.False(t, table.full())
}

func TestEventTable_Expire(t *testing.T) {
	start := time.Unix(1000, 0)
	table := newEventTable(isobusfs.EventTimeout)

	_, ok := table.next()
	require.False(t, ok)

	require.NoError(t, table.add(sockMain, isobusfs.CmdOpenFile, start, nil))
	require.NoError(t, table.add(sockMain, isobusfs.CmdReadFile, start.Add(500*time.Millisecond), nil))

	next, ok := table.next()
	require.True(t, ok)
	require.Equal(t, start.Add(isobusfs.EventTimeout), next)

	require.Empty(t, table.expire(start.Add(isobusfs.EventTimeout)), "deadline itself is not expired")

	expired := table.expire(start.Add(isobusfs.EventTimeout + time.Millisecond))
	require.Len(t, expired, 1)
	require.Equal(t, isobusfs.CmdOpenFile, expired[0].cmd)
	require.Equal(t, 1, table.Len())

	next, ok = table.next()
	require.True(t, ok)
	require.Equal(t, start.Add(1500*time.Millisecond), next)

	require.Len(t, table.drain(), 1)
	require.Equal(t, 0, table.Len())
}
