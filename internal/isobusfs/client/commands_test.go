package client

import (
	"bytes"
	"math"
	"testing"

	"github.com/linux-can/can-utils-sub000/internal/isobusfs"
	"github.com/stretchr/testify/require"
)

type staticHistory []string

func (h staticHistory) Lines() []string { return h }

func newIdleClient(t *testing.T, o Options) (*Client, *bytes.Buffer) {
	t.Helper()

	var out bytes.Buffer
	o.Network = clientNetwork{}
	o.Out = &out
	c, err := New(nil, o)
	require.NoError(t, err)
	return c, &out
}

func TestExec(t *testing.T) {
	tt := []struct {
		name   string
		line   string
		expect string
	}{
		{"empty", "   ", ""},
		{"unknown", "rm -rf x", "unknown command: rm\n"},
		{"get usage", "get", "usage: get <remote> [local]\n"},
		{"get too many", "get a b c", "usage: get <remote> [local]\n"},
		{"cd help", "cd --help", "usage: cd [path]\n"},
		{"pwd help", "pwd -h", "usage: pwd\n"},
		{"ls option", "ls -x", "ls: unknown option -x\n"},
		{"dmesg without history", "dmesg", "dmesg: no log history available\n"},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			c, out := newIdleClient(t, Options{})
			require.False(t, c.exec(tc.line))
			require.Equal(t, tc.expect, out.String())
			require.Empty(t, c.op)
		})
	}
}

func TestExec_Exit(t *testing.T) {
	c, _ := newIdleClient(t, Options{})
	require.True(t, c.exec("exit"))
	require.True(t, c.exec("quit"))

	c.op = "get"
	require.True(t, c.exec("exit"), "exit works while a command runs")
}

func TestExec_Busy(t *testing.T) {
	c, out := newIdleClient(t, Options{})
	c.op = "get"
	require.False(t, c.exec("pwd"))
	require.Equal(t, "pwd: get is still running\n", out.String())
}

func TestExec_Help(t *testing.T) {
	c, out := newIdleClient(t, Options{})
	require.False(t, c.exec("help"))
	for _, cmd := range commandTable {
		require.Contains(t, out.String(), cmd.help)
	}
}

func TestExec_Dmesg(t *testing.T) {
	c, out := newIdleClient(t, Options{History: staticHistory{"first", "second"}})
	require.False(t, c.exec("dmesg"))
	require.Equal(t, "first\nsecond\nclient state: idle\n", out.String())
}

func TestExec_Prompt(t *testing.T) {
	c, out := newIdleClient(t, Options{})
	c.interactive = true
	require.False(t, c.exec(""))
	require.False(t, c.exec("nope"))
	require.Equal(t, Prompt+"unknown command: nope\n"+Prompt, out.String())
}

func TestBaseName(t *testing.T) {
	tt := map[string]string{
		`\\vol1\dir1\file0`: "file0",
		`dir/file`:          "file",
		`file`:              "file",
		`\\vol1\dir1\`:      "",
	}
	for in, expect := range tt {
		require.Equal(t, expect, baseName(in), in)
	}
}

func TestDownload_OffsetLimit(t *testing.T) {
	c, out := newIdleClient(t, Options{})
	require.NoError(t, c.start("get", nil))

	// No request is sent: the client has no open sockets.
	d := &download{c: c, remote: "big", handle: isobusfs.InvalidHandle, offset: math.MaxInt32 + 1}
	d.next()

	require.Equal(t, "File transfer failed.\nfailed with error: offset 2147483648 exceeds the largest seek offset 2147483647\n", out.String())
	require.Empty(t, c.op)
	require.Equal(t, StateIdle, c.State())
}
