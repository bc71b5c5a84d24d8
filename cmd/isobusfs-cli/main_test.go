package main

import (
	"strings"
	"testing"

	"github.com/linux-can/can-utils-sub000/internal/j1939"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	s, _, err := parseFlags("isobusfs-cli", []string{"-i", "vcan0", "-a", "80", "-r", "0x90", "-l", "debug"})
	require.NoError(t, err)
	require.Equal(t, "vcan0", s.iface)
	require.Equal(t, j1939.Addr{Addr: 0x80}, s.local)
	require.Equal(t, j1939.Addr{Addr: 0x90}, s.server)
	require.True(t, s.interactive)
	require.Equal(t, "debug", s.ll.String())

	s, _, err = parseFlags("isobusfs-cli", []string{"-i", "vcan0", "-n", "a00c81045a20021b", "--interactive=false"})
	require.NoError(t, err)
	require.Equal(t, j1939.Addr{Name: 0xa00c81045a20021b, Addr: j1939.NoAddr}, s.local)
	require.Equal(t, j1939.Addr{Addr: j1939.NoAddr}, s.server)
	require.False(t, s.interactive)
}

func TestParseFlags_Invalid(t *testing.T) {
	tt := [][]string{
		{"-a", "80"},
		{"-i", "vcan0", "-a", "80", "-n", "1"},
		{"-i", "vcan0", "-r", "80", "-m", "1"},
		{"-i", "vcan0", "-l", "9"},
	}
	for _, args := range tt {
		_, _, err := parseFlags("isobusfs-cli", args)
		require.Error(t, err, args)
	}
}

func TestReadLines(t *testing.T) {
	var lines []string
	for line := range readLines(strings.NewReader("ls\ncd dir1\n\npwd")) {
		lines = append(lines, line)
	}
	require.Equal(t, []string{"ls", "cd dir1", "", "pwd"}, lines)
}
