package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/linux-can/can-utils-sub000/internal/isobusfs/server"
	"github.com/stretchr/testify/require"
)

func loadConfig(t *testing.T, args ...string) (*settings, error) {
	t.Helper()
	cfg, err := newFlags("isobusfs-srv").load(args)
	require.NoError(t, err)
	return cfg.validate()
}

func TestConfig_Flags(t *testing.T) {
	s, err := loadConfig(t,
		"-i", "vcan0", "-a", "90",
		"-v", "vol1:/srv/vol1", "-v", "usb:/media/usb",
		"-d", "vol1", "-r", "usb", "-w", "vol1,usb",
		"-s", "3", "-l", "4",
	)
	require.NoError(t, err)

	require.Equal(t, "vcan0", s.iface)
	require.Equal(t, uint8(0x90), s.addr)
	require.Equal(t, "debug", s.ll.String())
	require.Equal(t, uint8(3), s.server.Version)
	require.Equal(t, "vol1", s.server.DefaultVolume)
	require.Equal(t, []server.Volume{
		{Name: "vol1", Path: "/srv/vol1", Writable: true},
		{Name: "usb", Path: "/media/usb", Removable: true, Writable: true},
	}, s.server.Volumes)
}

func TestConfig_File(t *testing.T) {
	file := filepath.Join(t.TempDir(), "isobusfs.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
interface: can0
name: "a00c81045a20021b"
log_level: warn
volumes:
  - name: vol1
    path: /srv/vol1
    writable: true
`), 0644))

	s, err := loadConfig(t, "-c", file)
	require.NoError(t, err)
	require.Equal(t, "can0", s.iface)
	require.Equal(t, uint64(0xa00c81045a20021b), s.name)
	require.Equal(t, uint64(0xa00c81045a20021b), s.server.Name)
	require.Equal(t, "warn", s.ll.String())
	require.Equal(t, uint8(4), s.server.Version)
	require.True(t, s.server.Volumes[0].Writable)

	// Flags win over the file.
	s, err = loadConfig(t, "-c", file, "-i", "vcan1", "-a", "0x80", "-v", "other:/tmp")
	require.NoError(t, err)
	require.Equal(t, "vcan1", s.iface)
	require.Equal(t, uint8(0x80), s.addr)
	require.Equal(t, []server.Volume{{Name: "other", Path: "/tmp"}}, s.server.Volumes)
}

func TestConfig_Invalid(t *testing.T) {
	tt := []struct {
		name string
		args []string
	}{
		{"no interface", []string{"-a", "90", "-v", "vol1:/tmp"}},
		{"no address", []string{"-i", "can0", "-v", "vol1:/tmp"}},
		{"address and name", []string{"-i", "can0", "-a", "90", "-n", "1", "-v", "vol1:/tmp"}},
		{"no volume", []string{"-i", "can0", "-a", "90"}},
		{"default with one volume", []string{"-i", "can0", "-a", "90", "-v", "vol1:/tmp", "-d", "vol1"}},
		{"no default with two volumes", []string{"-i", "can0", "-a", "90", "-v", "a:/tmp", "-v", "b:/tmp"}},
		{"version out of range", []string{"-i", "can0", "-a", "90", "-v", "vol1:/tmp", "-s", "256"}},
		{"bad volume name", []string{"-i", "can0", "-a", "90", "-v", `a\b:/tmp`}},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadConfig(t, tc.args...)
			require.Error(t, err)
		})
	}
}

func TestConfig_ParseErrors(t *testing.T) {
	tt := [][]string{
		{"-v", "missing-path"},
		{"-v", "vol1:/tmp", "-w", "nope"},
		{"-v", "vol1:/tmp", "-r", "nope"},
		{"-a", "1ff"},
	}
	for _, args := range tt {
		_, err := newFlags("isobusfs-srv").load(args)
		require.Error(t, err, args)
	}
}
