package server

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/linux-can/can-utils-sub000/internal/isobusfs"
	"github.com/stretchr/testify/require"
)

func TestVolume_Validate(t *testing.T) {
	tt := []struct {
		name string
		vol  Volume
		ok   bool
	}{
		{"valid", Volume{Name: "vol1", Path: "/tmp"}, true},
		{"empty name", Volume{Path: "/tmp"}, false},
		{"empty path", Volume{Name: "vol1"}, false},
		{"long name", Volume{Name: strings.Repeat("v", isobusfs.MaxVolumeNameLength+1), Path: "/tmp"}, false},
		{"separator in name", Volume{Name: `a\b`, Path: "/tmp"}, false},
		{"forbidden character", Volume{Name: "a*b", Path: "/tmp"}, false},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.vol.Validate()
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestNewVolumeSet(t *testing.T) {
	_, err := newVolumeSet(nil)
	require.Error(t, err)

	_, err = newVolumeSet([]Volume{{Name: "a", Path: "/a"}, {Name: "a", Path: "/b"}})
	require.Error(t, err, "duplicate names are rejected")

	var many []Volume
	for i := 0; i <= isobusfs.MaxVolumes; i++ {
		many = append(many, Volume{Name: string(rune('a' + i)), Path: "/tmp"})
	}
	_, err = newVolumeSet(many)
	require.Error(t, err)

	vs, err := newVolumeSet([]Volume{{Name: "b", Path: "/b/./x/"}, {Name: "a", Path: "/a"}})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, vs.names())
	v, ok := vs.lookup("b")
	require.True(t, ok)
	require.Equal(t, filepath.Clean("/b/x"), v.Path)
}

func TestVolumeSet_Release(t *testing.T) {
	vs, err := newVolumeSet([]Volume{{Name: "a", Path: "/a"}, {Name: "b", Path: "/b"}})
	require.NoError(t, err)

	for _, name := range vs.names() {
		v, _ := vs.lookup(name)
		v.users[0x80] = struct{}{}
		v.users[0x81] = struct{}{}
	}
	vs.release(0x80)
	for _, name := range vs.names() {
		v, _ := vs.lookup(name)
		require.Equal(t, map[uint8]struct{}{0x81: {}}, v.users)
	}
}

func TestCheckDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, checkDir(dir, true))

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	require.Equal(t, isobusfs.ErrorInvalidAccess, isobusfs.ErrorFor(checkDir(file, false)))

	require.Equal(t, isobusfs.ErrorNotFound, isobusfs.ErrorFor(checkDir(filepath.Join(dir, "missing"), false)))
}
