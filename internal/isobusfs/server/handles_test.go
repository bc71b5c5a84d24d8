package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-kit/log"
	"github.com/linux-can/can-utils-sub000/internal/isobusfs"
	"github.com/stretchr/testify/require"
)

func openTestFile(t *testing.T, name string) *openFile {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(name), 0o644))
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	return &openFile{hostPath: path, isoPath: `\\vol1\` + name, file: f}
}

func TestHandlePool_LowestFreeSlot(t *testing.T) {
	p := newHandlePool(log.NewNopLogger())

	for i, name := range []string{"a", "b", "c"} {
		h, err := p.add(openTestFile(t, name), 0x80)
		require.NoError(t, err)
		require.Equal(t, uint8(i), h)
	}
	require.Equal(t, 3, p.Len())

	require.NoError(t, p.release(1, 0x80))
	require.Equal(t, 2, p.Len())

	h, err := p.add(openTestFile(t, "d"), 0x80)
	require.NoError(t, err)
	require.Equal(t, uint8(1), h)
}

func TestHandlePool_Full(t *testing.T) {
	p := newHandlePool(log.NewNopLogger())
	for i := range p.slots {
		p.slots[i] = &openFile{}
	}
	p.used = len(p.slots)

	h, err := p.add(&openFile{}, 0x80)
	require.Equal(t, uint8(isobusfs.InvalidHandle), h)
	require.Equal(t, isobusfs.ErrorTooManyFilesOpen, isobusfs.ErrorFor(err))
}

func TestHandlePool_Ownership(t *testing.T) {
	p := newHandlePool(log.NewNopLogger())
	f := openTestFile(t, "shared")

	h, err := p.add(f, 0x80)
	require.NoError(t, err)

	_, err = p.get(h, 0x81)
	require.Equal(t, isobusfs.ErrorInvalidHandle, isobusfs.ErrorFor(err))
	require.Equal(t, isobusfs.ErrorInvalidHandle, isobusfs.ErrorFor(p.release(h, 0x81)))

	_, _, ok := p.find(f.hostPath, isobusfs.OpenFlags(isobusfs.AccessReadWrite))
	require.False(t, ok, "a handle is shared only with identical flags")
	found, same, ok := p.find(f.hostPath, f.flags)
	require.True(t, ok)
	require.Equal(t, h, found)
	same.owners[0x81] = struct{}{}

	require.NoError(t, p.release(h, 0x80))
	require.Equal(t, 1, p.Len(), "handle is still held by the second client")

	got, err := p.get(h, 0x81)
	require.NoError(t, err)
	require.Same(t, f, got)

	require.NoError(t, p.release(h, 0x81))
	require.Equal(t, 0, p.Len())

	_, err = p.get(h, 0x81)
	require.Equal(t, isobusfs.ErrorInvalidHandle, isobusfs.ErrorFor(err))
}

func TestHandlePool_ReleaseClient(t *testing.T) {
	p := newHandlePool(log.NewNopLogger())

	_, err := p.add(openTestFile(t, "a"), 0x80)
	require.NoError(t, err)
	_, err = p.add(openTestFile(t, "b"), 0x81)
	require.NoError(t, err)
	_, err = p.add(openTestFile(t, "c"), 0x80)
	require.NoError(t, err)

	require.NoError(t, p.releaseClient(0x80))
	require.Equal(t, 1, p.Len())

	st := p.state()
	require.Len(t, st, 1)
	require.Equal(t, HandleState{Handle: 1, Path: `\\vol1\b`, Access: "ro", Owners: []uint8{0x81}}, st[0])
}

func TestHandlePool_InvalidHandle(t *testing.T) {
	p := newHandlePool(log.NewNopLogger())
	_, err := p.get(isobusfs.InvalidHandle, 0x80)
	require.Equal(t, isobusfs.ErrorInvalidHandle, isobusfs.ErrorFor(err))
}
