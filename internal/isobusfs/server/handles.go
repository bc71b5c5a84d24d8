package server

import (
	"fmt"
	"os"
	"sort"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-multierror"
	"github.com/linux-can/can-utils-sub000/internal/isobusfs"
)

// openFile is an entry of the handle pool. Clients opening the same host
// path share one entry.
type openFile struct {
	hostPath string
	isoPath  string
	access   isobusfs.Access
	flags    isobusfs.OpenFlags
	volume   *volume
	file     *os.File

	// dirPos is the index of the next entry returned by a directory read.
	dirPos int

	owners map[uint8]struct{}
}

func (f *openFile) isDir() bool { return f.access == isobusfs.AccessDirectory }

// ownedBy reports whether client holds a reference to f.
func (f *openFile) ownedBy(client uint8) bool {
	_, ok := f.owners[client]
	return ok
}

// handlePool maps protocol handles to open files. Handle values are slot
// indices; isobusfs.InvalidHandle is never handed out.
type handlePool struct {
	log   log.Logger
	slots [isobusfs.MaxOpenFiles]*openFile
	used  int
}

func newHandlePool(l log.Logger) *handlePool {
	return &handlePool{log: l}
}

// Len returns the number of handles in use.
func (p *handlePool) Len() int { return p.used }

// find returns the handle of a host path already opened with the same
// flags.
func (p *handlePool) find(hostPath string, flags isobusfs.OpenFlags) (uint8, *openFile, bool) {
	for i, f := range p.slots {
		if f != nil && f.hostPath == hostPath && f.flags == flags {
			return uint8(i), f, true
		}
	}
	return isobusfs.InvalidHandle, nil, false
}

// add stores f in the lowest free slot, owned by client.
func (p *handlePool) add(f *openFile, client uint8) (uint8, error) {
	for i, slot := range p.slots {
		if slot != nil {
			continue
		}
		f.owners = map[uint8]struct{}{client: {}}
		p.slots[i] = f
		p.used++
		return uint8(i), nil
	}
	return isobusfs.InvalidHandle, isobusfs.ErrorTooManyFilesOpen
}

// get returns the open file of handle h when client owns it.
func (p *handlePool) get(h uint8, client uint8) (*openFile, error) {
	if int(h) >= len(p.slots) || p.slots[h] == nil {
		return nil, fmt.Errorf("handle %d: %w", h, isobusfs.ErrorInvalidHandle)
	}
	f := p.slots[h]
	if !f.ownedBy(client) {
		return nil, fmt.Errorf("handle %d not opened by client 0x%02x: %w", h, client, isobusfs.ErrorInvalidHandle)
	}
	return f, nil
}

// release drops the reference of client to handle h. The file is closed
// once the last owner is gone.
func (p *handlePool) release(h uint8, client uint8) error {
	f, err := p.get(h, client)
	if err != nil {
		return err
	}
	delete(f.owners, client)
	if len(f.owners) > 0 {
		return nil
	}
	return p.free(h)
}

// releaseClient drops every reference held by client.
func (p *handlePool) releaseClient(client uint8) error {
	var errs error
	for i, f := range p.slots {
		if f == nil || !f.ownedBy(client) {
			continue
		}
		if err := p.release(uint8(i), client); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs
}

func (p *handlePool) free(h uint8) error {
	f := p.slots[h]
	p.slots[h] = nil
	p.used--

	level.Debug(p.log).Log("msg", "closing handle", "handle", h, "path", f.hostPath)
	if err := f.file.Close(); err != nil {
		return fmt.Errorf("closing handle %d: %w", h, err)
	}
	return nil
}

// Close closes every open file.
func (p *handlePool) Close() error {
	var errs error
	for i, f := range p.slots {
		if f == nil {
			continue
		}
		if err := p.free(uint8(i)); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs
}

// HandleState describes an open handle.
type HandleState struct {
	Handle uint8   `msgpack:"handle"`
	Path   string  `msgpack:"path"`
	Access string  `msgpack:"access"`
	Owners []uint8 `msgpack:"owners"`
}

func (p *handlePool) state() []HandleState {
	var out []HandleState
	for i, f := range p.slots {
		if f == nil {
			continue
		}
		owners := make([]uint8, 0, len(f.owners))
		for o := range f.owners {
			owners = append(owners, o)
		}
		sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })
		out = append(out, HandleState{
			Handle: uint8(i),
			Path:   f.isoPath,
			Access: f.access.String(),
			Owners: owners,
		})
	}
	return out
}
