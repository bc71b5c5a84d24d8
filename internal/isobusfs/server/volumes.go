package server

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/linux-can/can-utils-sub000/internal/isobusfs"
	"github.com/mitchellh/go-homedir"
)

// Volume is a host directory exported to clients under a volume name.
type Volume struct {
	Name      string `yaml:"name"`
	Path      string `yaml:"path"`
	Removable bool   `yaml:"removable"`
	Writable  bool   `yaml:"writable"`
}

// Validate checks the volume name and path lengths.
func (v Volume) Validate() error {
	switch {
	case v.Name == "":
		return fmt.Errorf("volume name must not be empty")
	case len(v.Name) > isobusfs.MaxVolumeNameLength:
		return fmt.Errorf("volume name %q exceeds %d bytes", v.Name, isobusfs.MaxVolumeNameLength)
	case v.Path == "":
		return fmt.Errorf("volume %q: path must not be empty", v.Name)
	case len(v.Path) > isobusfs.MaxPathLength:
		return fmt.Errorf("volume %q: path exceeds %d bytes", v.Name, isobusfs.MaxPathLength)
	}
	for i := 0; i < len(v.Name); i++ {
		if isobusfs.ForbiddenChar(v.Name[i]) || v.Name[i] == isobusfs.Separator {
			return fmt.Errorf("volume name %q contains forbidden character %q", v.Name, v.Name[i])
		}
	}
	return nil
}

// volume is the runtime state of a Volume.
type volume struct {
	Volume

	// users holds the addresses of clients that announced they use the
	// volume through Volume Status.
	users map[uint8]struct{}
}

type volumeSet struct {
	byName map[string]*volume
}

func newVolumeSet(vols []Volume) (*volumeSet, error) {
	if len(vols) == 0 {
		return nil, fmt.Errorf("at least one volume must be configured")
	}
	if len(vols) > isobusfs.MaxVolumes {
		return nil, fmt.Errorf("too many volumes: %d > %d", len(vols), isobusfs.MaxVolumes)
	}

	vs := &volumeSet{byName: make(map[string]*volume, len(vols))}
	for _, v := range vols {
		if err := v.Validate(); err != nil {
			return nil, err
		}
		if _, dup := vs.byName[v.Name]; dup {
			return nil, fmt.Errorf("volume %q configured twice", v.Name)
		}
		path, err := homedir.Expand(v.Path)
		if err != nil {
			return nil, fmt.Errorf("volume %q: %w", v.Name, err)
		}
		v.Path = filepath.Clean(path)
		vs.byName[v.Name] = &volume{Volume: v, users: make(map[uint8]struct{})}
	}
	return vs, nil
}

func (vs *volumeSet) lookup(name string) (*volume, bool) {
	v, ok := vs.byName[name]
	return v, ok
}

// names returns the volume names in sorted order.
func (vs *volumeSet) names() []string {
	names := make([]string, 0, len(vs.byName))
	for n := range vs.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// release removes client from the users of every volume.
func (vs *volumeSet) release(client uint8) {
	for _, v := range vs.byName {
		delete(v.users, client)
	}
}

// checkDir verifies that path is an accessible directory. Writable also
// requires write permission.
func checkDir(path string, writable bool) error {
	if err := access(path, writable); err != nil {
		return err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return &os.PathError{Op: "stat", Path: path, Err: syscall.ENOTDIR}
	}
	return nil
}
