package server

import (
	"fmt"
	"path/filepath"
	"syscall"

	"github.com/linux-can/can-utils-sub000/internal/isobusfs"
)

// ManufacturerDirName returns the host directory that the `~` segment maps
// to for a server with the given J1939 NAME. The manufacturer code lives in
// bits 21..31 of the NAME.
func ManufacturerDirName(name uint64) string {
	return fmt.Sprintf("MCMC%04d", (name>>21)&0x07FF)
}

// hostPath maps a normalized ISOBUS path to a path on the host. A `~`
// directly following the volume is replaced by the manufacturer directory.
// Unknown volumes fail with ENODEV.
func (s *Server) hostPath(p string) (*volume, string, error) {
	name, _, err := isobusfs.SplitVolume(p)
	if err != nil {
		return nil, "", fmt.Errorf("%q: %w", p, isobusfs.ErrInvalidPath)
	}
	v, ok := s.volumes.lookup(name)
	if !ok {
		return nil, "", fmt.Errorf("volume %q: %w", name, syscall.ENODEV)
	}

	segs := isobusfs.PathSegments(p)
	if len(segs) > 0 && segs[0] == isobusfs.ManufacturerDir {
		segs[0] = s.mfsDir
	}

	elems := make([]string, 0, len(segs)+1)
	elems = append(elems, v.Path)
	for _, seg := range segs {
		// NormalizePath already resolved dot segments; anything left here is
		// a literal name that must not escape the volume.
		if seg == "." || seg == ".." {
			return nil, "", fmt.Errorf("%q: %w", p, isobusfs.ErrInvalidPath)
		}
		elems = append(elems, seg)
	}
	return v, filepath.Join(elems...), nil
}
