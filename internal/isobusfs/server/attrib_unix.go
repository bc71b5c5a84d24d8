//go:build unix

package server

import (
	"os"

	"golang.org/x/sys/unix"
)

// access checks that path is readable, and writable when write is set, by
// the server process.
func access(path string, write bool) error {
	mode := uint32(unix.R_OK)
	if write {
		mode |= unix.W_OK
	}
	if err := unix.Access(path, mode); err != nil {
		return &os.PathError{Op: "access", Path: path, Err: err}
	}
	return nil
}
