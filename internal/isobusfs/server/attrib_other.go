//go:build !unix

package server

import (
	"io/fs"
	"os"
)

func access(path string, write bool) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if write && fi.Mode().Perm()&0o200 == 0 {
		return &os.PathError{Op: "access", Path: path, Err: fs.ErrPermission}
	}
	return nil
}
