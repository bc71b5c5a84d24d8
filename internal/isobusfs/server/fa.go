package server

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-kit/log/level"
	"github.com/linux-can/can-utils-sub000/internal/isobusfs"
)

func (s *Server) openFile(c *client, req *isobusfs.OpenFileRequest) isobusfs.Response {
	resp := &isobusfs.OpenFileResponse{
		Reply:  isobusfs.Reply{TAN: req.TAN},
		Handle: isobusfs.InvalidHandle,
	}

	h, f, err := s.openHandle(c, req)
	if err != nil {
		level.Debug(c.log).Log("msg", "open failed", "path", req.Path, "flags", fmt.Sprintf("0x%02x", uint8(req.Flags)), "err", err)
		resp.Error = isobusfs.ErrorFor(err)
		return resp
	}

	resp.Handle = h
	if fi, err := f.file.Stat(); err == nil {
		resp.Attributes = attributes(f.volume, f.hostPath, fi)
	}
	s.metrics.handles.Set(float64(s.handles.Len()))
	return resp
}

// openHandle opens req.Path for c. A path already opened with the same flags
// shares its handle.
func (s *Server) openHandle(c *client, req *isobusfs.OpenFileRequest) (uint8, *openFile, error) {
	isoPath, err := isobusfs.NormalizePath(c.cwd, req.Path)
	if err != nil {
		return isobusfs.InvalidHandle, nil, err
	}
	v, host, err := s.hostPath(isoPath)
	if err != nil {
		return isobusfs.InvalidHandle, nil, err
	}

	acc := req.Flags.Access()
	wantsWrite := acc == isobusfs.AccessWriteOnly || acc == isobusfs.AccessReadWrite || req.Flags&isobusfs.OpenCreate != 0
	if wantsWrite && !v.Writable {
		return isobusfs.InvalidHandle, nil, fmt.Errorf("volume %s is read-only: %w", v.Name, isobusfs.ErrorAccessDenied)
	}

	if h, f, ok := s.handles.find(host, req.Flags); ok {
		f.owners[c.addr] = struct{}{}
		return h, f, nil
	}

	file, err := openHost(host, acc, req.Flags)
	if err != nil {
		return isobusfs.InvalidHandle, nil, err
	}
	f := &openFile{
		hostPath: host,
		isoPath:  strings.TrimSuffix(isoPath, string(isobusfs.Separator)),
		access:   acc,
		flags:    req.Flags,
		volume:   v,
		file:     file,
	}
	h, err := s.handles.add(f, c.addr)
	if err != nil {
		file.Close()
		return isobusfs.InvalidHandle, nil, err
	}
	level.Debug(c.log).Log("msg", "opened", "path", f.isoPath, "handle", h, "access", acc)
	return h, f, nil
}

// openHost opens a host file or directory for the given access mode.
// Anything other than a directory or regular file is refused.
func openHost(path string, acc isobusfs.Access, flags isobusfs.OpenFlags) (*os.File, error) {
	var flag int
	switch acc {
	case isobusfs.AccessDirectory:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		if fi, err := f.Stat(); err != nil || !fi.IsDir() {
			f.Close()
			return nil, fmt.Errorf("%s is not a directory: %w", path, isobusfs.ErrorInvalidAccess)
		}
		return f, nil
	case isobusfs.AccessReadOnly:
		flag = os.O_RDONLY
	case isobusfs.AccessWriteOnly:
		flag = os.O_WRONLY
	case isobusfs.AccessReadWrite:
		flag = os.O_RDWR
		if flags&isobusfs.OpenAppend == 0 {
			flag |= os.O_TRUNC
		}
	}
	if flags&isobusfs.OpenAppend != 0 {
		flag |= os.O_APPEND
	}
	if flags&isobusfs.OpenCreate != 0 {
		flag |= os.O_CREATE
		if flags&isobusfs.OpenExclusive != 0 {
			flag |= os.O_EXCL
		}
	}

	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, err
	}
	if fi, err := f.Stat(); err != nil || !fi.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("%s is not a regular file: %w", path, isobusfs.ErrorInvalidAccess)
	}
	return f, nil
}

// attributes returns the protocol attributes of the host file at path.
func attributes(v *volume, path string, fi fs.FileInfo) isobusfs.Attributes {
	var attr isobusfs.Attributes
	if fi.IsDir() {
		attr |= isobusfs.AttrDirectory
	}
	if !v.Writable || access(path, true) != nil {
		attr |= isobusfs.AttrReadOnly
	}
	if strings.HasPrefix(fi.Name(), ".") {
		attr |= isobusfs.AttrHidden
	}
	return attr
}

func (s *Server) seekFile(c *client, req *isobusfs.SeekFileRequest) isobusfs.Response {
	resp := &isobusfs.SeekFileResponse{Reply: isobusfs.Reply{TAN: req.TAN}}

	f, err := s.handles.get(req.Handle, c.addr)
	if err == nil {
		if f.isDir() {
			resp.Position, err = f.seekDir(req.Offset)
		} else {
			resp.Position, err = f.seek(req.Mode, req.Offset)
		}
	}
	if err != nil {
		level.Debug(c.log).Log("msg", "seek failed", "handle", req.Handle, "mode", req.Mode, "offset", req.Offset, "err", err)
		resp.Error = isobusfs.ErrorFor(err)
	}
	return resp
}

func (f *openFile) seek(mode isobusfs.SeekMode, off int32) (uint32, error) {
	var whence int
	switch mode {
	case isobusfs.SeekSet:
		if off < 0 {
			return 0, fmt.Errorf("negative offset %d: %w", off, isobusfs.ErrorInvalidLength)
		}
		whence = io.SeekStart
	case isobusfs.SeekCur:
		cur, err := f.file.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, err
		}
		if cur+int64(off) < 0 {
			return 0, fmt.Errorf("offset %d before start of file: %w", off, isobusfs.ErrorInvalidLength)
		}
		whence = io.SeekCurrent
	case isobusfs.SeekEnd:
		if off > 0 {
			return 0, fmt.Errorf("offset %d past end of file: %w", off, isobusfs.ErrorInvalidLength)
		}
		whence = io.SeekEnd
	default:
		return 0, fmt.Errorf("seek mode %d: %w", mode, isobusfs.ErrorOther)
	}

	pos, err := f.file.Seek(int64(off), whence)
	if err != nil {
		return 0, err
	}
	if pos > math.MaxUint32 {
		return 0, fmt.Errorf("position %d: %w", pos, isobusfs.ErrorOutOfMemory)
	}
	return uint32(pos), nil
}

// seekDir positions a directory handle at entry off.
func (f *openFile) seekDir(off int32) (uint32, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d: %w", off, isobusfs.ErrorInvalidLength)
	}
	entries, err := f.listDir()
	if err != nil {
		return 0, err
	}
	if int(off) > len(entries) {
		return 0, fmt.Errorf("directory has %d entries: %w", len(entries), isobusfs.ErrorEndOfFile)
	}
	f.dirPos = int(off)
	return uint32(off), nil
}

// listDir returns the entries of a directory handle in name order. Entries
// the server cannot stat or read, or whose names don't fit the wire format,
// are left out.
func (f *openFile) listDir() ([]isobusfs.DirEntry, error) {
	ents, err := os.ReadDir(f.hostPath)
	if err != nil {
		return nil, err
	}

	out := make([]isobusfs.DirEntry, 0, len(ents))
	for _, ent := range ents {
		name := ent.Name()
		if len(name) > isobusfs.MaxDirEntryNameLength {
			continue
		}
		path := filepath.Join(f.hostPath, name)
		fi, err := os.Stat(path)
		if err != nil || access(path, false) != nil {
			continue
		}
		size := fi.Size()
		if fi.IsDir() {
			size = 0
		} else if size > math.MaxUint32 {
			size = math.MaxUint32
		}
		out = append(out, isobusfs.DirEntry{
			Name:       name,
			Attributes: attributes(f.volume, path, fi),
			Modified:   fi.ModTime(),
			Size:       uint32(size),
		})
	}
	return out, nil
}

func (s *Server) readFile(c *client, req *isobusfs.ReadFileRequest) isobusfs.Response {
	resp := &isobusfs.ReadFileResponse{Reply: isobusfs.Reply{TAN: req.TAN}}

	count := int(req.Count)
	if count > isobusfs.MaxDataLength {
		count = isobusfs.MaxDataLength
	}

	f, err := s.handles.get(req.Handle, c.addr)
	if err == nil {
		s.markBusy(isobusfs.StatusBusyReading)
		if f.isDir() {
			resp.Data, err = f.readDir(count)
		} else {
			resp.Data, err = f.read(count)
		}
	}
	if err == nil && count != 0 && len(resp.Data) == 0 {
		err = io.EOF
	}

	if err != nil {
		if errors.Is(err, io.EOF) {
			resp.Error = isobusfs.ErrorEndOfFile
		} else {
			level.Debug(c.log).Log("msg", "read failed", "handle", req.Handle, "err", err)
			resp.Error = isobusfs.ErrorFor(err)
		}
		resp.Data = nil
	}
	return resp
}

func (f *openFile) read(count int) ([]byte, error) {
	buf := make([]byte, count)
	n, err := io.ReadFull(f.file, buf)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		err = nil
	}
	return buf[:n], err
}

// readDir packs as many directory entries as fit in count bytes, starting
// at the handle's directory position.
func (f *openFile) readDir(count int) ([]byte, error) {
	entries, err := f.listDir()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, count)
	for f.dirPos < len(entries) {
		e := entries[f.dirPos]
		if len(buf)+isobusfs.DirEntrySize(len(e.Name)) > count {
			break
		}
		if buf, err = isobusfs.AppendDirEntry(buf, e); err != nil {
			return nil, err
		}
		f.dirPos++
	}
	return buf, nil
}

func (s *Server) writeFile(c *client, req *isobusfs.WriteFileRequest) isobusfs.Response {
	resp := &isobusfs.WriteFileResponse{Reply: isobusfs.Reply{TAN: req.TAN}}

	f, err := s.handles.get(req.Handle, c.addr)
	switch {
	case err != nil:
	case f.isDir():
		err = fmt.Errorf("handle %d is a directory: %w", req.Handle, isobusfs.ErrorInvalidAccess)
	case !f.volume.Writable:
		err = fmt.Errorf("volume %s is read-only: %w", f.volume.Name, isobusfs.ErrorAccessDenied)
	default:
		s.markBusy(isobusfs.StatusBusyWriting)
		var n int
		n, err = f.file.Write(req.Data)
		resp.Count = uint16(n)
	}
	if err != nil {
		level.Debug(c.log).Log("msg", "write failed", "handle", req.Handle, "err", err)
		resp.Error = isobusfs.ErrorFor(err)
	}
	return resp
}

func (s *Server) closeFile(c *client, req *isobusfs.CloseFileRequest) isobusfs.Response {
	resp := &isobusfs.CloseFileResponse{Reply: isobusfs.Reply{TAN: req.TAN}}
	if err := s.handles.release(req.Handle, c.addr); err != nil {
		level.Debug(c.log).Log("msg", "close failed", "handle", req.Handle, "err", err)
		resp.Error = isobusfs.ErrorFor(err)
	}
	s.metrics.handles.Set(float64(s.handles.Len()))
	return resp
}
