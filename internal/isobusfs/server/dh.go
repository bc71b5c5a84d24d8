package server

import (
	"github.com/go-kit/log/level"
	"github.com/linux-can/can-utils-sub000/internal/isobusfs"
)

func (s *Server) getCurrentDir(c *client, req *isobusfs.GetCurrentDirRequest) isobusfs.Response {
	resp := &isobusfs.GetCurrentDirResponse{
		Reply: isobusfs.Reply{TAN: req.TAN},
		Name:  c.cwd,
	}
	if err := s.checkCurrentDir(c.cwd); err != nil {
		level.Debug(c.log).Log("msg", "current directory not accessible", "path", c.cwd, "err", err)
		resp.Error = isobusfs.ErrorFor(err)
	}
	return resp
}

func (s *Server) changeCurrentDir(c *client, req *isobusfs.ChangeCurrentDirRequest) isobusfs.Response {
	resp := &isobusfs.ChangeCurrentDirResponse{Reply: isobusfs.Reply{TAN: req.TAN}}

	p, err := isobusfs.NormalizePath(c.cwd, req.Path)
	if err == nil {
		err = s.checkCurrentDir(p)
	}
	if err != nil {
		level.Debug(c.log).Log("msg", "change current directory failed", "path", req.Path, "cwd", c.cwd, "err", err)
		resp.Error = isobusfs.ErrorFor(err)
		return resp
	}

	level.Debug(c.log).Log("msg", "changed current directory", "path", p)
	c.cwd = p
	return resp
}

// checkCurrentDir verifies that the ISOBUS path p names a readable
// directory.
func (s *Server) checkCurrentDir(p string) error {
	_, host, err := s.hostPath(p)
	if err != nil {
		return err
	}
	return checkDir(host, false)
}
