package server

import (
	"github.com/go-kit/log/level"
	"github.com/linux-can/can-utils-sub000/internal/isobusfs"
)

func (s *Server) maintenance(c *client, req *isobusfs.MaintenanceRequest) {
	if c.version != req.Version {
		level.Debug(c.log).Log("msg", "client version", "version", req.Version)
	}
	c.version = req.Version
}

func (s *Server) properties() *isobusfs.PropertiesResponse {
	return &isobusfs.PropertiesResponse{
		Version:      s.o.Version,
		MaxOpenFiles: isobusfs.MaxOpenFiles,
		Capabilities: 0,
	}
}

// volumeStatus reports the state of the volume named in req, or of the
// volume holding the client's current directory when no name is given.
func (s *Server) volumeStatus(c *client, req *isobusfs.VolumeStatusRequest) isobusfs.Response {
	resp := &isobusfs.VolumeStatusResponse{}
	if s.o.Version < 3 {
		level.Debug(c.log).Log("msg", "volume status needs server version 3", "version", s.o.Version)
		resp.Error = isobusfs.ErrorNotSupported
		return resp
	}

	path := req.Name
	if path == "" {
		path = c.cwd
	}

	name, _, err := isobusfs.SplitVolume(path)
	if err != nil {
		level.Debug(c.log).Log("msg", "can't extract volume name", "path", path, "err", err)
		resp.Error = isobusfs.ErrorOther
		return resp
	}
	resp.Name = name

	v, ok := s.volumes.lookup(name)
	if !ok {
		resp.Error = isobusfs.ErrorNotFound
		return resp
	}
	if err := checkDir(v.Path, false); err != nil {
		level.Debug(c.log).Log("msg", "volume not accessible", "volume", name, "err", err)
		resp.Error = isobusfs.ErrorInvalidAccess
		return resp
	}

	prepareRemove := req.Mode&isobusfs.VolumeModePrepareRemove != 0
	switch {
	case prepareRemove && !v.Removable:
		resp.Error = isobusfs.ErrorInvalidAccess
		return resp
	case !prepareRemove && req.Mode&isobusfs.VolumeModeInUse != 0:
		v.users[c.addr] = struct{}{}
	}

	// The status follows the users of the volume. A removal is only
	// reported as being prepared once nobody uses the volume.
	switch {
	case len(v.users) > 0:
		resp.Status = isobusfs.VolumeInUse
	case prepareRemove:
		resp.Status = isobusfs.VolumePreparingRemoval
	default:
		resp.Status = isobusfs.VolumePresent
	}
	return resp
}
