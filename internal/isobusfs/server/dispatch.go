package server

import (
	"context"
	"fmt"

	"github.com/linux-can/can-utils-sub000/internal/isobusfs"
)

// invoke is the Invoker at the end of the middleware chain. Handlers report
// protocol errors inside their typed responses; a returned error is turned
// into a bare error response.
func (s *Server) invoke(ctx context.Context, hdr *RequestHeader, req isobusfs.Request) (isobusfs.Response, error) {
	c, ok := s.clients[hdr.Client]
	if !ok {
		return nil, fmt.Errorf("unknown client 0x%02x: %w", hdr.Client, isobusfs.ErrorOther)
	}

	switch req := req.(type) {
	case *isobusfs.MaintenanceRequest:
		// Maintenance messages are never answered.
		s.maintenance(c, req)
		return nil, nil
	case *isobusfs.PropertiesRequest:
		return s.properties(), nil
	case *isobusfs.VolumeStatusRequest:
		return s.volumeStatus(c, req), nil

	case *isobusfs.GetCurrentDirRequest:
		return s.getCurrentDir(c, req), nil
	case *isobusfs.ChangeCurrentDirRequest:
		return s.changeCurrentDir(c, req), nil

	case *isobusfs.OpenFileRequest:
		return s.openFile(c, req), nil
	case *isobusfs.SeekFileRequest:
		return s.seekFile(c, req), nil
	case *isobusfs.ReadFileRequest:
		return s.readFile(c, req), nil
	case *isobusfs.WriteFileRequest:
		return s.writeFile(c, req), nil
	case *isobusfs.CloseFileRequest:
		return s.closeFile(c, req), nil

	case *isobusfs.UnsupportedRequest:
		return nil, fmt.Errorf("%s: %w", req.Cmd, isobusfs.ErrorNotSupported)
	}
	return nil, fmt.Errorf("unexpected request %T: %w", req, isobusfs.ErrorNotSupported)
}
