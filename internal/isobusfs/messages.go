package isobusfs

// Request is a message sent from a client to the file server.
type Request interface {
	Command() Command
	isobusfsRequest()
}

// Response is a message sent from the file server to a client.
type Response interface {
	Command() Command
	isobusfsResponse()
}

// Reply holds the transaction number and error code carried by responses of
// the directory handling and file access groups.
type Reply struct {
	TAN   uint8
	Error Error
}

// Status returns r. It allows generic access to the reply header through
// the Replier interface.
func (r Reply) Status() Reply { return r }

// Replier is implemented by responses that carry a Reply.
type Replier interface {
	Response
	Status() Reply
}

// Protocol messages. Field order follows the wire layout.
type (
	// MaintenanceRequest is the client connection maintenance message
	// sent periodically by every client.
	MaintenanceRequest struct {
		Version uint8
	}

	// StatusMessage is the file server status broadcast.
	StatusMessage struct {
		Status       uint8
		NumOpenFiles uint8
	}

	PropertiesRequest  struct{}
	PropertiesResponse struct {
		Version      uint8
		MaxOpenFiles uint8
		Capabilities uint8
	}

	VolumeStatusRequest struct {
		Mode uint8
		Name string
	}
	VolumeStatusResponse struct {
		Status               uint8
		MaxTimeBeforeRemoval uint8
		Error                Error
		Name                 string
	}

	GetCurrentDirRequest struct {
		TAN uint8
	}
	GetCurrentDirResponse struct {
		Reply
		TotalSpace uint32
		FreeSpace  uint32
		Name       string
	}

	ChangeCurrentDirRequest struct {
		TAN  uint8
		Path string
	}
	ChangeCurrentDirResponse struct {
		Reply
	}

	OpenFileRequest struct {
		TAN   uint8
		Flags OpenFlags
		Path  string
	}
	OpenFileResponse struct {
		Reply
		Handle     uint8
		Attributes Attributes
	}

	SeekFileRequest struct {
		TAN    uint8
		Handle uint8
		Mode   SeekMode
		Offset int32
	}
	SeekFileResponse struct {
		Reply
		Position uint32
	}

	ReadFileRequest struct {
		TAN    uint8
		Handle uint8
		Count  uint16
	}
	ReadFileResponse struct {
		Reply
		Data []byte
	}

	WriteFileRequest struct {
		TAN    uint8
		Handle uint8
		Data   []byte
	}
	WriteFileResponse struct {
		Reply
		Count uint16
	}

	CloseFileRequest struct {
		TAN    uint8
		Handle uint8
	}
	CloseFileResponse struct {
		Reply
	}

	// UnsupportedRequest is a well-formed request for a function the server
	// does not implement.
	UnsupportedRequest struct {
		Cmd  Command
		TAN  uint8
		Data []byte
	}

	// ErrorResponse is a bare error reply for a command.
	ErrorResponse struct {
		Cmd Command
		Reply
	}
)

func (*MaintenanceRequest) Command() Command       { return CmdMaintenance }
func (*StatusMessage) Command() Command            { return CmdMaintenance }
func (*PropertiesRequest) Command() Command        { return CmdProperties }
func (*PropertiesResponse) Command() Command       { return CmdProperties }
func (*VolumeStatusRequest) Command() Command      { return CmdVolumeStatus }
func (*VolumeStatusResponse) Command() Command     { return CmdVolumeStatus }
func (*GetCurrentDirRequest) Command() Command     { return CmdGetCurrentDir }
func (*GetCurrentDirResponse) Command() Command    { return CmdGetCurrentDir }
func (*ChangeCurrentDirRequest) Command() Command  { return CmdChangeCurrentDir }
func (*ChangeCurrentDirResponse) Command() Command { return CmdChangeCurrentDir }
func (*OpenFileRequest) Command() Command          { return CmdOpenFile }
func (*OpenFileResponse) Command() Command         { return CmdOpenFile }
func (*SeekFileRequest) Command() Command          { return CmdSeekFile }
func (*SeekFileResponse) Command() Command         { return CmdSeekFile }
func (*ReadFileRequest) Command() Command          { return CmdReadFile }
func (*ReadFileResponse) Command() Command         { return CmdReadFile }
func (*WriteFileRequest) Command() Command         { return CmdWriteFile }
func (*WriteFileResponse) Command() Command        { return CmdWriteFile }
func (*CloseFileRequest) Command() Command         { return CmdCloseFile }
func (*CloseFileResponse) Command() Command        { return CmdCloseFile }
func (r *UnsupportedRequest) Command() Command     { return r.Cmd }
func (r *ErrorResponse) Command() Command          { return r.Cmd }

func (*MaintenanceRequest) isobusfsRequest()      {}
func (*PropertiesRequest) isobusfsRequest()       {}
func (*VolumeStatusRequest) isobusfsRequest()     {}
func (*GetCurrentDirRequest) isobusfsRequest()    {}
func (*ChangeCurrentDirRequest) isobusfsRequest() {}
func (*OpenFileRequest) isobusfsRequest()         {}
func (*SeekFileRequest) isobusfsRequest()         {}
func (*ReadFileRequest) isobusfsRequest()         {}
func (*WriteFileRequest) isobusfsRequest()        {}
func (*CloseFileRequest) isobusfsRequest()        {}
func (*UnsupportedRequest) isobusfsRequest()      {}

func (*StatusMessage) isobusfsResponse()            {}
func (*PropertiesResponse) isobusfsResponse()       {}
func (*VolumeStatusResponse) isobusfsResponse()     {}
func (*GetCurrentDirResponse) isobusfsResponse()    {}
func (*ChangeCurrentDirResponse) isobusfsResponse() {}
func (*OpenFileResponse) isobusfsResponse()         {}
func (*SeekFileResponse) isobusfsResponse()         {}
func (*ReadFileResponse) isobusfsResponse()         {}
func (*WriteFileResponse) isobusfsResponse()        {}
func (*CloseFileResponse) isobusfsResponse()        {}
func (*ErrorResponse) isobusfsResponse()            {}

// RequestTAN returns the transaction number of req and whether req carries
// one. Connection management requests have no TAN.
func RequestTAN(req Request) (uint8, bool) {
	switch req := req.(type) {
	case *GetCurrentDirRequest:
		return req.TAN, true
	case *ChangeCurrentDirRequest:
		return req.TAN, true
	case *OpenFileRequest:
		return req.TAN, true
	case *SeekFileRequest:
		return req.TAN, true
	case *ReadFileRequest:
		return req.TAN, true
	case *WriteFileRequest:
		return req.TAN, true
	case *CloseFileRequest:
		return req.TAN, true
	case *UnsupportedRequest:
		return req.TAN, true
	}
	return 0, false
}
