package isobusfs

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Decoding errors.
var (
	ErrIncomplete     = errors.New("isobusfs: incomplete message")
	ErrShortFrame     = errors.New("isobusfs: frame shorter than minimum transfer length")
	ErrUnknownGroup   = errors.New("isobusfs: unknown command group")
	ErrUnknownCommand = errors.New("isobusfs: unknown command")
	ErrTooLarge       = errors.New("isobusfs: message exceeds maximum transfer length")
)

// Message is any ISOBUS-FS message.
type Message interface {
	Command() Command
}

// DecodeRequest parses a message received on the client to server PGN.
// Requests for functions the server does not know inside a known group are
// returned as *UnsupportedRequest.
func DecodeRequest(b []byte) (req Request, err error) {
	if len(b) < MinTransferLength {
		return nil, ErrShortFrame
	}
	cmd := Command(b[0])
	if !cmd.Group().Known() {
		return nil, fmt.Errorf("%w %d", ErrUnknownGroup, cmd.Group())
	}

	defer recoverIncomplete(&err)
	ar := argReader{data: b, off: 1}

	switch cmd {
	case CmdMaintenance:
		req = &MaintenanceRequest{Version: ar.U8()}
	case CmdProperties:
		req = &PropertiesRequest{}
	case CmdVolumeStatus:
		r := &VolumeStatusRequest{Mode: ar.U8()}
		r.Name = ar.String(int(ar.U16()))
		req = r
	case CmdGetCurrentDir:
		req = &GetCurrentDirRequest{TAN: ar.U8()}
	case CmdChangeCurrentDir:
		r := &ChangeCurrentDirRequest{TAN: ar.U8()}
		r.Path = ar.String(int(ar.U16()))
		req = r
	case CmdOpenFile:
		r := &OpenFileRequest{TAN: ar.U8(), Flags: OpenFlags(ar.U8())}
		r.Path = ar.String(int(ar.U16()))
		req = r
	case CmdSeekFile:
		req = &SeekFileRequest{
			TAN:    ar.U8(),
			Handle: ar.U8(),
			Mode:   SeekMode(ar.U8()),
			Offset: int32(ar.U32()),
		}
	case CmdReadFile:
		req = &ReadFileRequest{TAN: ar.U8(), Handle: ar.U8(), Count: ar.U16()}
	case CmdWriteFile:
		r := &WriteFileRequest{TAN: ar.U8(), Handle: ar.U8()}
		r.Data = ar.Bytes(int(ar.U16()))
		req = r
	case CmdCloseFile:
		req = &CloseFileRequest{TAN: ar.U8(), Handle: ar.U8()}
	default:
		req = &UnsupportedRequest{Cmd: cmd, TAN: ar.U8(), Data: ar.Rest()}
	}
	return req, nil
}

// DecodeResponse parses a message received on the file server to client PGN.
func DecodeResponse(b []byte) (resp Response, err error) {
	if len(b) < MinTransferLength {
		return nil, ErrShortFrame
	}
	cmd := Command(b[0])
	if !cmd.Group().Known() {
		return nil, fmt.Errorf("%w %d", ErrUnknownGroup, cmd.Group())
	}

	defer recoverIncomplete(&err)
	ar := argReader{data: b, off: 1}

	switch cmd {
	case CmdMaintenance:
		resp = &StatusMessage{Status: ar.U8(), NumOpenFiles: ar.U8()}
	case CmdProperties:
		resp = &PropertiesResponse{Version: ar.U8(), MaxOpenFiles: ar.U8(), Capabilities: ar.U8()}
	case CmdVolumeStatus:
		r := &VolumeStatusResponse{Status: ar.U8(), MaxTimeBeforeRemoval: ar.U8(), Error: Error(ar.U8())}
		r.Name = ar.String(int(ar.U16()))
		resp = r
	case CmdGetCurrentDir:
		r := &GetCurrentDirResponse{Reply: ar.Reply(), TotalSpace: ar.U32(), FreeSpace: ar.U32()}
		r.Name = trimNUL(ar.String(int(ar.U16())))
		resp = r
	case CmdChangeCurrentDir:
		resp = &ChangeCurrentDirResponse{Reply: ar.Reply()}
	case CmdOpenFile:
		resp = &OpenFileResponse{Reply: ar.Reply(), Handle: ar.U8(), Attributes: Attributes(ar.U8())}
	case CmdSeekFile:
		r := &SeekFileResponse{Reply: ar.Reply()}
		ar.Skip(1)
		r.Position = ar.U32()
		resp = r
	case CmdReadFile:
		r := &ReadFileResponse{Reply: ar.Reply()}
		r.Data = ar.Bytes(int(ar.U16()))
		resp = r
	case CmdWriteFile:
		resp = &WriteFileResponse{Reply: ar.Reply(), Count: ar.U16()}
	case CmdCloseFile:
		resp = &CloseFileResponse{Reply: ar.Reply()}
	default:
		resp = &ErrorResponse{Cmd: cmd, Reply: ar.Reply()}
	}
	return resp, nil
}

// Encode serializes msg. Messages shorter than MinTransferLength are padded
// with Fill.
func Encode(msg Message) (data []byte, err error) {
	defer recoverIncomplete(&err)

	aw := newArgWriter(msg.Command())

	switch m := msg.(type) {
	case *MaintenanceRequest:
		aw.U8(m.Version)
	case *StatusMessage:
		aw.U8(m.Status)
		aw.U8(m.NumOpenFiles)
	case *PropertiesRequest:
		// Only the command byte.
	case *PropertiesResponse:
		aw.U8(m.Version)
		aw.U8(m.MaxOpenFiles)
		aw.U8(m.Capabilities)
	case *VolumeStatusRequest:
		aw.U8(m.Mode)
		aw.String16(m.Name)
	case *VolumeStatusResponse:
		aw.U8(m.Status)
		aw.U8(m.MaxTimeBeforeRemoval)
		aw.U8(uint8(m.Error))
		aw.String16(m.Name)
	case *GetCurrentDirRequest:
		aw.U8(m.TAN)
	case *GetCurrentDirResponse:
		aw.Reply(m.Reply)
		aw.U32(m.TotalSpace)
		aw.U32(m.FreeSpace)
		aw.String16(m.Name + "\x00")
	case *ChangeCurrentDirRequest:
		aw.U8(m.TAN)
		aw.String16(m.Path)
	case *ChangeCurrentDirResponse:
		aw.Reply(m.Reply)
	case *OpenFileRequest:
		aw.U8(m.TAN)
		aw.U8(uint8(m.Flags))
		aw.String16(m.Path)
	case *OpenFileResponse:
		aw.Reply(m.Reply)
		aw.U8(m.Handle)
		aw.U8(uint8(m.Attributes))
	case *SeekFileRequest:
		aw.U8(m.TAN)
		aw.U8(m.Handle)
		aw.U8(uint8(m.Mode))
		aw.U32(uint32(m.Offset))
	case *SeekFileResponse:
		aw.Reply(m.Reply)
		aw.U8(Fill)
		aw.U32(m.Position)
	case *ReadFileRequest:
		aw.U8(m.TAN)
		aw.U8(m.Handle)
		aw.U16(m.Count)
	case *ReadFileResponse:
		aw.Reply(m.Reply)
		aw.Bytes16(m.Data)
	case *WriteFileRequest:
		aw.U8(m.TAN)
		aw.U8(m.Handle)
		aw.Bytes16(m.Data)
	case *WriteFileResponse:
		aw.Reply(m.Reply)
		aw.U16(m.Count)
	case *CloseFileRequest:
		aw.U8(m.TAN)
		aw.U8(m.Handle)
	case *CloseFileResponse:
		aw.Reply(m.Reply)
	case *UnsupportedRequest:
		aw.U8(m.TAN)
		aw.Bytes(m.Data)
	case *ErrorResponse:
		aw.Reply(m.Reply)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownCommand, msg)
	}

	return aw.Finish()
}

func recoverIncomplete(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if rerr, ok := r.(error); ok && (errors.Is(rerr, ErrIncomplete) || errors.Is(rerr, ErrTooLarge)) {
		*err = rerr
		return
	}
	panic(r)
}

func trimNUL(s string) string {
	if n := len(s); n > 0 && s[n-1] == 0 {
		return s[:n-1]
	}
	return s
}

// argReader pops little-endian fields off of a message. Any method that
// runs out of data panics with ErrIncomplete, which the decoders recover.
type argReader struct {
	data []byte
	off  int
}

func (ar *argReader) take(n int) []byte {
	if n < 0 || len(ar.data)-ar.off < n {
		panic(ErrIncomplete)
	}
	res := ar.data[ar.off : ar.off+n]
	ar.off += n
	return res
}

func (ar *argReader) U8() uint8   { return ar.take(1)[0] }
func (ar *argReader) U16() uint16 { return binary.LittleEndian.Uint16(ar.take(2)) }
func (ar *argReader) U32() uint32 { return binary.LittleEndian.Uint32(ar.take(4)) }
func (ar *argReader) Skip(n int)  { ar.take(n) }

// Bytes pops a copy of the next n bytes.
func (ar *argReader) Bytes(n int) []byte {
	res := make([]byte, n)
	copy(res, ar.take(n))
	return res
}

// String pops n bytes as a string.
func (ar *argReader) String(n int) string { return string(ar.take(n)) }

// Rest pops all remaining bytes.
func (ar *argReader) Rest() []byte { return ar.Bytes(len(ar.data) - ar.off) }

// Reply pops a TAN and error byte.
func (ar *argReader) Reply() Reply {
	return Reply{TAN: ar.U8(), Error: Error(ar.U8())}
}

// argWriter appends little-endian fields to a message.
type argWriter struct {
	buf []byte
}

func newArgWriter(cmd Command) *argWriter {
	aw := &argWriter{buf: make([]byte, 0, MinTransferLength)}
	aw.U8(uint8(cmd))
	return aw
}

func (aw *argWriter) U8(v uint8) { aw.buf = append(aw.buf, v) }

func (aw *argWriter) U16(v uint16) {
	aw.buf = binary.LittleEndian.AppendUint16(aw.buf, v)
}

func (aw *argWriter) U32(v uint32) {
	aw.buf = binary.LittleEndian.AppendUint32(aw.buf, v)
}

func (aw *argWriter) Bytes(b []byte) { aw.buf = append(aw.buf, b...) }

// Bytes16 writes b prefixed by its length as a u16.
func (aw *argWriter) Bytes16(b []byte) {
	if len(b) > MaxDataLength {
		panic(ErrTooLarge)
	}
	aw.U16(uint16(len(b)))
	aw.Bytes(b)
}

// String16 writes s prefixed by its length as a u16.
func (aw *argWriter) String16(s string) { aw.Bytes16([]byte(s)) }

func (aw *argWriter) Reply(r Reply) {
	aw.U8(r.TAN)
	aw.U8(uint8(r.Error))
}

// Finish pads the message to the minimum transfer length and returns it.
func (aw *argWriter) Finish() ([]byte, error) {
	if len(aw.buf) > MaxTransferLength {
		return nil, ErrTooLarge
	}
	return Pad(aw.buf), nil
}

// Pad extends b with Fill bytes up to MinTransferLength. Longer messages are
// returned unchanged.
func Pad(b []byte) []byte {
	for len(b) < MinTransferLength {
		b = append(b, Fill)
	}
	return b
}
