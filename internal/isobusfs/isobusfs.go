// Package isobusfs implements the wire protocol of the ISO 11783-13 file
// server (ISOBUS-FS). Messages are carried over J1939 and encoded as
// little-endian records starting with a command byte.
package isobusfs

import (
	"fmt"
	"time"
)

// Parameter group numbers used by ISOBUS-FS.
const (
	PGNClientToServer uint32 = 0x0AA00 // Client to file server
	PGNServerToClient uint32 = 0x0AB00 // File server to client
	PGNAck            uint32 = 0x0E800 // Acknowledgement (ACK/NACK)
)

// J1939 priorities.
const (
	PriorityDefault = 7
	PriorityStatus  = 5
	PriorityAck     = 6
)

// Protocol limits.
const (
	MaxDataLength         = 65530
	MaxTransferLength     = 6 + MaxDataLength
	MinTransferLength     = 8
	MaxOpenFiles          = 255
	InvalidHandle         = 0xFF
	MaxVolumes            = 10
	MaxVolumeNameLength   = 254
	MaxPathLength         = 4096
	MaxClients            = 237
	MaxDirEntryNameLength = 255
	MaxEvents             = 10

	// Fill is the value used for reserved and padding bytes.
	Fill = 0xFF
)

// Timing constants.
const (
	ClientTimeout   = 6000 * time.Millisecond // Server forgets a silent client.
	ServerTimeout   = 6000 * time.Millisecond // Client considers the server gone.
	MaintenanceRate = 2000 * time.Millisecond
	StatusIdleRate  = 2000 * time.Millisecond
	StatusBusyRate  = 200 * time.Millisecond
	Jitter          = 5 * time.Millisecond
	EventTimeout    = 1000 * time.Millisecond
)

// Protocol versions.
const (
	DefaultClientVersion = 2
	DefaultServerVersion = 4
)

// Group is a command group, held in the high nibble of the command byte.
type Group uint8

// Command groups.
const (
	GroupConnectionManagement Group = 0
	GroupDirectoryHandling    Group = 1
	GroupFileAccess           Group = 2
	GroupFileHandling         Group = 3
	GroupVolumeHandling       Group = 4
)

var groupNames = map[Group]string{
	GroupConnectionManagement: "connection management",
	GroupDirectoryHandling:    "directory handling",
	GroupFileAccess:           "file access",
	GroupFileHandling:         "file handling",
	GroupVolumeHandling:       "volume handling",
}

func (g Group) String() string {
	if n, ok := groupNames[g]; ok {
		return n
	}
	return fmt.Sprintf("group(%d)", uint8(g))
}

// Known reports whether g is a group defined by the protocol.
func (g Group) Known() bool {
	_, ok := groupNames[g]
	return ok
}

// Command is the first byte of every ISOBUS-FS message.
type Command uint8

// NewCommand builds a command byte from a group and function.
func NewCommand(g Group, function uint8) Command {
	return Command(uint8(g)<<4 | function&0x0F)
}

// Group returns the command group of c.
func (c Command) Group() Group { return Group(c >> 4) }

// Function returns the function within the command group.
func (c Command) Function() uint8 { return uint8(c) & 0x0F }

// Commands.
const (
	CmdMaintenance       Command = 0x00 // Client connection maintenance / file server status
	CmdProperties        Command = 0x01
	CmdVolumeStatus      Command = 0x02
	CmdGetCurrentDir     Command = 0x10
	CmdChangeCurrentDir  Command = 0x11
	CmdOpenFile          Command = 0x20
	CmdSeekFile          Command = 0x21
	CmdReadFile          Command = 0x22
	CmdWriteFile         Command = 0x23
	CmdCloseFile         Command = 0x24
	CmdMoveFile          Command = 0x30
	CmdDeleteFile        Command = 0x31
	CmdGetFileAttributes Command = 0x32
	CmdSetFileAttributes Command = 0x33
	CmdGetFileDateTime   Command = 0x34
	CmdInitializeVolume  Command = 0x40
)

var commandNames = map[Command]string{
	CmdMaintenance:       "maintenance",
	CmdProperties:        "properties",
	CmdVolumeStatus:      "volume_status",
	CmdGetCurrentDir:     "get_current_dir",
	CmdChangeCurrentDir:  "change_current_dir",
	CmdOpenFile:          "open_file",
	CmdSeekFile:          "seek_file",
	CmdReadFile:          "read_file",
	CmdWriteFile:         "write_file",
	CmdCloseFile:         "close_file",
	CmdMoveFile:          "move_file",
	CmdDeleteFile:        "delete_file",
	CmdGetFileAttributes: "get_file_attributes",
	CmdSetFileAttributes: "set_file_attributes",
	CmdGetFileDateTime:   "get_file_date_time",
	CmdInitializeVolume:  "initialize_volume",
}

func (c Command) String() string {
	if n, ok := commandNames[c]; ok {
		return n
	}
	return fmt.Sprintf("cmd(0x%02x)", uint8(c))
}

// OpenFlags are the flags of an Open File request.
type OpenFlags uint8

// Open flags. The lowest two bits hold an Access value.
const (
	OpenCreate    OpenFlags = 1 << 2
	OpenAppend    OpenFlags = 1 << 3
	OpenExclusive OpenFlags = 1 << 4
	OpenHidden    OpenFlags = 1 << 5
)

// Access returns the access mode encoded in f.
func (f OpenFlags) Access() Access { return Access(f & 0x03) }

// Access is how a file is opened.
type Access uint8

const (
	AccessReadOnly  Access = 0
	AccessWriteOnly Access = 1
	AccessReadWrite Access = 2
	AccessDirectory Access = 3
)

func (a Access) String() string {
	switch a {
	case AccessReadOnly:
		return "ro"
	case AccessWriteOnly:
		return "wo"
	case AccessReadWrite:
		return "rw"
	case AccessDirectory:
		return "dir"
	}
	return fmt.Sprintf("access(%d)", uint8(a))
}

// SeekMode is the origin of a Seek File request.
type SeekMode uint8

const (
	SeekSet SeekMode = 0
	SeekCur SeekMode = 1
	SeekEnd SeekMode = 2
)

// Attributes of a file or directory.
type Attributes uint8

const (
	AttrReadOnly      Attributes = 1 << 0
	AttrHidden        Attributes = 1 << 1
	AttrHiddenSupport Attributes = 1 << 2
	AttrVolume        Attributes = 1 << 3
	AttrDirectory     Attributes = 1 << 4
	AttrLongFilename  Attributes = 1 << 5
	AttrNonRemovable  Attributes = 1 << 6
	AttrCaseSensitive Attributes = 1 << 7
)

// File server status bits.
const (
	StatusBusyReading uint8 = 1 << 0
	StatusBusyWriting uint8 = 1 << 1
)

// File server capabilities.
const (
	CapMultipleVolumes  uint8 = 1 << 0
	CapRemovableVolumes uint8 = 1 << 1
)

// Volume Status request mode bits.
const (
	VolumeModeInUse         uint8 = 1 << 0
	VolumeModePrepareRemove uint8 = 1 << 1
)

// Volume status values.
const (
	VolumePresent          uint8 = 0
	VolumeInUse            uint8 = 1
	VolumePreparingRemoval uint8 = 2
	VolumeRemoved          uint8 = 3
)
