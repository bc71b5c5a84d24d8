package isobusfs

import (
	"errors"
	"io/fs"
	"strconv"
	"syscall"
)

// Error is an ISOBUS-FS error code as carried in the error byte of a
// response. The zero value means success.
type Error uint8

const (
	ErrorSuccess           = Error(0)
	ErrorAccessDenied      = Error(1)  // EACCES
	ErrorInvalidAccess     = Error(2)  // ENOTDIR
	ErrorTooManyFilesOpen  = Error(3)  // EMFILE
	ErrorNotFound          = Error(4)  // ENOENT
	ErrorInvalidHandle     = Error(5)  // EBADF
	ErrorInvalidSourceName = Error(6)  // ENAMETOOLONG
	ErrorInvalidDestName   = Error(7)  // EINVAL
	ErrorNoSpace           = Error(8)  // ENOSPC
	ErrorOnWrite           = Error(9)  // EIO
	ErrorMediaNotPresent   = Error(10) // ENODEV
	ErrorOnRead            = Error(11) // EFAULT
	ErrorNotSupported      = Error(12) // ENOSYS
	ErrorVolumeNotInit     = Error(13) // EROFS
	ErrorInvalidLength     = Error(42) // EMSGSIZE
	ErrorOutOfMemory       = Error(43) // ENOMEM
	ErrorOther             = Error(44) // EPERM
	ErrorEndOfFile         = Error(45) // ESPIPE
	ErrorTANMismatch       = Error(46) // EPROTO
	ErrorMalformedRequest  = Error(47) // EILSEQ
)

var errorDescriptions = map[Error]string{
	ErrorSuccess:           "success",
	ErrorAccessDenied:      "access denied",
	ErrorInvalidAccess:     "invalid access",
	ErrorTooManyFilesOpen:  "too many files open",
	ErrorNotFound:          "file or path not found",
	ErrorInvalidHandle:     "invalid handle",
	ErrorInvalidSourceName: "invalid given source name",
	ErrorInvalidDestName:   "invalid given destination name",
	ErrorNoSpace:           "volume out of free space",
	ErrorOnWrite:           "failure during a write operation",
	ErrorMediaNotPresent:   "media is not present",
	ErrorOnRead:            "failure during a read operation",
	ErrorNotSupported:      "function not supported",
	ErrorVolumeNotInit:     "volume is possibly not initialized",
	ErrorInvalidLength:     "invalid request length",
	ErrorOutOfMemory:       "out of memory",
	ErrorOther:             "any other error",
	ErrorEndOfFile:         "end of file reached",
	ErrorTANMismatch:       "TAN error",
	ErrorMalformedRequest:  "malformed request",
}

// Error prints the description of the error.
func (e Error) Error() string {
	desc := errorDescriptions[e]
	if desc != "" {
		return desc
	}
	return "ISOBUS-FS error " + strconv.Itoa(int(e))
}

var errnoCodes = map[syscall.Errno]Error{
	syscall.EACCES:       ErrorAccessDenied,
	syscall.ENOTDIR:      ErrorInvalidAccess,
	syscall.EMFILE:       ErrorTooManyFilesOpen,
	syscall.ENFILE:       ErrorTooManyFilesOpen,
	syscall.ENOENT:       ErrorNotFound,
	syscall.EBADF:        ErrorInvalidHandle,
	syscall.ENAMETOOLONG: ErrorInvalidSourceName,
	syscall.EINVAL:       ErrorInvalidDestName,
	syscall.ENOSPC:       ErrorNoSpace,
	syscall.EIO:          ErrorOnWrite,
	syscall.ENODEV:       ErrorMediaNotPresent,
	syscall.EFAULT:       ErrorOnRead,
	syscall.ENOSYS:       ErrorNotSupported,
	syscall.EROFS:        ErrorVolumeNotInit,
	syscall.EMSGSIZE:     ErrorInvalidLength,
	syscall.ENOMEM:       ErrorOutOfMemory,
	syscall.EPERM:        ErrorOther,
	syscall.ESPIPE:       ErrorEndOfFile,
	syscall.EPROTO:       ErrorTANMismatch,
	syscall.EILSEQ:       ErrorMalformedRequest,
}

// ErrorFor converts err into the protocol error code that best describes it.
// nil maps to ErrorSuccess and unknown errors map to ErrorOther.
func ErrorFor(err error) Error {
	if err == nil {
		return ErrorSuccess
	}

	var e Error
	if errors.As(err, &e) {
		return e
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		if code, ok := errnoCodes[errno]; ok {
			return code
		}
		return ErrorOther
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrorNotFound
	case errors.Is(err, fs.ErrPermission):
		return ErrorAccessDenied
	case errors.Is(err, fs.ErrInvalid):
		return ErrorInvalidDestName
	}
	return ErrorOther
}
