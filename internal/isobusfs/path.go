package isobusfs

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
)

// Path errors. They wrap the errno that ErrorFor maps to the matching
// protocol error code.
var (
	ErrInvalidPath  = fmt.Errorf("invalid ISOBUS path: %w", syscall.EINVAL)
	ErrPathTooLong  = fmt.Errorf("ISOBUS path too long: %w", syscall.ENOMEM)
	errNoVolumePart = errors.New("path does not start with a volume")
)

// Separator is the ISOBUS path separator.
const Separator = '\\'

// ManufacturerDir is the wire name of the manufacturer specific directory.
const ManufacturerDir = "~"

// ForbiddenChar reports whether c may not appear in an ISOBUS path.
func ForbiddenChar(c byte) bool {
	switch {
	case c <= 0x1F, c >= 0x7F && c <= 0x9F:
		return true
	}
	return strings.IndexByte("*?/<>|", c) >= 0
}

// NormalizePath resolves p against the current directory cwd and returns
// the canonical absolute form `\\<volume>\seg\...\`. The result always ends
// with a separator and never ascends above the volume root.
func NormalizePath(cwd, p string) (string, error) {
	for i := 0; i < len(p); i++ {
		if ForbiddenChar(p[i]) {
			return "", ErrInvalidPath
		}
	}
	if len(p) > MaxDataLength {
		return "", ErrPathTooLong
	}

	var (
		volume string
		segs   []string
		rest   string
	)

	switch {
	case strings.HasPrefix(p, `~\`):
		vol, _, err := SplitVolume(cwd)
		if err != nil {
			return "", ErrInvalidPath
		}
		volume, rest = vol, p

	case strings.HasPrefix(p, `\\`):
		if len(p) > 2 && p[2] == Separator {
			return "", ErrInvalidPath
		}
		vol, tail, err := SplitVolume(p)
		if err != nil || vol == "." || vol == ".." {
			return "", ErrInvalidPath
		}
		volume, rest = vol, tail

	default:
		vol, tail, err := SplitVolume(cwd)
		if err != nil {
			return "", ErrInvalidPath
		}
		volume = vol
		segs = splitSegments(tail)
		rest = strings.TrimPrefix(p, `\`)
	}

	for _, seg := range splitSegments(rest) {
		switch seg {
		case ".":
		case "..":
			if len(segs) > 0 {
				segs = segs[:len(segs)-1]
			}
		default:
			segs = append(segs, seg)
		}
	}

	var sb strings.Builder
	sb.WriteString(`\\`)
	sb.WriteString(volume)
	sb.WriteByte(Separator)
	for _, seg := range segs {
		sb.WriteString(seg)
		sb.WriteByte(Separator)
	}
	if sb.Len() > MaxDataLength {
		return "", ErrPathTooLong
	}
	return sb.String(), nil
}

// SplitVolume splits an absolute ISOBUS path into its volume name and the
// remainder following the volume.
func SplitVolume(p string) (volume, rest string, err error) {
	if !strings.HasPrefix(p, `\\`) {
		return "", "", errNoVolumePart
	}
	tail := p[2:]
	end := strings.IndexByte(tail, Separator)
	if end < 0 {
		end = len(tail)
	}
	if end == 0 {
		return "", "", errNoVolumePart
	}
	return tail[:end], tail[end:], nil
}

// PathSegments returns the non-empty segments of an absolute ISOBUS path
// that follow the volume name.
func PathSegments(p string) []string {
	_, rest, err := SplitVolume(p)
	if err != nil {
		return nil
	}
	return splitSegments(rest)
}

// splitSegments splits s on separators, dropping empty segments so that runs
// of separators collapse.
func splitSegments(s string) []string {
	var out []string
	for _, seg := range strings.Split(s, `\`) {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}
