package isobusfs

import (
	"encoding/binary"
	"fmt"
	"time"
)

// DirEntry is one record of a directory read.
type DirEntry struct {
	Name       string
	Attributes Attributes
	Modified   time.Time
	Size       uint32
}

// IsDir reports whether the entry describes a directory.
func (e DirEntry) IsDir() bool { return e.Attributes&AttrDirectory != 0 }

// DirEntrySize returns the encoded size of an entry with a name of n bytes.
func DirEntrySize(n int) int { return 1 + n + 1 + 2 + 2 + 4 }

// AppendDirEntry appends the wire form of e to buf.
func AppendDirEntry(buf []byte, e DirEntry) ([]byte, error) {
	if len(e.Name) > MaxDirEntryNameLength {
		return buf, fmt.Errorf("directory entry name %q too long", e.Name)
	}
	buf = append(buf, uint8(len(e.Name)))
	buf = append(buf, e.Name...)
	buf = append(buf, uint8(e.Attributes))
	buf = binary.LittleEndian.AppendUint16(buf, EncodeDate(e.Modified))
	buf = binary.LittleEndian.AppendUint16(buf, EncodeTime(e.Modified))
	buf = binary.LittleEndian.AppendUint32(buf, e.Size)
	return buf, nil
}

// ParseDirEntries decodes consecutive directory entries. A trailing entry
// that is cut short yields ErrIncomplete along with the entries parsed so
// far.
func ParseDirEntries(b []byte) ([]DirEntry, error) {
	var entries []DirEntry
	for off := 0; off < len(b); {
		n := int(b[off])
		if off+DirEntrySize(n) > len(b) {
			return entries, ErrIncomplete
		}
		ar := argReader{data: b, off: off + 1}
		e := DirEntry{Name: ar.String(n), Attributes: Attributes(ar.U8())}
		date, tm := ar.U16(), ar.U16()
		e.Modified = DecodeDateTime(date, tm)
		e.Size = ar.U32()
		entries = append(entries, e)
		off = ar.off
	}
	return entries, nil
}

// EncodeDate packs the date of t (local time) as
// (year-1980)<<9 | month<<5 | day. Years outside 1980..2107 encode as 0.
func EncodeDate(t time.Time) uint16 {
	if t.IsZero() {
		return 0
	}
	t = t.Local()
	year := t.Year() - 1980
	if year < 0 || year > 127 {
		return 0
	}
	return uint16(year)<<9 | uint16(t.Month())<<5 | uint16(t.Day())
}

// EncodeTime packs the time of day of t (local time) as
// hour<<11 | minute<<5 | second/2.
func EncodeTime(t time.Time) uint16 {
	if t.IsZero() {
		return 0
	}
	t = t.Local()
	return uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
}

// DecodeDateTime is the inverse of EncodeDate and EncodeTime. A zero date
// returns the zero time.
func DecodeDateTime(date, tm uint16) time.Time {
	if date == 0 {
		return time.Time{}
	}
	return time.Date(
		1980+int(date>>9), time.Month(date>>5&0x0F), int(date&0x1F),
		int(tm>>11), int(tm>>5&0x3F), int(tm&0x1F)*2,
		0, time.Local,
	)
}
