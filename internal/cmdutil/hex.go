package cmdutil

import (
	"fmt"
	"strconv"
	"strings"
)

// HexUint64 is a pflag.Value for numbers given in hexadecimal, with or
// without a 0x prefix. Set records that the flag was given.
type HexUint64 struct {
	Value uint64
	IsSet bool
	bits  int
}

// NewHexUint8 returns a HexUint64 restricted to values that fit in a byte.
func NewHexUint8(def uint8) *HexUint64 { return &HexUint64{Value: uint64(def), bits: 8} }

// NewHexUint64 returns a HexUint64 holding def.
func NewHexUint64(def uint64) *HexUint64 { return &HexUint64{Value: def, bits: 64} }

func (h *HexUint64) String() string {
	if h.bits == 8 {
		return fmt.Sprintf("0x%02x", h.Value)
	}
	return fmt.Sprintf("0x%x", h.Value)
}

func (h *HexUint64) Type() string { return "hex" }

func (h *HexUint64) Set(in string) error {
	bits := h.bits
	if bits == 0 {
		bits = 64
	}
	s := strings.TrimPrefix(strings.TrimPrefix(in, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, bits)
	if err != nil {
		return fmt.Errorf("invalid %d-bit hex value %q", bits, in)
	}
	h.Value, h.IsSet = v, true
	return nil
}
