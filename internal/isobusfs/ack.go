package isobusfs

import (
	"encoding/binary"
	"fmt"
)

// AckControl is the control byte of an acknowledgement message.
type AckControl uint8

const (
	AckPositive AckControl = 0
	AckNegative AckControl = 1
)

func (c AckControl) String() string {
	switch c {
	case AckPositive:
		return "ACK"
	case AckNegative:
		return "NACK"
	}
	return fmt.Sprintf("ack_control(%d)", uint8(c))
}

// Ack is a J1939 acknowledgement sent on PGNAck.
type Ack struct {
	Control AckControl
	// Command of the message being acknowledged.
	Command Command
	// Address and PGN of the peer whose message is acknowledged.
	Address uint8
	PGN     uint32
}

// Encode returns the 8-byte wire form of a.
func (a Ack) Encode() []byte {
	return []byte{
		uint8(a.Control),
		uint8(a.Command),
		Fill, Fill,
		a.Address,
		uint8(a.PGN),
		uint8(a.PGN >> 8),
		uint8(a.PGN >> 16),
	}
}

// DecodeAck parses an acknowledgement message.
func DecodeAck(b []byte) (Ack, error) {
	if len(b) < MinTransferLength {
		return Ack{}, ErrShortFrame
	}
	var pgn [4]byte
	copy(pgn[:3], b[5:8])
	return Ack{
		Control: AckControl(b[0]),
		Command: Command(b[1]),
		Address: b[4],
		PGN:     binary.LittleEndian.Uint32(pgn[:]),
	}, nil
}
