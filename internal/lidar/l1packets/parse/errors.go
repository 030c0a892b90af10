package parse

import (
	"errors"
	"fmt"
)

// ErrMalformedPacket matches every *MalformedPacketError via errors.Is.
var ErrMalformedPacket = errors.New("malformed packet")

// MalformedPacketError reports a buffer whose length is not the fixed packet size.
type MalformedPacketError struct {
	Format   string // "ouster" or "velodyne"
	Expected int
	Actual   int
}

func (e *MalformedPacketError) Error() string {
	return fmt.Sprintf("malformed %s packet: expected %d bytes, got %d", e.Format, e.Expected, e.Actual)
}

func (e *MalformedPacketError) Is(target error) bool {
	return target == ErrMalformedPacket
}

func checkLength(format string, b []byte, want int) error {
	if len(b) != want {
		tracef("dropping %s packet: %d bytes, want %d", format, len(b), want)
		return &MalformedPacketError{Format: format, Expected: want, Actual: len(b)}
	}
	return nil
}
