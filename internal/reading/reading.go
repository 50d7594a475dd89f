// Package reading decodes heart-rate characteristic payloads and applies the
// processing and anomaly rules to the decoded values.
package reading

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MaxWidth is the widest payload (in bytes) that decodes into a Reading
const MaxWidth = 8

// Reading is an unsigned heart-rate value decoded from a sensor payload.
// No unit or timestamp is attached.
type Reading uint64

// Decoding errors
var (
	ErrEmptyPayload  = errors.New("empty payload")
	ErrPayloadWidth  = errors.New("payload width out of range")
	ErrShortPayload  = errors.New("payload shorter than characteristic width")
	ErrNoContact     = errors.New("no sensor contact")
	ErrUnknownFormat = errors.New("unknown decoder")
)

// Decode interprets data as an unsigned little-endian integer.
// width is the characteristic's value width in bytes; 0 uses the full payload length.
// Bytes beyond width are ignored.
func Decode(data []byte, width int) (Reading, error) {
	if len(data) == 0 {
		return 0, ErrEmptyPayload
	}
	if width == 0 {
		width = len(data)
	}
	if width < 0 || width > MaxWidth {
		return 0, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadWidth, width, MaxWidth)
	}
	if len(data) < width {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrShortPayload, len(data), width)
	}

	var buf [MaxWidth]byte
	copy(buf[:], data[:width])
	return Reading(binary.LittleEndian.Uint64(buf[:])), nil
}

// Encode returns the little-endian representation of v in width bytes.
// Higher-order bytes that do not fit are truncated.
func Encode(v Reading, width int) []byte {
	if width <= 0 || width > MaxWidth {
		width = MaxWidth
	}
	var buf [MaxWidth]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	out := make([]byte, width)
	copy(out, buf[:width])
	return out
}

// Fits reports whether v is representable in width bytes
func Fits(v Reading, width int) bool {
	if width <= 0 || width >= MaxWidth {
		return true
	}
	return uint64(v) < uint64(1)<<(8*uint(width))
}
