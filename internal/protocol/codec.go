package protocol

import (
	"encoding/hex"
	"fmt"
	"strings"
)

var (
	frameHeader  = [3]byte{0x00, 0x00, 0x00}
	frameTrailer = [3]byte{0xFF, 0xFF, 0xFF}
)

// Decode turns a raw frame into a Message.
// A frame is well-formed only when bytes 0-2 are 00 00 00 and bytes 5-7 are
// FF FF FF. Anything else decodes to the no-op message; Decode never fails.
func Decode(buf [FrameSize]byte) Message {
	if !Valid(buf) {
		return Message{}
	}
	return Message{Command: buf[3], Value: buf[4]}
}

// Valid reports whether buf carries the fixed header and trailer.
func Valid(buf [FrameSize]byte) bool {
	return [3]byte(buf[0:3]) == frameHeader && [3]byte(buf[5:8]) == frameTrailer
}

// Encode builds a well-formed frame for m.
func Encode(m Message) [FrameSize]byte {
	var buf [FrameSize]byte
	copy(buf[0:3], frameHeader[:])
	buf[3] = m.Command
	buf[4] = m.Value
	copy(buf[5:8], frameTrailer[:])
	return buf
}

// ParseHex parses a frame written as hex, with optional spaces or colons
// between bytes (e.g. "00 00 00 01 02 ff ff ff"). Used by the send client
// to put arbitrary, possibly malformed, frames on the wire.
func ParseHex(s string) ([]byte, error) {
	cleaned := strings.NewReplacer(" ", "", ":", "", "\t", "").Replace(s)
	raw, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("invalid hex frame: %w", err)
	}
	if len(raw) == 0 || len(raw) > FrameSize {
		return nil, fmt.Errorf("frame must be 1-%d bytes, got %d", FrameSize, len(raw))
	}
	return raw, nil
}
