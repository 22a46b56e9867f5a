// File: protocol/frame.go
// Package protocol implements the RFC 6455 frame object and its
// payload operations.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"github.com/momentics/wsloop/bytestream"
	"github.com/momentics/wsloop/endian"
	"github.com/momentics/wsloop/flate"
)

// Frame is one WebSocket frame: header bits plus payload stream.
type Frame struct {
	Fin    bool
	Rsv1   bool
	Rsv2   bool
	Rsv3   bool
	Opcode Opcode

	Masked  bool
	MaskKey uint32

	payload *bytestream.Stream
}

// NewFrame returns a final frame of the given opcode with an empty
// payload.
func NewFrame(opcode Opcode) *Frame {
	return &Frame{
		Fin:     true,
		Opcode:  opcode,
		payload: bytestream.New(),
	}
}

// Push appends data to the payload. It reports whether the data was
// accepted.
func (f *Frame) Push(data []byte) bool {
	return f.payload.PushBackN(data) == nil
}

// Flush clears the payload.
func (f *Frame) Flush() {
	f.payload.Flush()
}

// Payload returns the current payload bytes. The view is invalidated by
// any mutating call.
func (f *Frame) Payload() []byte {
	return f.payload.Bytes()
}

// PayloadLen returns the payload size in bytes.
func (f *Frame) PayloadLen() int {
	return f.payload.Len()
}

// PayloadStream exposes the payload's backing stream.
func (f *Frame) PayloadStream() *bytestream.Stream {
	return f.payload
}

// PayloadUTF8 reports whether the payload is valid UTF-8.
func (f *Frame) PayloadUTF8() bool {
	return f.payload.IsUTF8()
}

// keyBytes serializes a mask key in the order it travels on the wire.
func keyBytes(key uint32) [4]byte {
	var kb [4]byte
	endian.PutNetwork32(kb[:], key)
	return kb
}

// MaskPayload XORs p in place with key broadcast as four repeating
// bytes indexed by position mod 4. Applying it twice restores p.
func MaskPayload(p []byte, key uint32) {
	kb := keyBytes(key)
	for i := range p {
		p[i] ^= kb[i%4]
	}
}

// Mask records key on the frame and XORs the current payload with it.
func (f *Frame) Mask(key uint32) {
	f.Masked = true
	f.MaskKey = key
	MaskPayload(f.payload.Bytes(), key)
}

// Unmask reverses Mask, leaving the payload in the clear.
func (f *Frame) Unmask() {
	if !f.Masked {
		return
	}
	MaskPayload(f.payload.Bytes(), f.MaskKey)
	f.Masked = false
}

// Deflate compresses the payload in place with the negotiated window,
// strips the trailing 0x00 0x00 0xFF 0xFF sync marker per RFC 7692,
// and sets RSV1. Only the first frame of a message carries RSV1; the
// caller clears it on continuations.
func (f *Frame) Deflate(windowBits uint8) error {
	compressed := bytestream.New()
	if err := flate.Deflate(f.payload.Bytes(), compressed, windowBits); err != nil {
		return err
	}
	if err := compressed.PopBack(4); err != nil {
		return err
	}
	f.payload = compressed
	f.Rsv1 = true
	return nil
}
