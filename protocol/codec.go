// File: protocol/codec.go
// Package protocol implements the wire codec for single frames.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Decode is incremental: it never consumes bytes from the input stream
// until a whole frame is present, so a chunked feed converges on the
// same frames as a one-shot feed.

package protocol

import (
	"errors"

	"github.com/momentics/wsloop/bytestream"
	"github.com/momentics/wsloop/endian"
)

// Decode failure classes. The connection layer maps these to close
// codes (1002 and 1009 respectively).
var (
	ErrProtocol = errors.New("protocol violation")
	ErrTooBig   = errors.New("frame exceeds message limit")
)

// Decode parses one frame from the front of in, enforcing limit as the
// payload ceiling. Returns the frame and the count of consumed bytes.
// If the frame is incomplete, returns (nil, 0, nil); the caller retries
// once more bytes arrive. The payload arrives unmasked.
func Decode(in *bytestream.Stream, limit int) (*Frame, int, error) {
	raw := in.Bytes()
	if len(raw) < 2 {
		return nil, 0, nil // Incomplete
	}

	f := &Frame{
		Fin:    raw[0]&FinBit != 0,
		Rsv1:   raw[0]&Rsv1Bit != 0,
		Rsv2:   raw[0]&Rsv2Bit != 0,
		Rsv3:   raw[0]&Rsv3Bit != 0,
		Opcode: raw[0] & 0x0F,
	}
	f.Masked = raw[1]&MaskBit != 0
	length := uint64(raw[1] & 0x7F)
	offset := 2

	switch length {
	case 126:
		if len(raw) < offset+2 {
			return nil, 0, nil // Incomplete
		}
		length = uint64(endian.Network16(raw[offset:]))
		offset += 2
	case 127:
		if len(raw) < offset+8 {
			return nil, 0, nil // Incomplete
		}
		length = endian.Network64(raw[offset:])
		offset += 8
		if length&(1<<63) != 0 {
			return nil, 0, ErrProtocol
		}
	}

	if IsControl(f.Opcode) {
		if !f.Fin || length > MaxControlPayloadLen {
			return nil, 0, ErrProtocol
		}
	}
	// RSV2 and RSV3 have no negotiable meaning; RSV1 is judged by the
	// message assembler, which knows whether compression was negotiated.
	if f.Rsv2 || f.Rsv3 {
		return nil, 0, ErrProtocol
	}
	if limit > 0 && length > uint64(limit) {
		return nil, 0, ErrTooBig
	}

	if f.Masked {
		if len(raw) < offset+4 {
			return nil, 0, nil // Incomplete
		}
		f.MaskKey = endian.Network32(raw[offset:])
		offset += 4
	}

	total := offset + int(length)
	if len(raw) < total {
		return nil, 0, nil // Incomplete
	}

	payload := make([]byte, length)
	copy(payload, raw[offset:total])
	if f.Masked {
		MaskPayload(payload, f.MaskKey)
	}
	f.payload = bytestream.FromBytes(payload)

	if err := in.Pop(total); err != nil {
		return nil, 0, err
	}
	return f, total, nil
}

// Encode serializes f onto the tail of out. When masked is set the
// payload travels XORed with key; the frame object itself is left
// untouched.
func Encode(f *Frame, out *bytestream.Stream, masked bool, key uint32) error {
	var b0 byte
	if f.Fin {
		b0 |= FinBit
	}
	if f.Rsv1 {
		b0 |= Rsv1Bit
	}
	if f.Rsv2 {
		b0 |= Rsv2Bit
	}
	if f.Rsv3 {
		b0 |= Rsv3Bit
	}
	b0 |= f.Opcode & 0x0F

	plen := f.payload.Len()
	var hdr [MaxFrameHeaderLen]byte
	hdr[0] = b0
	n := 2

	switch {
	case plen <= 125:
		hdr[1] = byte(plen)
	case plen <= 0xFFFF:
		hdr[1] = 126
		endian.PutNetwork16(hdr[2:], uint16(plen))
		n += 2
	default:
		hdr[1] = 127
		endian.PutNetwork64(hdr[2:], uint64(plen))
		n += 8
	}

	if masked {
		hdr[1] |= MaskBit
		endian.PutNetwork32(hdr[n:], key)
		n += 4
	}

	if err := out.PushBackN(hdr[:n]); err != nil {
		return err
	}
	if !masked {
		return out.PushBackN(f.payload.Bytes())
	}
	body := make([]byte, plen)
	copy(body, f.payload.Bytes())
	MaskPayload(body, key)
	return out.PushBackN(body)
}
