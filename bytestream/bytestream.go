// File: bytestream/bytestream.go
// Package bytestream implements the growable FIFO byte buffer that backs
// every connection's inbound and outbound queue and every frame payload.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A Stream supports prefix and suffix push, destructive pull from either
// end, interior erase, forward and backward search, and UTF-8 validation.
// The methods here assume caller-side serialization; embedders that touch
// a stream from a foreign goroutine wrap it in a Locked.

package bytestream

import (
	"bytes"

	"github.com/momentics/wsloop/api"
)

// NPOS is the sentinel returned by the search methods when no match
// exists, and accepted as the "until the end" bound.
const NPOS = int(^uint(0) >> 1)

// Stream is an ordered byte sequence with O(1) amortized append at the
// tail and indexed random access. The zero value is an empty stream.
type Stream struct {
	buf []byte
}

// New returns an empty stream.
func New() *Stream {
	return &Stream{}
}

// FromBytes returns a stream holding a copy of p.
func FromBytes(p []byte) *Stream {
	s := &Stream{buf: make([]byte, len(p))}
	copy(s.buf, p)
	return s
}

// Len reports the logical length of the stream.
func (s *Stream) Len() int {
	return len(s.buf)
}

// Available reports whether the stream holds any bytes.
func (s *Stream) Available() bool {
	return len(s.buf) > 0
}

// Bytes returns the backing slice. The view is invalidated by any
// mutating call.
func (s *Stream) Bytes() []byte {
	return s.buf
}

// Pointer returns a view of the stream starting at offset, or nil when
// offset is out of range.
func (s *Stream) Pointer(offset int) []byte {
	if offset < 0 || offset > len(s.buf) {
		return nil
	}
	return s.buf[offset:]
}

// Flush discards the whole content.
func (s *Stream) Flush() {
	s.buf = s.buf[:0]
}

// Push inserts value at the front.
func (s *Stream) Push(value byte) error {
	return s.PushN([]byte{value})
}

// PushN inserts src at the front, preserving its order.
func (s *Stream) PushN(src []byte) error {
	if len(src) == 0 {
		return nil
	}
	grown := make([]byte, 0, len(src)+len(s.buf))
	grown = append(grown, src...)
	grown = append(grown, s.buf...)
	s.buf = grown
	return nil
}

// PushBack appends value at the tail.
func (s *Stream) PushBack(value byte) error {
	s.buf = append(s.buf, value)
	return nil
}

// PushBackN appends src at the tail.
func (s *Stream) PushBackN(src []byte) error {
	s.buf = append(s.buf, src...)
	return nil
}

// Write appends p at the tail, satisfying io.Writer so codecs can
// stream into the buffer.
func (s *Stream) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	return len(p), nil
}

// Pull copies up to len(dst) bytes starting at offset from the front,
// removes them from the stream, and returns the count copied.
func (s *Stream) Pull(dst []byte, offset int) (int, error) {
	if offset < 0 || offset > len(s.buf) {
		return 0, api.ErrOutOfBound
	}
	n := copy(dst, s.buf[offset:])
	s.buf = append(s.buf[:offset], s.buf[offset+n:]...)
	return n, nil
}

// PullBack copies up to len(dst) bytes ending offset bytes before the
// tail, removes them, and returns the count copied. Byte order within
// dst matches the stream order.
func (s *Stream) PullBack(dst []byte, offset int) (int, error) {
	if offset < 0 || offset > len(s.buf) {
		return 0, api.ErrOutOfBound
	}
	end := len(s.buf) - offset
	start := end - len(dst)
	if start < 0 {
		start = 0
	}
	n := copy(dst, s.buf[start:end])
	s.buf = append(s.buf[:start], s.buf[end:]...)
	return n, nil
}

// Copy is the non-destructive form of Pull.
func (s *Stream) Copy(dst []byte, offset int) (int, error) {
	if offset < 0 || offset > len(s.buf) {
		return 0, api.ErrOutOfBound
	}
	return copy(dst, s.buf[offset:]), nil
}

// Pop discards up to n bytes from the front.
func (s *Stream) Pop(n int) error {
	if n < 0 {
		return api.ErrOutOfBound
	}
	if n > len(s.buf) {
		n = len(s.buf)
	}
	s.buf = s.buf[n:]
	return nil
}

// PopBack discards up to n bytes from the tail.
func (s *Stream) PopBack(n int) error {
	if n < 0 {
		return api.ErrOutOfBound
	}
	if n > len(s.buf) {
		n = len(s.buf)
	}
	s.buf = s.buf[:len(s.buf)-n]
	return nil
}

// Erase removes the interior run [start, start+n).
func (s *Stream) Erase(start, n int) error {
	if start < 0 || n < 0 || start+n > len(s.buf) {
		return api.ErrOutOfBound
	}
	s.buf = append(s.buf[:start], s.buf[start+n:]...)
	return nil
}

// MoveTo transfers the run [offset, offset+n) to the tail of dst and
// removes it from the source. The transfer is all-or-nothing.
func (s *Stream) MoveTo(dst *Stream, n, offset int) error {
	if offset < 0 || n < 0 || offset+n > len(s.buf) {
		return api.ErrOutOfBound
	}
	if err := dst.PushBackN(s.buf[offset : offset+n]); err != nil {
		return err
	}
	return s.Erase(offset, n)
}

// clampEnd normalizes an end bound: NPOS and anything past the length
// mean "stream end".
func (s *Stream) clampEnd(end int) int {
	if end == NPOS || end > len(s.buf) {
		return len(s.buf)
	}
	return end
}

// Compare lexically orders the window [offset, end) against pattern,
// returning -1, 0 or 1 in the manner of bytes.Compare. The window is
// clipped to the pattern length.
func (s *Stream) Compare(pattern []byte, offset, end int) int {
	end = s.clampEnd(end)
	if offset < 0 || offset > end {
		return -1
	}
	window := s.buf[offset:end]
	if len(window) > len(pattern) {
		window = window[:len(pattern)]
	}
	return bytes.Compare(window, pattern)
}

// IndexOfByte returns the absolute position of the first occurrence of
// val within [offset, end), or NPOS.
func (s *Stream) IndexOfByte(val byte, offset, end int) int {
	end = s.clampEnd(end)
	if offset < 0 || offset > end {
		return NPOS
	}
	i := bytes.IndexByte(s.buf[offset:end], val)
	if i < 0 {
		return NPOS
	}
	return offset + i
}

// IndexOf returns the absolute position of the first occurrence of
// pattern within [offset, end), or NPOS.
func (s *Stream) IndexOf(pattern []byte, offset, end int) int {
	end = s.clampEnd(end)
	if offset < 0 || offset > end || len(pattern) == 0 {
		return NPOS
	}
	i := bytes.Index(s.buf[offset:end], pattern)
	if i < 0 {
		return NPOS
	}
	return offset + i
}

// IndexOfBackByte returns the absolute position of the last occurrence
// of val within [offset, end). offset is the inclusive lower bound and
// end the exclusive upper bound; offset > end yields NPOS.
func (s *Stream) IndexOfBackByte(val byte, offset, end int) int {
	end = s.clampEnd(end)
	if offset < 0 || offset > end {
		return NPOS
	}
	i := bytes.LastIndexByte(s.buf[offset:end], val)
	if i < 0 {
		return NPOS
	}
	return offset + i
}

// IndexOfBack returns the absolute position of the last occurrence of
// pattern within [offset, end), with the same bound semantics as
// IndexOfBackByte.
func (s *Stream) IndexOfBack(pattern []byte, offset, end int) int {
	end = s.clampEnd(end)
	if offset < 0 || offset > end || len(pattern) == 0 {
		return NPOS
	}
	i := bytes.LastIndex(s.buf[offset:end], pattern)
	if i < 0 {
		return NPOS
	}
	return offset + i
}
