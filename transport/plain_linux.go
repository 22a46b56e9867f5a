//go:build linux
// +build linux

// File: transport/plain_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Plain stream over a non-blocking descriptor.

package transport

import (
	"io"

	"golang.org/x/sys/unix"
)

// plainStream reads and writes a raw fd directly.
type plainStream struct {
	fd int
}

// NewPlain wraps an already-connected non-blocking descriptor.
func NewPlain(fd int) Stream {
	return &plainStream{fd: fd}
}

// Handshake is a no-op for plain TCP.
func (s *plainStream) Handshake() error {
	return nil
}

// Read pulls whatever the kernel buffer holds. A drained buffer maps
// to ErrWouldBlock, an orderly shutdown to io.EOF.
func (s *plainStream) Read(p []byte) (int, error) {
	n, err := unix.Read(s.fd, p)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, ErrWouldBlock
		}
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Write pushes as much as the kernel accepts. A full buffer maps to
// ErrWouldBlock with the partial count.
func (s *plainStream) Write(p []byte) (int, error) {
	n, err := unix.Write(s.fd, p)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, ErrWouldBlock
		}
		return 0, err
	}
	if n < len(p) {
		return n, ErrWouldBlock
	}
	return n, nil
}

// Close closes the descriptor.
func (s *plainStream) Close() error {
	return unix.Close(s.fd)
}
