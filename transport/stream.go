// File: transport/stream.go
// Package transport provides the byte-oriented duplex streams the
// dispatcher reads and writes: plain non-blocking TCP and TLS on top of
// it, plus the socket helpers for bind, connect and accept.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import "errors"

// ErrWouldBlock signals that the operation made no progress and should
// be retried after the next readiness report.
var ErrWouldBlock = errors.New("operation would block")

// Stream is a duplex byte stream over a non-blocking descriptor.
// Read returns io.EOF when the peer closed the stream.
type Stream interface {
	// Handshake drives any transport-level negotiation. It returns
	// ErrWouldBlock while the negotiation is still in flight and nil
	// once the stream is ready for Read and Write.
	Handshake() error

	Read(p []byte) (int, error)
	Write(p []byte) (int, error)

	Close() error
}

// TLSConfig carries the material wired in from the endpoint settings.
// Certificate and key fields are file paths; empty fields are skipped.
type TLSConfig struct {
	Seed       string
	CACert     string
	OwnCert    string
	PrivateKey string

	// ServerName is verified against the peer certificate on the
	// client side.
	ServerName string

	// Server selects the accept-side handshake.
	Server bool
}
