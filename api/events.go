// File: api/events.go
// Package api declares the user-facing event callback shapes.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Event names accepted by the string-keyed registration shim.
const (
	EventOpen  = "open"
	EventClose = "close"
	EventFrame = "frame"
	EventError = "error"
)

// OpenHandler runs once the opening handshake has completed.
type OpenHandler func(fd int, peerAddr string)

// FrameHandler receives a fully reassembled (and, when negotiated,
// decompressed) text or binary message. Control frames are handled
// internally and never surface here.
type FrameHandler func(fd int, opcode byte, payload []byte)

// CloseHandler runs exactly once for every connection that opened,
// carrying the RFC 6455 closure status.
type CloseHandler func(fd int, status int)

// ErrorHandler receives a human-readable description, once per failure.
type ErrorHandler func(message string)
