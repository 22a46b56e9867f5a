// File: api/errors.go
// Package api declares the common error kinds for the wsloop library.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "fmt"

// Common errors used across the library. These are kinds, not types:
// callers match them with errors.Is.
var (
	// ErrBusy signals a transient condition; the caller may retry.
	ErrBusy = fmt.Errorf("resource busy")

	// ErrIncomplete means more bytes are required before the operation
	// can make progress. It is not a failure.
	ErrIncomplete = fmt.Errorf("incomplete input")

	// ErrInvalidData marks a protocol violation by the peer.
	ErrInvalidData = fmt.Errorf("invalid data")

	// ErrOutOfBound reports an access outside the valid range.
	ErrOutOfBound = fmt.Errorf("out of bound")

	// ErrOutOfMemory reports a failed buffer growth.
	ErrOutOfMemory = fmt.Errorf("out of memory")

	// ErrClosed is returned by operations on a closed endpoint or stream.
	ErrClosed = fmt.Errorf("endpoint is closed")

	// ErrNotFound reports an unknown file descriptor or event name.
	ErrNotFound = fmt.Errorf("resource not found")

	// ErrNotSupported is returned by platform stubs.
	ErrNotSupported = fmt.Errorf("operation not supported")
)
