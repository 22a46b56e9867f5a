//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub factory for platforms without a reactor implementation.

package reactor

import "github.com/momentics/wsloop/api"

// New reports that no reactor exists for this platform.
func New() (Reactor, error) {
	return nil, api.ErrNotSupported
}
