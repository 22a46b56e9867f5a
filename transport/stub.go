//go:build !linux
// +build !linux

// File: transport/stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub factories for platforms without a transport implementation.

package transport

import "github.com/momentics/wsloop/api"

func Listen(ip string, port int) (int, error)   { return -1, api.ErrNotSupported }
func ListenPort(fd int) (int, error)            { return 0, api.ErrNotSupported }
func Connect(host string, port int) (int, error) { return -1, api.ErrNotSupported }
func ConnectError(fd int) error                 { return api.ErrNotSupported }
func Accept(lfd int) (int, string, error)       { return -1, "", api.ErrNotSupported }
func CloseFD(fd int) error                      { return api.ErrNotSupported }
func SetNoDelay(fd int) error                   { return api.ErrNotSupported }

func NewPlain(fd int) Stream { return nil }

func NewTLS(fd int, cfg TLSConfig) (Stream, error) { return nil, api.ErrNotSupported }
