// File: api/settings.go
// Package api defines the endpoint configuration record.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "time"

// EndpointType names a connection role. The engine assigns each
// connection its role from how it was created: sockets accepted on a
// Bind listener are servers, sockets dialed by Open are clients. The
// Settings.Endpoint field is stored but not read by the engine.
type EndpointType uint8

const (
	EndpointServer EndpointType = iota
	EndpointClient
)

// Mode selects the transport security of an endpoint.
type Mode uint8

const (
	ModePlain Mode = iota
	ModeTLS
)

// Extensions holds the negotiable WebSocket extension parameters.
type Extensions struct {
	PermessageDeflate struct {
		// Enabled turns on RFC 7692 permessage-deflate negotiation.
		Enabled bool
		// WindowBits is the LZ77 sliding window exponent, 9..15.
		WindowBits uint8
	}
}

// Settings configures an Endpoint. Zero read and ping timeouts mean
// "no limit"; a zero PollTimeout means a one-second wait.
type Settings struct {
	Endpoint EndpointType
	Mode     Mode

	// ReadTimeout bounds how long a connection may stay silent before
	// reaching OPEN (connecting or waiting on the handshake); such a
	// connection is dropped. It does not apply once the connection is
	// OPEN.
	ReadTimeout time.Duration
	// PollTimeout bounds one readiness wait inside Operate. Zero or
	// negative values use a one-second wait.
	PollTimeout time.Duration

	// TLS material, consumed only when Mode is ModeTLS.
	SSLSeed       string
	SSLCACert     string
	SSLOwnCert    string
	SSLPrivateKey string

	// FDLimit caps concurrent connections; 0 means unlimited.
	FDLimit int

	// Host is the Host header for outbound handshakes and the
	// authoritative value checked on inbound ones. When empty, outbound
	// handshakes send the host passed to Open, and inbound handshakes
	// accept any non-empty Host header.
	Host string
	// AllowedOrigin, when non-empty, restricts inbound handshakes.
	AllowedOrigin string

	// PingInterval is the silence span after which a ping is sent.
	PingInterval time.Duration
	// PingTimeout is the span after an unanswered ping before the
	// peer is declared dead.
	PingTimeout time.Duration

	// MessageLimit caps the reassembled message size in bytes.
	MessageLimit int

	// AutoMaskFrame generates a random mask key for client frames
	// that were emitted without one.
	AutoMaskFrame bool

	Extensions Extensions
}

// DefaultSettings returns the settings an endpoint starts from.
func DefaultSettings() Settings {
	s := Settings{
		Endpoint:      EndpointServer,
		Mode:          ModePlain,
		PingInterval:  60 * time.Second,
		PingTimeout:   30 * time.Second,
		MessageLimit:  4 * 1024 * 1024,
		AutoMaskFrame: true,
	}
	s.Extensions.PermessageDeflate.WindowBits = 15
	return s
}
