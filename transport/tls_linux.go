//go:build linux
// +build linux

// File: transport/tls_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// TLS stream over a non-blocking descriptor. crypto/tls drives the
// record layer; the descriptor below it stays non-blocking, and EAGAIN
// from it surfaces as ErrWouldBlock. syscall errors satisfy net.Error
// with Temporary() true, so the record layer keeps its state across
// retries.

package transport

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// fdConn adapts a raw non-blocking descriptor to net.Conn for
// crypto/tls. Deadlines are unsupported; pacing comes from the
// readiness loop above.
type fdConn struct {
	fd int
}

func (c *fdConn) Read(p []byte) (int, error) {
	n, err := unix.Read(c.fd, p)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (c *fdConn) Write(p []byte) (int, error) {
	return unix.Write(c.fd, p)
}

func (c *fdConn) Close() error                       { return unix.Close(c.fd) }
func (c *fdConn) LocalAddr() net.Addr                { return &net.TCPAddr{} }
func (c *fdConn) RemoteAddr() net.Addr               { return &net.TCPAddr{} }
func (c *fdConn) SetDeadline(t time.Time) error      { return nil }
func (c *fdConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *fdConn) SetWriteDeadline(t time.Time) error { return nil }

// tlsStream is a Stream running the TLS record layer over a raw fd.
type tlsStream struct {
	conn *tls.Conn
}

// NewTLS builds a TLS stream over fd from the endpoint's TLS material.
// The seed field has no consumer here: the runtime CSPRNG self-seeds.
func NewTLS(fd int, cfg TLSConfig) (Stream, error) {
	tc := &tls.Config{ServerName: cfg.ServerName}

	if cfg.CACert != "" {
		pem, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("tls ca cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("tls ca cert: no usable certificates")
		}
		if cfg.Server {
			tc.ClientCAs = pool
		} else {
			tc.RootCAs = pool
		}
	}
	if cfg.OwnCert != "" {
		cert, err := tls.LoadX509KeyPair(cfg.OwnCert, cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("tls key pair: %w", err)
		}
		tc.Certificates = []tls.Certificate{cert}
	}

	raw := &fdConn{fd: fd}
	var conn *tls.Conn
	if cfg.Server {
		conn = tls.Server(raw, tc)
	} else {
		conn = tls.Client(raw, tc)
	}
	return &tlsStream{conn: conn}, nil
}

func mapTLSErr(err error) error {
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
		return ErrWouldBlock
	}
	return err
}

// Handshake advances the TLS negotiation one step per readiness event.
func (s *tlsStream) Handshake() error {
	if err := s.conn.Handshake(); err != nil {
		return mapTLSErr(err)
	}
	return nil
}

func (s *tlsStream) Read(p []byte) (int, error) {
	n, err := s.conn.Read(p)
	if err != nil {
		return n, mapTLSErr(err)
	}
	return n, nil
}

func (s *tlsStream) Write(p []byte) (int, error) {
	n, err := s.conn.Write(p)
	if err != nil {
		return n, mapTLSErr(err)
	}
	return n, nil
}

// Close sends close_notify on a best-effort basis and closes the fd.
func (s *tlsStream) Close() error {
	return s.conn.Close()
}
