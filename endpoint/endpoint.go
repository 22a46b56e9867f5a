// File: endpoint/endpoint.go
// Package endpoint implements the dispatcher: listening sockets, the
// connection table, the readiness pump and the user-facing operations.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package endpoint

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oxtoacart/bpool"

	"github.com/momentics/wsloop/api"
	"github.com/momentics/wsloop/protocol"
	"github.com/momentics/wsloop/reactor"
	"github.com/momentics/wsloop/transport"
)

const (
	// maxHandshakeBytes bounds the buffered upgrade request head.
	maxHandshakeBytes = 8192

	// defaultTickMs is the readiness wait used when no poll timeout is
	// configured, so heartbeat timers still fire.
	defaultTickMs = 1000

	maxEventsPerWait = 128

	readBufSize  = 64 * 1024
	readBufCount = 32
)

// heartbeatPayload travels inside keepalive pings.
var heartbeatPayload = []byte("ping")

// Endpoint owns the settings, the listening fds, the connection table
// and the four user callbacks. It must be pumped by exactly one thread.
type Endpoint struct {
	settings api.Settings

	rx        reactor.Reactor
	listeners map[int]struct{}
	conns     map[int]*connection

	onOpen  api.OpenHandler
	onFrame api.FrameHandler
	onClose api.CloseHandler
	onError api.ErrorHandler

	readPool *bpool.BytePool
	events   []reactor.Event

	// clock is a hook for heartbeat tests.
	clock func() time.Time

	closed bool
}

// New constructs an endpoint with default settings and a platform
// reactor.
func New() (*Endpoint, error) {
	rx, err := reactor.New()
	if err != nil {
		return nil, err
	}
	return &Endpoint{
		settings:  api.DefaultSettings(),
		rx:        rx,
		listeners: make(map[int]struct{}),
		conns:     make(map[int]*connection),
		readPool:  bpool.NewBytePool(readBufCount, readBufSize),
		events:    make([]reactor.Event, maxEventsPerWait),
		clock:     time.Now,
	}, nil
}

// Setup clones settings into the endpoint.
func (e *Endpoint) Setup(settings api.Settings) error {
	if e.closed {
		return api.ErrClosed
	}
	if settings.MessageLimit < 0 || settings.FDLimit < 0 {
		return fmt.Errorf("setup: %w", api.ErrOutOfBound)
	}
	e.settings = settings
	return nil
}

// OnOpen registers the open callback.
func (e *Endpoint) OnOpen(cb api.OpenHandler) { e.onOpen = cb }

// OnFrame registers the frame callback.
func (e *Endpoint) OnFrame(cb api.FrameHandler) { e.onFrame = cb }

// OnClose registers the close callback.
func (e *Endpoint) OnClose(cb api.CloseHandler) { e.onClose = cb }

// OnError registers the error callback.
func (e *Endpoint) OnError(cb api.ErrorHandler) { e.onError = cb }

// On is the string-keyed registration shim kept for embedders; the
// typed setters above are the primary surface. Unknown event names and
// mismatched callback shapes are rejected.
func (e *Endpoint) On(event string, cb any) error {
	switch event {
	case api.EventOpen:
		if fn, ok := cb.(api.OpenHandler); ok {
			e.onOpen = fn
			return nil
		}
		if fn, ok := cb.(func(int, string)); ok {
			e.onOpen = fn
			return nil
		}
	case api.EventFrame:
		if fn, ok := cb.(api.FrameHandler); ok {
			e.onFrame = fn
			return nil
		}
		if fn, ok := cb.(func(int, byte, []byte)); ok {
			e.onFrame = fn
			return nil
		}
	case api.EventClose:
		if fn, ok := cb.(api.CloseHandler); ok {
			e.onClose = fn
			return nil
		}
		if fn, ok := cb.(func(int, int)); ok {
			e.onClose = fn
			return nil
		}
	case api.EventError:
		if fn, ok := cb.(api.ErrorHandler); ok {
			e.onError = fn
			return nil
		}
		if fn, ok := cb.(func(string)); ok {
			e.onError = fn
			return nil
		}
	default:
		return fmt.Errorf("on %q: %w", event, api.ErrNotFound)
	}
	return fmt.Errorf("on %q: callback shape mismatch", event)
}

// reportError delivers a failure description to the error callback.
func (e *Endpoint) reportError(format string, args ...any) {
	if e.onError != nil {
		e.onError(fmt.Sprintf(format, args...))
	}
}

// fireClose delivers the paired close callback exactly once.
func (e *Endpoint) fireClose(c *connection, status int) {
	if c.closeFired {
		return
	}
	c.closeFired = true
	if e.onClose != nil {
		e.invoke(c, func() { e.onClose(c.fd, status) })
	}
}

// invoke runs a user callback, converting a panic escape into the
// error callback plus a 1011 closure.
func (e *Endpoint) invoke(c *connection, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.reportError("callback panic on fd %d: %v", c.fd, r)
			if c.st == stateOpen {
				c.queueClose(protocol.CloseInternalServerErr)
			}
		}
	}()
	fn()
}

// Bind creates a listening socket on ip:port and registers it for
// accept readiness.
func (e *Endpoint) Bind(ip string, port int) (int, error) {
	if e.closed {
		return -1, api.ErrClosed
	}
	fd, err := transport.Listen(ip, port)
	if err != nil {
		return -1, err
	}
	if err := e.rx.Add(fd, reactor.InterestRead); err != nil {
		transport.CloseFD(fd)
		return -1, err
	}
	e.listeners[fd] = struct{}{}
	return fd, nil
}

// Open resolves host and starts a non-blocking connect. The opening
// handshake is driven by Operate once the connect settles.
func (e *Endpoint) Open(host string, port int) (int, error) {
	if e.closed {
		return -1, api.ErrClosed
	}
	fd, err := transport.Connect(host, port)
	if err != nil {
		return -1, err
	}

	var stream transport.Stream
	if e.settings.Mode == api.ModeTLS {
		stream, err = transport.NewTLS(fd, transport.TLSConfig{
			Seed:       e.settings.SSLSeed,
			CACert:     e.settings.SSLCACert,
			OwnCert:    e.settings.SSLOwnCert,
			PrivateKey: e.settings.SSLPrivateKey,
			ServerName: host,
		})
		if err != nil {
			transport.CloseFD(fd)
			return -1, err
		}
	} else {
		stream = transport.NewPlain(fd)
	}

	c := newConnection(fd, api.EndpointClient, fmt.Sprintf("%s:%d", host, port), stream, e.clock())
	c.st = stateConnecting
	c.targetHost = host
	if err := e.rx.Add(fd, reactor.InterestRead|reactor.InterestWrite); err != nil {
		stream.Close()
		return -1, err
	}
	e.conns[fd] = c
	return fd, nil
}

// Emit serializes frame onto the connection's outbound queue. Client
// connections mask per the auto-mask setting; server connections never
// mask. The bytes leave the process when the fd polls writable.
func (e *Endpoint) Emit(fd int, frame *protocol.Frame) error {
	c, ok := e.conns[fd]
	if !ok {
		return api.ErrNotFound
	}
	if c.st != stateOpen {
		return api.ErrClosed
	}
	if protocol.IsControl(frame.Opcode) && frame.PayloadLen() > protocol.MaxControlPayloadLen {
		return api.ErrInvalidData
	}
	if frame.Rsv1 && !c.ext.PermessageDeflate.Enabled {
		e.reportError("fd %d: compressed frame without negotiated permessage-deflate", fd)
		return api.ErrInvalidData
	}

	masked := false
	var key uint32
	switch c.role {
	case api.EndpointClient:
		switch {
		case frame.Masked:
			// Mask already XORed the payload in place and Encode
			// applies the key again; queue a clear copy so the key
			// is applied once on the wire.
			plain := protocol.NewFrame(frame.Opcode)
			plain.Fin, plain.Rsv1, plain.Rsv2, plain.Rsv3 = frame.Fin, frame.Rsv1, frame.Rsv2, frame.Rsv3
			plain.Push(frame.Payload())
			protocol.MaskPayload(plain.Payload(), frame.MaskKey)
			masked, key = true, frame.MaskKey
			frame = plain
		case e.settings.AutoMaskFrame:
			k, err := randomKey()
			if err != nil {
				return err
			}
			masked, key = true, k
		default:
			// A client must not put an unmasked frame on the wire.
			e.reportError("fd %d: refusing unmasked client frame", fd)
			return api.ErrInvalidData
		}
	case api.EndpointServer:
		masked = false
	}

	c.queueFrame(frame, masked, key)
	return e.updateInterest(c)
}

// Close initiates the closing handshake on fd, or on every fd when fd
// is -1. Listening sockets close immediately.
func (e *Endpoint) Close(fd int) {
	if fd == -1 {
		for lfd := range e.listeners {
			e.rx.Remove(lfd)
			transport.CloseFD(lfd)
			delete(e.listeners, lfd)
		}
		for _, c := range e.conns {
			e.closeConnection(c)
		}
		return
	}
	if _, ok := e.listeners[fd]; ok {
		e.rx.Remove(fd)
		transport.CloseFD(fd)
		delete(e.listeners, fd)
		return
	}
	if c, ok := e.conns[fd]; ok {
		e.closeConnection(c)
	}
}

// closeConnection starts an orderly shutdown appropriate to the state.
func (e *Endpoint) closeConnection(c *connection) {
	switch c.st {
	case stateOpen:
		c.queueClose(protocol.CloseNormalClosure)
		e.updateInterest(c)
	case stateClosing, stateClosed:
		// already on its way out
	default:
		// handshake never completed
		e.destroy(c, protocol.CloseAbnormalClosure)
	}
}

// Shutdown closes everything and pumps until all fds have drained.
func (e *Endpoint) Shutdown() {
	e.Close(-1)
	for e.Operate() {
	}
	e.rx.Close()
	e.closed = true
}

// randomKey draws a fresh mask key.
func randomKey() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("mask key: %w", err)
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// Operate performs one dispatch iteration: wait for readiness, accept,
// advance ready connections, run heartbeat timers, reap the dead.
// Returns true while any fd is alive.
func (e *Endpoint) Operate() bool {
	if e.closed {
		return false
	}
	if len(e.listeners) == 0 && len(e.conns) == 0 {
		return false
	}

	timeoutMs := int(e.settings.PollTimeout / time.Millisecond)
	if timeoutMs <= 0 {
		timeoutMs = defaultTickMs
	}

	n, err := e.rx.Wait(e.events, timeoutMs)
	if err != nil {
		e.reportError("poll: %v", err)
	}

	for i := 0; i < n; i++ {
		ev := e.events[i]
		if _, ok := e.listeners[ev.FD]; ok {
			if ev.Type&reactor.EventRead != 0 {
				e.acceptReady(ev.FD)
			}
			continue
		}
		c, ok := e.conns[ev.FD]
		if !ok {
			continue
		}
		if ev.Type&reactor.EventError != 0 {
			e.teardown(c, protocol.CloseAbnormalClosure, "transport error on fd %d", c.fd)
			continue
		}
		if ev.Type&reactor.EventWrite != 0 {
			e.handleWritable(c)
		}
		if _, alive := e.conns[ev.FD]; alive && ev.Type&reactor.EventRead != 0 {
			e.handleReadable(c)
		}
	}

	e.runHeartbeats()

	for _, c := range e.conns {
		if c.st == stateClosed {
			e.destroy(c, c.closeStatus)
		}
	}

	return len(e.listeners) > 0 || len(e.conns) > 0
}

// acceptReady drains the accept backlog of one listening socket.
func (e *Endpoint) acceptReady(lfd int) {
	for {
		fd, peer, err := transport.Accept(lfd)
		if err != nil {
			if err != transport.ErrWouldBlock {
				e.reportError("accept: %v", err)
			}
			return
		}
		if e.settings.FDLimit > 0 && len(e.conns) >= e.settings.FDLimit {
			// Over the cap; no request was parsed yet, so drop.
			transport.CloseFD(fd)
			e.reportError("accept: connection limit %d reached", e.settings.FDLimit)
			continue
		}

		var stream transport.Stream
		if e.settings.Mode == api.ModeTLS {
			stream, err = transport.NewTLS(fd, transport.TLSConfig{
				Seed:       e.settings.SSLSeed,
				CACert:     e.settings.SSLCACert,
				OwnCert:    e.settings.SSLOwnCert,
				PrivateKey: e.settings.SSLPrivateKey,
				Server:     true,
			})
			if err != nil {
				transport.CloseFD(fd)
				e.reportError("tls accept: %v", err)
				continue
			}
		} else {
			stream = transport.NewPlain(fd)
		}

		c := newConnection(fd, api.EndpointServer, peer, stream, e.clock())
		c.st = stateHandshakeWait
		if err := e.rx.Add(fd, reactor.InterestRead); err != nil {
			stream.Close()
			e.reportError("register fd %d: %v", fd, err)
			continue
		}
		e.conns[fd] = c
	}
}

// updateInterest reconciles the fd's readiness registration with what
// the connection currently needs, serializing queued frames first.
func (e *Endpoint) updateInterest(c *connection) error {
	if err := c.serializeQueued(); err != nil {
		return err
	}
	interest := reactor.InterestRead
	if c.wantsWrite() {
		interest |= reactor.InterestWrite
	}
	return e.rx.Modify(c.fd, interest)
}

// runHeartbeats walks open connections and applies the ping policy:
// one outstanding ping at a time, 1006 when the pong never comes.
func (e *Endpoint) runHeartbeats() {
	now := e.clock()
	for _, c := range e.conns {
		if c.st != stateOpen {
			// A peer stalling before OPEN holds a table slot; bound it
			// with the read timeout.
			if e.settings.ReadTimeout > 0 && c.st != stateClosing &&
				now.Sub(c.lastRx) > e.settings.ReadTimeout {
				e.teardown(c, protocol.CloseAbnormalClosure, "fd %d: handshake timeout", c.fd)
			}
			continue
		}
		if e.settings.PingInterval <= 0 {
			continue
		}
		if c.pingOutstanding {
			if e.settings.PingTimeout > 0 && now.Sub(c.pingSent) > e.settings.PingTimeout {
				e.teardown(c, protocol.CloseAbnormalClosure, "fd %d: ping timeout", c.fd)
			}
			continue
		}
		if now.Sub(c.lastRx) > e.settings.PingInterval {
			f := protocol.NewFrame(protocol.OpcodePing)
			f.Push(heartbeatPayload)
			e.sendControl(c, f)
			c.pingOutstanding = true
			c.pingSent = now
		}
	}
}

// sendControl queues a control frame with role-appropriate masking.
// Engine-generated frames on a client connection are always masked,
// independent of the auto-mask setting for user frames.
func (e *Endpoint) sendControl(c *connection, f *protocol.Frame) {
	if c.role == api.EndpointClient {
		if key, err := randomKey(); err == nil {
			c.queueFrame(f, true, key)
			e.updateInterest(c)
			return
		}
	}
	c.queueFrame(f, false, 0)
	e.updateInterest(c)
}

// teardown reports a failure, fires the paired close when owed, and
// removes the connection without a closing handshake.
func (e *Endpoint) teardown(c *connection, status int, format string, args ...any) {
	e.reportError(format, args...)
	e.destroy(c, status)
}

// destroy finalizes a connection: unregister, close, reap, and settle
// the open/close pairing.
func (e *Endpoint) destroy(c *connection, status int) {
	if _, ok := e.conns[c.fd]; !ok {
		return
	}
	e.rx.Remove(c.fd)
	c.stream.Close()
	delete(e.conns, c.fd)
	if c.opened {
		e.fireClose(c, status)
	}
	c.st = stateClosed
}
