// File: endpoint/io.go
// Readiness handlers: socket I/O, handshake advancement, the OPEN frame
// loop and the closing drain.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package endpoint

import (
	"io"

	"github.com/momentics/wsloop/api"
	"github.com/momentics/wsloop/bytestream"
	"github.com/momentics/wsloop/handshake"
	"github.com/momentics/wsloop/httpmsg"
	"github.com/momentics/wsloop/protocol"
	"github.com/momentics/wsloop/transport"
)

var endOfHead = []byte("\r\n\r\n")

// handleWritable advances the connect/handshake-send path and drains
// the outbound stream.
func (e *Endpoint) handleWritable(c *connection) {
	if c.st == stateConnecting {
		if err := transport.ConnectError(c.fd); err != nil {
			e.teardown(c, protocol.CloseAbnormalClosure, "fd %d: connect: %v", c.fd, err)
			return
		}
		switch err := c.stream.Handshake(); err {
		case nil:
			c.tlsComplete = true
		case transport.ErrWouldBlock:
			return
		default:
			e.teardown(c, protocol.CloseTLSHandshakeFailed, "fd %d: tls handshake: %v", c.fd, err)
			return
		}

		c.st = stateHandshakeSend
		host := e.settings.Host
		if host == "" {
			host = c.targetHost
		}
		accept, err := handshake.BuildClientRequest(
			host, e.settings.AllowedOrigin, "/", e.settings.Extensions, c.outbound)
		if err != nil {
			e.teardown(c, protocol.CloseInternalServerErr, "fd %d: handshake build: %v", c.fd, err)
			return
		}
		c.expectedAccept = accept
		c.st = stateHandshakeWait
	}
	e.flushOutbound(c)
}

// flushOutbound writes whatever the socket accepts and settles the
// closing handshake once everything has drained.
func (e *Endpoint) flushOutbound(c *connection) {
	if _, alive := e.conns[c.fd]; !alive {
		return
	}
	if err := c.serializeQueued(); err != nil {
		e.teardown(c, protocol.CloseInternalServerErr, "fd %d: encode: %v", c.fd, err)
		return
	}
	for c.outbound.Available() {
		n, err := c.stream.Write(c.outbound.Bytes())
		if n > 0 {
			c.outbound.Pop(n)
		}
		if err == transport.ErrWouldBlock {
			break
		}
		if err != nil {
			e.teardown(c, protocol.CloseAbnormalClosure, "fd %d: write: %v", c.fd, err)
			return
		}
	}

	if c.st == stateClosing && !c.outbound.Available() && c.sendQueue.Length() == 0 {
		c.st = stateClosed
		return
	}
	if err := e.updateInterest(c); err != nil {
		e.teardown(c, protocol.CloseInternalServerErr, "fd %d: reactor: %v", c.fd, err)
	}
}

// handleReadable pulls pending bytes into the inbound stream and
// advances the state machine.
func (e *Endpoint) handleReadable(c *connection) {
	if c.st == stateConnecting {
		return // connect result arrives with write readiness
	}
	if !c.tlsComplete {
		switch err := c.stream.Handshake(); err {
		case nil:
			c.tlsComplete = true
		case transport.ErrWouldBlock:
			return
		default:
			e.teardown(c, protocol.CloseTLSHandshakeFailed, "fd %d: tls handshake: %v", c.fd, err)
			return
		}
	}

	buf := e.readPool.Get()
	defer e.readPool.Put(buf)

	for {
		n, err := c.stream.Read(buf)
		if n > 0 {
			if perr := c.inbound.PushBackN(buf[:n]); perr != nil {
				e.teardown(c, protocol.CloseInternalServerErr, "fd %d: buffer: %v", c.fd, perr)
				return
			}
			c.lastRx = e.clock()
		}
		if err == nil {
			continue
		}
		if err == transport.ErrWouldBlock {
			break
		}
		if err == io.EOF {
			if c.closeSent || c.closeRecv {
				e.destroy(c, c.closeStatus)
			} else {
				e.destroy(c, protocol.CloseAbnormalClosure)
			}
			return
		}
		e.teardown(c, protocol.CloseAbnormalClosure, "fd %d: read: %v", c.fd, err)
		return
	}

	e.advance(c)
}

// advance moves the state machine as far as the buffered input allows.
func (e *Endpoint) advance(c *connection) {
	switch c.st {
	case stateHandshakeWait:
		e.advanceHandshake(c)
	case stateOpen, stateClosing:
		e.processFrames(c)
	}
	e.flushOutbound(c)
}

// advanceHandshake parses and validates the buffered HTTP head once it
// is complete, then flips the connection to OPEN or tears it down.
func (e *Endpoint) advanceHandshake(c *connection) {
	if c.inbound.IndexOf(endOfHead, 0, bytestream.NPOS) == bytestream.NPOS {
		if c.inbound.Len() > maxHandshakeBytes {
			e.failHandshake(c, "fd %d: handshake head too large", c.fd)
		}
		return
	}

	msg, err := httpmsg.Parse(c.inbound)
	if err != nil {
		e.failHandshake(c, "fd %d: handshake parse: %v", c.fd, err)
		return
	}
	// Bytes that followed the head are the first frames; put them back.
	if msg.Body.Available() {
		c.inbound.PushBackN(msg.Body.Bytes())
	}

	var ext api.Extensions
	if c.role == api.EndpointServer {
		ext, err = handshake.ValidateServerRequest(
			msg, e.settings.Host, e.settings.AllowedOrigin, e.settings.Extensions, c.outbound)
		if err != nil {
			httpmsg.Respond(httpmsg.StatusBadRequest, c.outbound)
			e.failHandshake(c, "fd %d: handshake: %v", c.fd, err)
			return
		}
	} else {
		ext, err = handshake.ValidateClientResponse(msg, c.expectedAccept, e.settings.Extensions)
		if err != nil {
			e.failHandshake(c, "fd %d: handshake: %v", c.fd, err)
			return
		}
	}

	c.ext = ext
	c.st = stateOpen
	c.opened = true
	if e.onOpen != nil {
		e.invoke(c, func() { e.onOpen(c.fd, c.peerAddr) })
	}

	// Frames may have arrived pipelined behind the handshake.
	if c.inbound.Available() {
		e.processFrames(c)
	}
}

// failHandshake reports the failure, flushes any pending HTTP answer on
// a best-effort basis, and removes the connection with close code 1002.
func (e *Endpoint) failHandshake(c *connection, format string, args ...any) {
	e.reportError(format, args...)
	for c.outbound.Available() {
		n, err := c.stream.Write(c.outbound.Bytes())
		if n > 0 {
			c.outbound.Pop(n)
		}
		if err != nil {
			break
		}
	}
	e.fireClose(c, protocol.CloseProtocolError)
	e.destroy(c, protocol.CloseProtocolError)
}

// failProtocol reacts to a protocol violation in OPEN: report, discard
// the poisoned input, send the close frame and enter CLOSING.
func (e *Endpoint) failProtocol(c *connection, status int, format string, args ...any) {
	e.reportError(format, args...)
	c.inbound.Flush()
	c.resetAssembly()
	c.queueClose(status)
}

// processFrames consumes every complete frame buffered on the inbound
// stream, delivering reassembled messages in wire order.
func (e *Endpoint) processFrames(c *connection) {
	for c.st == stateOpen || c.st == stateClosing {
		f, _, err := protocol.Decode(c.inbound, e.settings.MessageLimit)
		if err == protocol.ErrTooBig {
			e.failProtocol(c, protocol.CloseMessageTooBig, "fd %d: frame exceeds message limit", c.fd)
			return
		}
		if err != nil {
			e.failProtocol(c, protocol.CloseProtocolError, "fd %d: frame decode: %v", c.fd, err)
			return
		}
		if f == nil {
			return // incomplete, wait for more bytes
		}

		// Masking direction is fixed by role: clients mask, servers
		// never do.
		if c.role == api.EndpointServer && !f.Masked {
			e.failProtocol(c, protocol.CloseProtocolError, "fd %d: unmasked client frame", c.fd)
			return
		}
		if c.role == api.EndpointClient && f.Masked {
			e.failProtocol(c, protocol.CloseProtocolError, "fd %d: masked server frame", c.fd)
			return
		}

		if protocol.IsControl(f.Opcode) {
			if !e.handleControl(c, f) {
				return
			}
			continue
		}

		if c.st == stateClosing {
			continue // no data frames after the closing handshake began
		}

		if status := c.acceptDataFrame(f, e.settings.MessageLimit); status != 0 {
			e.failProtocol(c, status, "fd %d: invalid data frame (close %d)", c.fd, status)
			return
		}
		if !f.Fin {
			continue
		}

		payload, failStatus := c.finishMessage(e.settings.MessageLimit)
		if payload == nil {
			e.failProtocol(c, failStatus, "fd %d: invalid message (close %d)", c.fd, failStatus)
			return
		}
		opcode := c.assemblyOpcode
		c.resetAssembly()
		if e.onFrame != nil {
			e.invoke(c, func() { e.onFrame(c.fd, opcode, payload.Bytes()) })
		}
	}
}

// handleControl reacts to a control frame. Returns false when the frame
// was fatal for the connection.
func (e *Endpoint) handleControl(c *connection, f *protocol.Frame) bool {
	switch f.Opcode {
	case protocol.OpcodePing:
		if c.st == stateOpen {
			pong := protocol.NewFrame(protocol.OpcodePong)
			pong.Push(f.Payload())
			e.sendControl(c, pong)
		}
		return true

	case protocol.OpcodePong:
		c.pingOutstanding = false
		return true

	case protocol.OpcodeClose:
		status := closeStatusOf(f)
		c.closeRecv = true
		if !c.closeSent {
			// Echo the peer's status back, then drain and finish.
			c.queueClose(status)
		}
		c.st = stateClosing
		return true

	default:
		e.failProtocol(c, protocol.CloseProtocolError, "fd %d: reserved control opcode %#x", c.fd, f.Opcode)
		return false
	}
}
