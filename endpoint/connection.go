// File: endpoint/connection.go
// Per-connection state machine: handshake, frame loop, message
// assembly, heartbeat bookkeeping and the closing handshake.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package endpoint

import (
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/wsloop/api"
	"github.com/momentics/wsloop/bytestream"
	"github.com/momentics/wsloop/flate"
	"github.com/momentics/wsloop/protocol"
	"github.com/momentics/wsloop/transport"
)

type state uint8

const (
	stateConnecting state = iota
	stateHandshakeSend
	stateHandshakeWait
	stateOpen
	stateClosing
	stateClosed
)

// deflateTrailer is re-appended before inflating a compressed message,
// per RFC 7692 section 7.2.2.
var deflateTrailer = []byte{0x00, 0x00, 0xFF, 0xFF}

// queuedFrame is one frame waiting for the socket to take bytes, with
// the masking decision already made.
type queuedFrame struct {
	frame  *protocol.Frame
	masked bool
	key    uint32
}

// connection is the per-fd record in the endpoint's table.
type connection struct {
	fd       int
	role     api.EndpointType
	peerAddr string
	stream   transport.Stream

	inbound  *bytestream.Stream
	outbound *bytestream.Stream

	st  state
	ext api.Extensions

	// client handshake context
	expectedAccept string
	targetHost     string

	// message assembly
	assembling     bool
	assemblyOpcode protocol.Opcode
	compressed     bool
	assembly       *bytestream.Stream
	utf8           bytestream.UTF8State

	// frames accepted by Emit but not yet serialized
	sendQueue *queue.Queue

	// heartbeat
	lastRx          time.Time
	pingSent        time.Time
	pingOutstanding bool

	// closing handshake
	closeSent   bool
	closeRecv   bool
	closeStatus int

	// pairing guarantee for open/close callbacks
	opened      bool
	closeFired  bool
	tlsComplete bool
}

func newConnection(fd int, role api.EndpointType, peerAddr string, stream transport.Stream, now time.Time) *connection {
	return &connection{
		fd:        fd,
		role:      role,
		peerAddr:  peerAddr,
		stream:    stream,
		inbound:   bytestream.New(),
		outbound:  bytestream.New(),
		assembly:  bytestream.New(),
		sendQueue: queue.New(),
		lastRx:    now,
	}
}

// queueFrame appends an outbound frame for later serialization.
func (c *connection) queueFrame(f *protocol.Frame, masked bool, key uint32) {
	c.sendQueue.Add(&queuedFrame{frame: f, masked: masked, key: key})
}

// serializeQueued encodes every queued frame onto the outbound stream.
func (c *connection) serializeQueued() error {
	for c.sendQueue.Length() > 0 {
		qf := c.sendQueue.Remove().(*queuedFrame)
		if err := protocol.Encode(qf.frame, c.outbound, qf.masked, qf.key); err != nil {
			return err
		}
	}
	return nil
}

// wantsWrite reports whether the fd needs write readiness.
func (c *connection) wantsWrite() bool {
	return c.st == stateConnecting || c.outbound.Available() || c.sendQueue.Length() > 0
}

// queueClose emits a close frame carrying status, once. Client-role
// close frames go out masked like every other client frame.
func (c *connection) queueClose(status int) {
	if c.closeSent {
		return
	}
	f := protocol.NewFrame(protocol.OpcodeClose)
	var payload [2]byte
	payload[0] = byte(status >> 8)
	payload[1] = byte(status)
	f.Push(payload[:])

	masked := false
	var key uint32
	if c.role == api.EndpointClient {
		if k, err := randomKey(); err == nil {
			masked, key = true, k
		}
	}
	c.queueFrame(f, masked, key)
	c.closeSent = true
	c.closeStatus = status
	c.st = stateClosing
}

// resetAssembly clears the in-progress message.
func (c *connection) resetAssembly() {
	c.assembling = false
	c.compressed = false
	c.assembly.Flush()
	c.utf8.Reset()
}

// finishMessage completes assembly of a FIN frame and returns the
// payload to surface, decompressed when the message was compressed.
// A nil stream with a non-zero status means the message must be
// refused with that close code.
func (c *connection) finishMessage(limit int) (*bytestream.Stream, int) {
	if !c.compressed {
		if c.assemblyOpcode == protocol.OpcodeText && !c.utf8.Final() {
			return nil, protocol.CloseInvalidPayloadData
		}
		out := c.assembly
		c.assembly = bytestream.New()
		return out, 0
	}

	if err := c.assembly.PushBackN(deflateTrailer); err != nil {
		return nil, protocol.CloseInternalServerErr
	}
	inflated := bytestream.New()
	bits := c.ext.PermessageDeflate.WindowBits
	if err := flate.Inflate(c.assembly.Bytes(), inflated, bits); err != nil {
		return nil, protocol.CloseInvalidPayloadData
	}
	if limit > 0 && inflated.Len() > limit {
		return nil, protocol.CloseMessageTooBig
	}
	if c.assemblyOpcode == protocol.OpcodeText && !inflated.IsUTF8() {
		return nil, protocol.CloseInvalidPayloadData
	}
	return inflated, 0
}

// acceptDataFrame folds one data frame into the assembly buffer and
// returns a close status when the frame violates the protocol, or 0.
func (c *connection) acceptDataFrame(f *protocol.Frame, limit int) int {
	switch f.Opcode {
	case protocol.OpcodeContinuation:
		if !c.assembling {
			return protocol.CloseProtocolError
		}
		if f.Rsv1 {
			// RSV1 is legal on the first frame of a message only.
			return protocol.CloseProtocolError
		}
	case protocol.OpcodeText, protocol.OpcodeBinary:
		if c.assembling {
			return protocol.CloseProtocolError
		}
		if f.Rsv1 && !c.ext.PermessageDeflate.Enabled {
			return protocol.CloseProtocolError
		}
		c.assembling = true
		c.assemblyOpcode = f.Opcode
		c.compressed = f.Rsv1
		c.utf8.Reset()
	default:
		// Reserved non-control opcodes carry no negotiated meaning.
		return protocol.CloseProtocolError
	}

	payload := f.Payload()
	if limit > 0 && c.assembly.Len()+len(payload) > limit {
		return protocol.CloseMessageTooBig
	}
	if c.assemblyOpcode == protocol.OpcodeText && !c.compressed {
		if !c.utf8.Feed(payload) {
			return protocol.CloseInvalidPayloadData
		}
	}
	if err := c.assembly.PushBackN(payload); err != nil {
		return protocol.CloseInternalServerErr
	}
	return 0
}

// closeStatusOf decodes the status carried by a close frame payload.
// An empty payload means no status was present; 1000 is echoed then.
func closeStatusOf(f *protocol.Frame) int {
	p := f.Payload()
	if len(p) < 2 {
		return protocol.CloseNormalClosure
	}
	return int(p[0])<<8 | int(p[1])
}
