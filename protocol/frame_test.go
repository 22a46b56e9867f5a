package protocol_test

import (
	"bytes"
	"testing"

	"github.com/momentics/wsloop/bytestream"
	"github.com/momentics/wsloop/flate"
	"github.com/momentics/wsloop/protocol"
)

func TestFramePush(t *testing.T) {
	f := protocol.NewFrame(protocol.OpcodeText)
	if !f.Fin {
		t.Error("new frame is not final")
	}
	if !f.Push([]byte("Hel")) || !f.Push([]byte("lo")) {
		t.Fatal("Push refused payload")
	}
	if string(f.Payload()) != "Hello" || f.PayloadLen() != 5 {
		t.Errorf("payload = %q (%d)", f.Payload(), f.PayloadLen())
	}
	f.Flush()
	if f.PayloadLen() != 0 {
		t.Error("Flush left payload behind")
	}
}

func TestFrameMaskUnmask(t *testing.T) {
	f := protocol.NewFrame(protocol.OpcodeBinary)
	f.Push([]byte("payload bytes"))
	original := make([]byte, f.PayloadLen())
	copy(original, f.Payload())

	f.Mask(0xCAFEBABE)
	if !f.Masked || f.MaskKey != 0xCAFEBABE {
		t.Error("mask state not recorded")
	}
	if bytes.Equal(f.Payload(), original) {
		t.Error("payload unchanged by mask")
	}
	f.Unmask()
	if f.Masked || !bytes.Equal(f.Payload(), original) {
		t.Error("unmask did not restore the payload")
	}
}

func TestFramePayloadUTF8(t *testing.T) {
	f := protocol.NewFrame(protocol.OpcodeText)
	f.Push([]byte("héllo"))
	if !f.PayloadUTF8() {
		t.Error("valid text rejected")
	}
	f.Flush()
	f.Push([]byte{0xC0, 0xAF})
	if f.PayloadUTF8() {
		t.Error("overlong sequence accepted")
	}
}

func TestFrameDeflate(t *testing.T) {
	payload := bytes.Repeat([]byte("compress me "), 64)
	f := protocol.NewFrame(protocol.OpcodeText)
	f.Push(payload)

	if err := f.Deflate(15); err != nil {
		t.Fatalf("Deflate: %v", err)
	}
	if !f.Rsv1 {
		t.Error("RSV1 not set on compressed frame")
	}
	if f.PayloadLen() >= len(payload) {
		t.Errorf("no compression achieved: %d >= %d", f.PayloadLen(), len(payload))
	}
	// the sync marker must have been stripped
	if bytes.HasSuffix(f.Payload(), []byte{0x00, 0x00, 0xFF, 0xFF}) {
		t.Error("trailer not stripped")
	}

	// receiving side: re-append the trailer and inflate
	compressed := bytestream.FromBytes(f.Payload())
	compressed.PushBackN([]byte{0x00, 0x00, 0xFF, 0xFF})
	restored := bytestream.New()
	if err := flate.Inflate(compressed.Bytes(), restored, 15); err != nil {
		t.Fatalf("Inflate: %v", err)
	}
	if !bytes.Equal(restored.Bytes(), payload) {
		t.Error("compressed roundtrip mismatch")
	}
}
