// File: flate/flate.go
// Package flate is the DEFLATE codec behind permessage-deflate.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Both directions are stateless: no compression context survives across
// calls, matching a negotiation without context takeover. The RFC 7692
// trailer handling stays with the caller; Deflate output ends with the
// 0x00 0x00 0xFF 0xFF sync marker for the caller to strip, and Inflate
// expects the caller to have appended it back.

package flate

import (
	"bytes"
	"fmt"
	"io"

	kflate "github.com/klauspost/compress/flate"

	"github.com/momentics/wsloop/bytestream"
)

// Window bounds of RFC 7692 negotiation.
const (
	MinWindowBits = 9
	MaxWindowBits = 15
)

// inflateTail is a final empty stored block. Appending it lets the
// reader terminate at a sync-flushed boundary instead of hitting an
// unexpected EOF.
var inflateTail = []byte{0x01, 0x00, 0x00, 0xFF, 0xFF}

func checkWindow(windowBits uint8) error {
	if windowBits < MinWindowBits || windowBits > MaxWindowBits {
		return fmt.Errorf("flate: window bits %d outside %d..%d",
			windowBits, MinWindowBits, MaxWindowBits)
	}
	return nil
}

// Deflate compresses input into output as a raw DEFLATE stream bounded
// by the negotiated window, terminated by a sync flush.
func Deflate(input []byte, output *bytestream.Stream, windowBits uint8) error {
	if err := checkWindow(windowBits); err != nil {
		return err
	}
	w, err := kflate.NewWriterWindow(output, 1<<windowBits)
	if err != nil {
		return fmt.Errorf("flate: new writer: %w", err)
	}
	if _, err := w.Write(input); err != nil {
		return fmt.Errorf("flate: compress: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flate: flush: %w", err)
	}
	return nil
}

// Inflate decompresses input into output. input must end at a sync
// boundary (the caller re-appends the four trailer bytes beforehand).
func Inflate(input []byte, output *bytestream.Stream, windowBits uint8) error {
	if err := checkWindow(windowBits); err != nil {
		return err
	}
	r := kflate.NewReader(io.MultiReader(
		bytes.NewReader(input),
		bytes.NewReader(inflateTail),
	))
	defer r.Close()
	if _, err := io.Copy(output, r); err != nil {
		return fmt.Errorf("flate: decompress: %w", err)
	}
	return nil
}
