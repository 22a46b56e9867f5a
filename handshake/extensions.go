// File: handshake/extensions.go
// Sec-WebSocket-Extensions negotiation: permessage-deflate only.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Unknown extension tokens in an offer are skipped rather than
// rejected, per RFC 6455 section 9.1.

package handshake

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/momentics/wsloop/api"
)

const permessageDeflate = "permessage-deflate"

// deflateOffer is one parsed permessage-deflate token.
type deflateOffer struct {
	present          bool
	clientWindowBits uint8
	serverWindowBits uint8
	clientBitsSet    bool
	serverBitsSet    bool
}

// parseOffers walks a Sec-WebSocket-Extensions value and returns the
// first permessage-deflate offer. An absent window parameter means the
// full 15-bit window.
func parseOffers(header string) deflateOffer {
	offer := deflateOffer{clientWindowBits: 15, serverWindowBits: 15}
	for _, ext := range strings.Split(header, ",") {
		params := strings.Split(ext, ";")
		if !strings.EqualFold(strings.TrimSpace(params[0]), permessageDeflate) {
			continue // unknown extension, skip
		}
		offer.present = true
		for _, p := range params[1:] {
			name, value, _ := strings.Cut(strings.TrimSpace(p), "=")
			bits, err := strconv.Atoi(strings.Trim(value, `"`))
			if err != nil || bits < 9 || bits > 15 {
				continue
			}
			switch strings.ToLower(name) {
			case "client_max_window_bits":
				offer.clientWindowBits = uint8(bits)
				offer.clientBitsSet = true
			case "server_max_window_bits":
				offer.serverWindowBits = uint8(bits)
				offer.serverBitsSet = true
			}
		}
		return offer
	}
	return offer
}

func minBits(a, b uint8) uint8 {
	if a < b {
		return a
	}
	return b
}

// OfferHeader renders the extension offer for an outbound client
// request, or "" when nothing is enabled locally.
func OfferHeader(local api.Extensions) string {
	pmd := local.PermessageDeflate
	if !pmd.Enabled {
		return ""
	}
	return fmt.Sprintf("%s; client_max_window_bits=%d; server_max_window_bits=%d",
		permessageDeflate, pmd.WindowBits, pmd.WindowBits)
}

// NegotiateServer resolves an inbound offer against the local
// configuration. The negotiated window is the minimum of what the peer
// offered and what we allow. Returns the pinned record and the reply
// header value ("" when compression stays off).
func NegotiateServer(offered string, local api.Extensions) (api.Extensions, string) {
	var negotiated api.Extensions
	negotiated.PermessageDeflate.WindowBits = 15

	offer := parseOffers(offered)
	if !offer.present || !local.PermessageDeflate.Enabled {
		return negotiated, ""
	}

	bits := minBits(
		minBits(offer.clientWindowBits, offer.serverWindowBits),
		local.PermessageDeflate.WindowBits,
	)
	negotiated.PermessageDeflate.Enabled = true
	negotiated.PermessageDeflate.WindowBits = bits

	// The codec keeps no state across messages, so both takeover
	// directions are declared off. Window parameters are echoed only
	// when the peer offered them.
	parts := []string{
		permessageDeflate,
		"server_no_context_takeover",
		"client_no_context_takeover",
	}
	if offer.clientBitsSet {
		parts = append(parts, fmt.Sprintf("client_max_window_bits=%d", bits))
	}
	if offer.serverBitsSet {
		parts = append(parts, fmt.Sprintf("server_max_window_bits=%d", bits))
	}
	return negotiated, strings.Join(parts, "; ")
}

// PinClient resolves the server's agreed extension header against what
// the client offered. A server must not enable what was never offered;
// such a reply leaves compression off.
func PinClient(agreed string, local api.Extensions) api.Extensions {
	var negotiated api.Extensions
	negotiated.PermessageDeflate.WindowBits = 15

	offer := parseOffers(agreed)
	if !offer.present || !local.PermessageDeflate.Enabled {
		return negotiated
	}
	bits := minBits(
		minBits(offer.clientWindowBits, offer.serverWindowBits),
		local.PermessageDeflate.WindowBits,
	)
	negotiated.PermessageDeflate.Enabled = true
	negotiated.PermessageDeflate.WindowBits = bits
	return negotiated
}
