//go:build linux
// +build linux

// Integration tests running a live endpoint on a loopback socket,
// exercised by an independent client implementation and by raw TCP.

package endpoint_test

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/momentics/wsloop/api"
	"github.com/momentics/wsloop/endpoint"
	"github.com/momentics/wsloop/protocol"
	"github.com/momentics/wsloop/transport"
)

// startEchoServer runs an echoing endpoint on a kernel-picked port and
// returns the port plus a stop function.
func startEchoServer(t *testing.T, settings api.Settings) (int, func()) {
	t.Helper()
	ep, err := endpoint.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := ep.Setup(settings); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	ep.OnFrame(func(fd int, opcode byte, payload []byte) {
		echo := protocol.NewFrame(opcode)
		echo.Push(payload)
		ep.Emit(fd, echo)
	})

	lfd, err := ep.Bind("127.0.0.1", 0)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	port, err := transport.ListenPort(lfd)
	if err != nil {
		t.Fatalf("ListenPort: %v", err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ep.Operate() {
			select {
			case <-stop:
				ep.Close(-1)
			default:
			}
		}
	}()
	return port, func() {
		close(stop)
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("dispatch loop did not stop")
		}
	}
}

func fastPollSettings() api.Settings {
	s := api.DefaultSettings()
	s.PollTimeout = 20 * time.Millisecond
	return s
}

// An independent client implementation talks to the endpoint.
func TestEchoAgainstGorillaClient(t *testing.T) {
	port, stop := startEchoServer(t, fastPollSettings())
	defer stop()

	url := fmt.Sprintf("ws://127.0.0.1:%d/", port)
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := ws.WriteMessage(websocket.TextMessage, []byte("Hello wsloop")); err != nil {
		t.Fatalf("write: %v", err)
	}
	kind, payload, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if kind != websocket.TextMessage || string(payload) != "Hello wsloop" {
		t.Errorf("echo = kind %d payload %q", kind, payload)
	}
}

// rawHandshake performs the upgrade with the RFC sample nonce and
// returns the connection with the response status line and headers.
func rawHandshake(t *testing.T, port int) (net.Conn, *bufio.Reader, string) {
	t.Helper()
	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	req := "GET / HTTP/1.1\r\n" +
		"Host: 127.0.0.1\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 13\r\n" +
		"\r\n"
	if _, err := conn.Write([]byte(req)); err != nil {
		t.Fatalf("write handshake: %v", err)
	}

	br := bufio.NewReader(conn)
	var head strings.Builder
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			t.Fatalf("read handshake: %v", err)
		}
		head.WriteString(line)
		if line == "\r\n" {
			break
		}
	}
	return conn, br, head.String()
}

// The sample nonce yields the canonical accept value and a 101.
func TestHandshakeSampleNonce(t *testing.T) {
	port, stop := startEchoServer(t, fastPollSettings())
	defer stop()

	conn, _, head := rawHandshake(t, port)
	defer conn.Close()

	if !strings.HasPrefix(head, "HTTP/1.1 101 Switching Protocols\r\n") {
		t.Errorf("status line: %q", head)
	}
	if !strings.Contains(head, "Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n") {
		t.Errorf("accept header missing: %q", head)
	}
}

// Fragmented masked text reassembles to one echoed message.
func TestFragmentedMessageOverWire(t *testing.T) {
	port, stop := startEchoServer(t, fastPollSettings())
	defer stop()

	conn, br, _ := rawHandshake(t, port)
	defer conn.Close()

	// "Hel" in a non-final text frame, "lo" in a final continuation,
	// both masked with the zero key.
	frags := []byte{
		0x01, 0x83, 0x00, 0x00, 0x00, 0x00, 'H', 'e', 'l',
		0x80, 0x82, 0x00, 0x00, 0x00, 0x00, 'l', 'o',
	}
	if _, err := conn.Write(frags); err != nil {
		t.Fatalf("write: %v", err)
	}

	echo := make([]byte, 7)
	if _, err := io.ReadFull(br, echo); err != nil {
		t.Fatalf("read echo: %v", err)
	}
	want := []byte{0x81, 0x05, 'H', 'e', 'l', 'l', 'o'}
	if string(echo) != string(want) {
		t.Errorf("echo = %x, want %x", echo, want)
	}
}

// An unmasked client frame draws a close frame carrying 1002.
func TestUnmaskedFrameClosedOverWire(t *testing.T) {
	port, stop := startEchoServer(t, fastPollSettings())
	defer stop()

	conn, br, _ := rawHandshake(t, port)
	defer conn.Close()

	if _, err := conn.Write([]byte{0x81, 0x05, 'H', 'e', 'l', 'l', 'o'}); err != nil {
		t.Fatalf("write: %v", err)
	}

	hdr := make([]byte, 4)
	if _, err := io.ReadFull(br, hdr); err != nil {
		t.Fatalf("read close: %v", err)
	}
	if hdr[0] != 0x88 {
		t.Fatalf("expected close frame, got %x", hdr)
	}
	if status := int(hdr[2])<<8 | int(hdr[3]); status != protocol.CloseProtocolError {
		t.Errorf("close status = %d, want 1002", status)
	}
}

// A masked ping with an empty payload elicits an empty pong.
func TestPingPongOverWire(t *testing.T) {
	port, stop := startEchoServer(t, fastPollSettings())
	defer stop()

	conn, br, _ := rawHandshake(t, port)
	defer conn.Close()

	if _, err := conn.Write([]byte{0x89, 0x80, 0x00, 0x00, 0x00, 0x00}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	pong := make([]byte, 2)
	if _, err := io.ReadFull(br, pong); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if pong[0] != 0x8A || pong[1] != 0x00 {
		t.Errorf("pong = %x, want 8a00", pong)
	}

	// the connection is still usable afterwards
	msg := []byte{0x81, 0x82, 0x00, 0x00, 0x00, 0x00, 'H', 'i'}
	if _, err := conn.Write(msg); err != nil {
		t.Fatalf("write text: %v", err)
	}
	echo := make([]byte, 4)
	if _, err := io.ReadFull(br, echo); err != nil {
		t.Fatalf("read echo: %v", err)
	}
	if echo[0] != 0x81 || echo[1] != 0x02 || echo[2] != 'H' || echo[3] != 'i' {
		t.Errorf("echo = %x", echo)
	}
}

// permessage-deflate end to end against gorilla's implementation.
func TestDeflateNegotiatedEcho(t *testing.T) {
	settings := fastPollSettings()
	settings.Extensions.PermessageDeflate.Enabled = true
	port, stop := startEchoServer(t, settings)
	defer stop()

	dialer := websocket.Dialer{EnableCompression: true}
	url := fmt.Sprintf("ws://127.0.0.1:%d/", port)
	ws, _, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	payload := strings.Repeat("compressible payload ", 64)
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := ws.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, got, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != payload {
		t.Errorf("compressed echo mismatch: %d bytes", len(got))
	}
}
