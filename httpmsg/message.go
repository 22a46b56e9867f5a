// File: httpmsg/message.go
// Package httpmsg parses and emits the HTTP/1.1 messages of the opening
// handshake over the connection's byte stream.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The parser accepts CRLF line terminators only. It is deliberately
// narrow: one request or response head, a case-preserving header map
// with case-insensitive lookup, and whatever trails the blank line as
// the body.

package httpmsg

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/momentics/wsloop/bytestream"
)

// Parse errors, one per failure class.
var (
	ErrNoHTTPFormat          = fmt.Errorf("no http format")
	ErrNoHTTPHeader          = fmt.Errorf("no http header terminator")
	ErrNoHTTPVersion         = fmt.Errorf("no http version")
	ErrNoValidHTTPStatusCode = fmt.Errorf("no valid http status code")
)

// Method is an HTTP request method.
type Method uint8

const (
	MethodUnknown Method = iota
	MethodGet
	MethodHead
	MethodPost
	MethodPut
	MethodDelete
	MethodConnect
	MethodOptions
	MethodTrace
	MethodPatch
)

var methodNames = map[string]Method{
	"GET":     MethodGet,
	"HEAD":    MethodHead,
	"POST":    MethodPost,
	"PUT":     MethodPut,
	"DELETE":  MethodDelete,
	"CONNECT": MethodConnect,
	"OPTIONS": MethodOptions,
	"TRACE":   MethodTrace,
	"PATCH":   MethodPatch,
}

// Version is an HTTP protocol version.
type Version uint8

const (
	VersionUnknown Version = iota
	Version10
	Version11
	Version2
	Version3
)

var versionNames = map[string]Version{
	"HTTP/1.0": Version10,
	"HTTP/1.1": Version11,
	"HTTP/2":   Version2,
	"HTTP/3":   Version3,
}

// Message is one parsed HTTP request or response head plus body.
// Request fields and response fields are mutually exclusive; the unused
// side stays at its zero value.
type Message struct {
	Method     Method
	Resource   string
	Version    Version
	StatusCode int
	Reason     string

	headers map[string]string
	Body    *bytestream.Stream
}

// IsResponse reports whether the message carried a status line.
func (m *Message) IsResponse() bool {
	return m.StatusCode != 0
}

// Header returns the value for name, compared case-insensitively, and
// whether it was present.
func (m *Message) Header(name string) (string, bool) {
	if v, ok := m.headers[name]; ok {
		return v, true
	}
	for k, v := range m.headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// Headers exposes the case-preserving header map.
func (m *Message) Headers() map[string]string {
	return m.headers
}

var crlfcrlf = []byte("\r\n\r\n")

// Parse consumes one complete HTTP message from input. The head must be
// fully buffered (terminated by a blank CRLF line); all bytes after the
// terminator move into the message body.
func Parse(input *bytestream.Stream) (*Message, error) {
	endOfHead := input.IndexOf(crlfcrlf, 0, bytestream.NPOS)
	if endOfHead == bytestream.NPOS {
		return nil, ErrNoHTTPHeader
	}

	head := make([]byte, endOfHead)
	if _, err := input.Pull(head, 0); err != nil {
		return nil, err
	}
	if err := input.Pop(len(crlfcrlf)); err != nil {
		return nil, err
	}

	m := &Message{
		headers: make(map[string]string),
		Body:    bytestream.New(),
	}
	if err := input.MoveTo(m.Body, input.Len(), 0); err != nil {
		return nil, err
	}

	lines := strings.Split(string(head), "\r\n")
	if len(lines) == 0 || lines[0] == "" {
		return nil, ErrNoHTTPFormat
	}
	if err := m.parseStartLine(lines[0]); err != nil {
		return nil, err
	}
	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ":")
		if !ok || name == "" {
			return nil, ErrNoHTTPFormat
		}
		m.headers[name] = strings.TrimSpace(value)
	}
	return m, nil
}

// parseStartLine classifies the first line as a request line or a
// status line and fills the matching fields.
func (m *Message) parseStartLine(line string) error {
	parts := strings.SplitN(line, " ", 3)
	if strings.HasPrefix(line, "HTTP/") {
		if len(parts) < 2 {
			return ErrNoHTTPFormat
		}
		m.Version = versionNames[parts[0]]
		if m.Version == VersionUnknown {
			return ErrNoHTTPVersion
		}
		code, err := strconv.Atoi(parts[1])
		if err != nil || code < 100 || code > 599 {
			return ErrNoValidHTTPStatusCode
		}
		m.StatusCode = code
		if len(parts) == 3 {
			m.Reason = parts[2]
		}
		return nil
	}

	if len(parts) != 3 {
		return ErrNoHTTPFormat
	}
	m.Method = methodNames[parts[0]]
	if m.Method == MethodUnknown {
		return ErrNoHTTPFormat
	}
	m.Resource = parts[1]
	m.Version = versionNames[parts[2]]
	if m.Version == VersionUnknown {
		return ErrNoHTTPVersion
	}
	return nil
}

// Respond writes a minimal canned response for code into out.
func Respond(code int, out *bytestream.Stream) error {
	line := fmt.Sprintf("HTTP/1.1 %d %s\r\nContent-Length: 0\r\n\r\n",
		code, ReasonPhrase(code))
	return out.PushBackN([]byte(line))
}
