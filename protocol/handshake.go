// File: protocol/handshake.go
// Package protocol implements the server side of the RFC6455 opening handshake.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The upgrade request is parsed in place with the zero-copy HTTP parser; the
// key returned to the caller aliases the request buffer.

package protocol

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// HandshakeCode is a stable numeric identifier for a handshake failure.
type HandshakeCode int

const (
	HandshakeBadRequest HandshakeCode = iota + 1
	HandshakeBadMethod
	HandshakeBadHTTPVersion
	HandshakeBadWebSocketVersion
	HandshakeNoUpgrade
	HandshakeNoKey
)

// HandshakeError describes why an upgrade request was rejected.
type HandshakeError struct {
	Code    HandshakeCode
	Message string
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("websocket handshake error %d: %s", e.Code, e.Message)
}

// Handshake failures. Compare with errors.Is.
var (
	ErrHandshakeRequest = &HandshakeError{HandshakeBadRequest,
		"could not parse HTTP request"}
	ErrHandshakeMethod = &HandshakeError{HandshakeBadMethod,
		"incorrect HTTP method in handshake request"}
	ErrHandshakeHTTPVersion = &HandshakeError{HandshakeBadHTTPVersion,
		"unsupported version of HTTP protocol"}
	ErrHandshakeWebSocketVersion = &HandshakeError{HandshakeBadWebSocketVersion,
		"unsupported version of WebSocket protocol"}
	ErrHandshakeNoUpgrade = &HandshakeError{HandshakeNoUpgrade,
		"request does not contain valid connection upgrade headers"}
	ErrHandshakeNoKey = &HandshakeError{HandshakeNoKey,
		"request does not contain 'Sec-WebSocket-Key' header"}
)

var handshakeErrors = [...]*HandshakeError{
	ErrHandshakeRequest,
	ErrHandshakeMethod,
	ErrHandshakeHTTPVersion,
	ErrHandshakeWebSocketVersion,
	ErrHandshakeNoUpgrade,
	ErrHandshakeNoKey,
}

// HandshakeErrorMessage returns the message for code, or "unknown error".
func HandshakeErrorMessage(code HandshakeCode) string {
	if code < HandshakeBadRequest || int(code) > len(handshakeErrors) {
		return "unknown error"
	}
	return handshakeErrors[code-1].Message
}

// HandshakeState accumulates the upgrade-relevant header fields.
type HandshakeState struct {
	HasUpgradeConnection bool
	UpgradeToWebSocket   bool
	WebSocketVersion     int
	WebSocketKey         Fragment
}

// VisitHeader implements HeaderVisitor.
func (st *HandshakeState) VisitHeader(name, value Fragment) {
	switch {
	case name.EqualFold("Connection"):
		if value.EqualFold("Upgrade") || hasToken(value, "Upgrade") {
			st.HasUpgradeConnection = true
		}
	case name.EqualFold("Upgrade"):
		st.UpgradeToWebSocket = value.EqualFold("websocket")
	case name.EqualFold("Sec-WebSocket-Version"):
		v, err := strconv.Atoi(string(value))
		if err != nil {
			v = -1
		}
		st.WebSocketVersion = v
	case name.EqualFold("Sec-WebSocket-Key"):
		st.WebSocketKey = value
	}
}

// hasToken reports whether the comma/space/tab separated list contains token.
func hasToken(list Fragment, token string) bool {
	for _, tok := range strings.FieldsFunc(string(list), func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	}) {
		if strings.EqualFold(tok, token) {
			return true
		}
	}
	return false
}

// ParseConnectRequest validates an HTTP upgrade request held in buf and
// returns the client's Sec-WebSocket-Key. The key aliases buf.
func ParseConnectRequest(buf []byte) (Fragment, error) {
	rl, rest, err := ParseRequestLine(buf)
	if err != nil {
		return nil, ErrHandshakeRequest
	}

	var st HandshakeState
	if _, err := ParseHeaders(buf[rest:], &st); err != nil {
		return nil, ErrHandshakeRequest
	}

	switch {
	case string(rl.Method) != "GET":
		return nil, ErrHandshakeMethod
	case rl.Version > HTTPVersionMax1x:
		return nil, ErrHandshakeHTTPVersion
	case st.WebSocketVersion != WebSocketProtocolVersion:
		return nil, ErrHandshakeWebSocketVersion
	case !st.HasUpgradeConnection || !st.UpgradeToWebSocket:
		return nil, ErrHandshakeNoUpgrade
	case len(st.WebSocketKey) == 0:
		return nil, ErrHandshakeNoKey
	}
	return st.WebSocketKey, nil
}

// ComputeAcceptKey computes the Sec-WebSocket-Accept value from the client's key.
func ComputeAcceptKey(key []byte) string {
	h := sha1.New()
	h.Write(key)
	h.Write([]byte(WebSocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// WriteHandshakeAccept writes the 101 Switching Protocols response for key.
func WriteHandshakeAccept(w io.Writer, key []byte) error {
	_, err := io.WriteString(w, "HTTP/1.1 101 Switching Protocols\r\n"+
		"Upgrade: websocket\r\n"+
		"Connection: Upgrade\r\n"+
		"Sec-WebSocket-Accept: "+ComputeAcceptKey(key)+"\r\n\r\n")
	return err
}
