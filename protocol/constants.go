// Package protocol
// Author: momentics <momentics@gmail.com>
//
// WebSocket and HTTP/1.x wire protocol constants

package protocol

// Opcode identifies the purpose of a WebSocket frame (4 bits on the wire).
type Opcode byte

const (
	// Data opcodes
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2

	// Control opcodes (>=0x8)
	OpClose Opcode = 0x8
	OpPing  Opcode = 0x9
	OpPong  Opcode = 0xA
)

// IsControl reports whether op is a control opcode.
func (op Opcode) IsControl() bool { return op&0x8 != 0 }

func (op Opcode) String() string {
	switch op {
	case OpContinuation:
		return "continuation"
	case OpText:
		return "text"
	case OpBinary:
		return "binary"
	case OpClose:
		return "close"
	case OpPing:
		return "ping"
	case OpPong:
		return "pong"
	default:
		return "reserved"
	}
}

const (
	// Header bits, first byte
	finBit  = 0x80
	rsvBits = 0x70

	// Header bits, second byte
	maskBit = 0x80

	payloadLen16 = 126
	payloadLen64 = 127

	// MaxControlPayloadLen is the largest payload a control frame may carry.
	MaxControlPayloadLen = 125
	// MaxFrameHeaderLen covers 2 header bytes, 8 extended length bytes and the masking key.
	MaxFrameHeaderLen = 14

	// MaxFramePayload is the default limit for captured payloads.
	MaxFramePayload = 1 << 20 // 1 MiB
)

// Close codes
const (
	CloseNormalClosure     = 1000
	CloseGoingAway         = 1001
	CloseProtocolError     = 1002
	ClosePolicyViolation   = 1008
	CloseMessageTooBig     = 1009
	CloseInternalServerErr = 1011
	CloseTryAgainLater     = 1013
)

// Handshake constants (RFC6455 section 1.3 and 4.2).
const (
	WebSocketGUID            = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
	WebSocketProtocolVersion = 13

	// MaxHandshakeHeadersSize bounds a single accumulated header block.
	MaxHandshakeHeadersSize = 8 * 1024
)

// HTTP versions packed as (major<<8)|minor.
const (
	HTTPVersion10 = 0x0100
	HTTPVersion11 = 0x0101
	// HTTPVersionMax1x is the highest version accepted as HTTP/1.x.
	HTTPVersionMax1x = 0x01FF
)
