// Package protocol
// Author: momentics <momentics@gmail.com>
//
// WebSocket frame encoding and stream decoding.
//
// Outgoing frames are server frames and are never masked. Decoding reads
// straight from the stream: the header first, then the payload is either
// captured (and unmasked) or discarded so the stream stays aligned on the
// next frame boundary.

package protocol

import (
	"encoding/binary"
	"errors"
	"io"
)

// ErrFrameTooLarge is returned when a captured payload exceeds the limit.
var ErrFrameTooLarge = errors.New("frame payload exceeds maximum allowed size")

// Frame is a single WebSocket frame.
type Frame struct {
	Opcode        Opcode
	Fin           bool
	Masked        bool
	PayloadLength uint64
	MaskingKey    [4]byte
	Payload       []byte // nil unless the payload was captured
}

// EncodeFrame builds an unmasked frame around payload.
func EncodeFrame(op Opcode, fin bool, payload []byte) []byte {
	return AppendFrame(make([]byte, 0, MaxFrameHeaderLen+len(payload)), Frame{
		Opcode:  op,
		Fin:     fin,
		Payload: payload,
	})
}

// AppendFrame appends the wire form of f to dst. The length is taken from
// f.Payload. When f.Masked is set the masking key is emitted after the
// length, but the payload bytes are copied as is.
func AppendFrame(dst []byte, f Frame) []byte {
	b0 := byte(f.Opcode) & 0x0F
	if f.Fin {
		b0 |= finBit
	}
	var b1 byte
	if f.Masked {
		b1 = maskBit
	}

	n := len(f.Payload)
	switch {
	case n < payloadLen16:
		dst = append(dst, b0, b1|byte(n))
	case n <= 0xFFFF:
		dst = append(dst, b0, b1|payloadLen16)
		dst = binary.BigEndian.AppendUint16(dst, uint16(n))
	default:
		dst = append(dst, b0, b1|payloadLen64)
		dst = binary.BigEndian.AppendUint64(dst, uint64(n))
	}

	if f.Masked {
		dst = append(dst, f.MaskingKey[:]...)
	}
	return append(dst, f.Payload...)
}

// ReadFrameHeader reads the fixed header, the extended length and the
// masking key. The payload is left unread in r.
func ReadFrameHeader(r io.Reader) (Frame, error) {
	var f Frame
	var hdr [8]byte

	if _, err := io.ReadFull(r, hdr[:2]); err != nil {
		return f, err
	}
	f.Fin = hdr[0]&finBit != 0
	f.Opcode = Opcode(hdr[0] & 0x0F)
	f.Masked = hdr[1]&maskBit != 0
	f.PayloadLength = uint64(hdr[1] & 0x7F)

	switch f.PayloadLength {
	case payloadLen16:
		if _, err := io.ReadFull(r, hdr[:2]); err != nil {
			return f, unexpected(err)
		}
		f.PayloadLength = uint64(binary.BigEndian.Uint16(hdr[:2]))
	case payloadLen64:
		if _, err := io.ReadFull(r, hdr[:8]); err != nil {
			return f, unexpected(err)
		}
		f.PayloadLength = binary.BigEndian.Uint64(hdr[:8]) &^ (1 << 63)
	}

	if f.Masked {
		if _, err := io.ReadFull(r, f.MaskingKey[:]); err != nil {
			return f, unexpected(err)
		}
	}
	return f, nil
}

// ReadPayload reads exactly PayloadLength bytes into f.Payload and unmasks
// them. A payload longer than limit fails with ErrFrameTooLarge before
// anything is allocated; limit <= 0 selects MaxFramePayload.
func (f *Frame) ReadPayload(r io.Reader, limit int64) error {
	if limit <= 0 {
		limit = MaxFramePayload
	}
	if f.PayloadLength > uint64(limit) {
		return ErrFrameTooLarge
	}
	buf := make([]byte, f.PayloadLength)
	if _, err := io.ReadFull(r, buf); err != nil {
		return unexpected(err)
	}
	if f.Masked {
		mask(buf, f.MaskingKey)
	}
	f.Payload = buf
	return nil
}

// DiscardPayload skips exactly PayloadLength bytes of r.
func (f *Frame) DiscardPayload(r io.Reader) error {
	if f.PayloadLength == 0 {
		return nil
	}
	n, err := io.CopyN(io.Discard, r, int64(f.PayloadLength))
	if err != nil {
		if errors.Is(err, io.EOF) && uint64(n) < f.PayloadLength {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	return nil
}

// DecodeFrame reads one frame from r with the default payload limit. With
// capture unset the payload is discarded and Frame.Payload stays nil.
func DecodeFrame(r io.Reader, capture bool) (Frame, error) {
	return DecodeFrameLimit(r, capture, MaxFramePayload)
}

// DecodeFrameLimit is DecodeFrame with an explicit captured payload limit.
func DecodeFrameLimit(r io.Reader, capture bool, limit int64) (Frame, error) {
	f, err := ReadFrameHeader(r)
	if err != nil {
		return f, err
	}
	if capture {
		err = f.ReadPayload(r, limit)
	} else {
		err = f.DiscardPayload(r)
	}
	return f, err
}

// WriteFrame writes a single unmasked final frame in one Write call.
func WriteFrame(w io.Writer, op Opcode, payload []byte) error {
	_, err := w.Write(EncodeFrame(op, true, payload))
	return err
}

// WriteText writes s as a single text frame.
func WriteText(w io.Writer, s string) error {
	return WriteFrame(w, OpText, []byte(s))
}

// EncodeClose returns a close frame carrying code and reason. The reason is
// truncated to fit a control frame.
func EncodeClose(code uint16, reason string) []byte {
	if len(reason) > MaxControlPayloadLen-2 {
		reason = reason[:MaxControlPayloadLen-2]
	}
	payload := make([]byte, 2, 2+len(reason))
	binary.BigEndian.PutUint16(payload, code)
	payload = append(payload, reason...)
	return EncodeFrame(OpClose, true, payload)
}

// WriteClose writes EncodeClose(code, reason) to w.
func WriteClose(w io.Writer, code uint16, reason string) error {
	_, err := w.Write(EncodeClose(code, reason))
	return err
}

// ParseClosePayload splits a close frame payload into code and reason.
// An empty payload yields CloseNormalClosure.
func ParseClosePayload(p []byte) (uint16, string) {
	if len(p) < 2 {
		return CloseNormalClosure, ""
	}
	return binary.BigEndian.Uint16(p), string(p[2:])
}

func mask(b []byte, key [4]byte) {
	for i := range b {
		b[i] ^= key[i&3]
	}
}

// unexpected maps a clean EOF inside a frame to io.ErrUnexpectedEOF.
func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
