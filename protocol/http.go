// File: protocol/http.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Zero-copy HTTP/1.x request line and header field parser. Every fragment
// returned here aliases the caller's buffer; nothing is allocated.

package protocol

import (
	"bytes"
	"errors"
	"io"
)

var (
	ErrBadRequestLine = errors.New("malformed HTTP request line")
	ErrBadHeader      = errors.New("malformed HTTP header field")
)

var (
	crlf     = []byte("\r\n")
	crlfcrlf = []byte("\r\n\r\n")
	httpName = []byte("HTTP/")
)

// Methods lists the request methods the parser accepts.
var Methods = [...]string{
	"GET",
	"HEAD",
	"POST",
	"PUT",
	"DELETE",
	"CONNECT",
	"OPTIONS",
	"TRACE",
}

// Fragment is a borrowed view into a request buffer. It never owns memory
// and stays valid only while the underlying buffer is alive and unmodified.
type Fragment []byte

// String copies the fragment out of the buffer.
func (f Fragment) String() string { return string(f) }

// EqualFold reports whether the fragment equals s, ignoring ASCII case.
func (f Fragment) EqualFold(s string) bool {
	return len(f) == len(s) && bytes.EqualFold(f, []byte(s))
}

// RequestLine is a parsed HTTP request line.
type RequestLine struct {
	Method  Fragment
	Target  Fragment
	Version int // (major<<8)|minor
}

// Major returns the HTTP major version.
func (rl RequestLine) Major() int { return rl.Version >> 8 }

// Minor returns the HTTP minor version.
func (rl RequestLine) Minor() int { return rl.Version & 0xFF }

// HeaderVisitor receives header fields in document order.
type HeaderVisitor interface {
	VisitHeader(name, value Fragment)
}

// HeaderVisitorFunc adapts an ordinary function to HeaderVisitor.
type HeaderVisitorFunc func(name, value Fragment)

// VisitHeader calls f(name, value).
func (f HeaderVisitorFunc) VisitHeader(name, value Fragment) { f(name, value) }

func isSpace(c byte) bool  { return c == ' ' }
func isHSpace(c byte) bool { return c == ' ' || c == '\t' }
func isDigit(c byte) bool  { return c >= '0' && c <= '9' }

// knownMethod matches the token exactly against Methods.
func knownMethod(tok []byte) bool {
	for _, m := range Methods {
		if string(tok) == m {
			return true
		}
	}
	return false
}

// ParseRequestLine parses "METHOD target HTTP/major[.minor]\r\n" at the start
// of buf. It returns the request line and the offset of the first byte after
// the terminating CRLF.
func ParseRequestLine(buf []byte) (RequestLine, int, error) {
	var rl RequestLine

	end := bytes.Index(buf, crlf)
	if end < 0 {
		return rl, 0, ErrBadRequestLine
	}

	p := 0
	for p < end && !isSpace(buf[p]) {
		p++
	}
	if p == 0 || p == end {
		return rl, 0, ErrBadRequestLine
	}
	rl.Method = Fragment(buf[:p:p])
	if !knownMethod(rl.Method) {
		return RequestLine{}, 0, ErrBadRequestLine
	}

	for p < end && isSpace(buf[p]) {
		p++
	}
	start := p
	for p < end && !isSpace(buf[p]) {
		p++
	}
	if p == start {
		return RequestLine{}, 0, ErrBadRequestLine
	}
	rl.Target = Fragment(buf[start:p:p])

	for p < end && isSpace(buf[p]) {
		p++
	}
	if p == end || !bytes.HasPrefix(buf[p:end], httpName) {
		return RequestLine{}, 0, ErrBadRequestLine
	}
	p += len(httpName)

	major, n := parseDigits(buf[p:end])
	if n == 0 {
		return RequestLine{}, 0, ErrBadRequestLine
	}
	p += n

	minor := 0
	if p < end && buf[p] == '.' {
		p++
		minor, _ = parseDigits(buf[p:end])
	}

	rl.Version = (major&0xFF)<<8 | (minor & 0xFF)
	return rl, end + len(crlf), nil
}

// parseDigits reads a run of decimal digits and returns its value modulo 256
// together with the number of digits consumed.
func parseDigits(b []byte) (int, int) {
	v, n := 0, 0
	for n < len(b) && isDigit(b[n]) {
		v = (v*10 + int(b[n]-'0')) & 0xFF
		n++
	}
	return v, n
}

// ParseHeaders walks CRLF-terminated header lines in buf, calling visit for
// each field. A bare CRLF ends the block and the returned offset points just
// past it. If buf ends before a blank line, the offset points past the last
// complete line. visit may be nil.
func ParseHeaders(buf []byte, visit HeaderVisitor) (int, error) {
	p := 0
	for {
		rel := bytes.Index(buf[p:], crlf)
		if rel < 0 {
			return p, nil
		}
		end := p + rel
		if end == p {
			return p + len(crlf), nil
		}

		start := p
		for p < end && !isHSpace(buf[p]) && buf[p] != ':' {
			p++
		}
		if p == start {
			return 0, ErrBadHeader
		}
		name := Fragment(buf[start:p:p])

		for p < end && isHSpace(buf[p]) {
			p++
		}
		if p == end || buf[p] != ':' {
			return 0, ErrBadHeader
		}
		p++
		for p < end && isHSpace(buf[p]) {
			p++
		}

		vend := end
		for vend > p && isHSpace(buf[vend-1]) {
			vend--
		}
		if vend == p {
			return 0, ErrBadHeader
		}

		if visit != nil {
			visit.VisitHeader(name, Fragment(buf[p:vend:vend]))
		}
		p = end + len(crlf)
	}
}

// ReadHeaders reads from r into buf until the end of the header block
// (CRLFCRLF) has been received or buf is full. It returns the number of bytes
// stored. A connection closed before any byte arrives yields io.EOF.
func ReadHeaders(r io.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		if m > 0 {
			// The terminator may straddle two reads.
			from := n - (len(crlfcrlf) - 1)
			if from < 0 {
				from = 0
			}
			n += m
			if bytes.Contains(buf[from:n], crlfcrlf) {
				return n, nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) && n > 0 {
				return n, nil
			}
			return n, err
		}
	}
	return n, nil
}
